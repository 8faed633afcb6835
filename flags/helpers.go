package flags

import (
	"os"

	cli "gopkg.in/urfave/cli.v1"
)

// NewApp creates the base CLI application shared by all commands.
func NewApp(version, usage string) *cli.App {
	app := cli.NewApp()
	app.Name = "poechain"
	app.Usage = usage
	app.Version = version
	app.Writer = os.Stdout
	return app
}
