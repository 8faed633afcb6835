package flags

import (
	cli "gopkg.in/urfave/cli.v1"
)

// CommonFlags returns the base set of CLI flags shared across commands.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "JSON configuration file (flags override file values)",
		},
		cli.StringFlag{
			Name:  "datadir",
			Usage: "Data directory for the node",
			Value: "~/.poechain",
		},
		cli.StringFlag{
			Name:  "log.format",
			Usage: "Log output format (text|json)",
			Value: "text",
		},
		cli.IntFlag{
			Name:  "log.verbosity",
			Usage: "Logging verbosity (0=panic,1=fatal,2=error,3=warn,4=info,5=debug,6=trace)",
			Value: 4,
		},
		cli.BoolFlag{
			Name:  "log.color",
			Usage: "Enable colored log output",
		},
		cli.StringFlag{
			Name:  "log.sentry",
			Usage: "Sentry DSN for error reporting (empty disables)",
		},
		cli.BoolFlag{
			Name:  "api",
			Usage: "Enable the HTTP API server",
		},
		cli.StringFlag{
			Name:  "api.addr",
			Usage: "HTTP API listening interface",
			Value: "127.0.0.1",
		},
		cli.IntFlag{
			Name:  "api.port",
			Usage: "HTTP API listening port",
			Value: 18545,
		},
		cli.BoolFlag{
			Name:  "metrics",
			Usage: "Enable collection of Prometheus-compatible metrics",
		},
	}
}
