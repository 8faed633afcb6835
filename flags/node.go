package flags

import (
	cli "gopkg.in/urfave/cli.v1"
)

// NodeFlags holds knobs specific to the local node instance.
func NodeFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "identity",
			Usage: "Custom node name used in logs and config dumps",
		},
		cli.StringFlag{
			Name:  "preset",
			Usage: "Tuning preset (default|lite|full|archive)",
			Value: "default",
		},
		cli.BoolFlag{
			Name:  "lightkdf",
			Usage: "Reduce key-derivation hardness (faster key unlock, insecure for prod)",
		},
		cli.StringFlag{
			Name:  "keystore",
			Usage: "Directory for storing encrypted keys",
		},
		cli.Uint64Flag{
			Name:  "validator.id",
			Usage: "Validator identifier of this node",
		},
		cli.StringFlag{
			Name:  "validator.key",
			Usage: "Hex-encoded secp256k1 private key of the validator",
		},
		cli.Uint64Flag{
			Name:  "validator.stake",
			Usage: "Stake registered for this validator on a fake network",
			Value: 1,
		},
		cli.StringFlag{
			Name:  "owner.addr",
			Usage: "Hex address receiving the owner fee share (defaults to the emitter address)",
		},
		cli.StringFlag{
			Name:  "treasury.addr",
			Usage: "Hex address receiving the treasury fee share",
		},
	}
}
