package flags

import (
	cli "gopkg.in/urfave/cli.v1"
)

// NetworkFlags selects chain rules.
func NetworkFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "network",
			Usage: "Network preset to run (main|test|fake)",
			Value: "main",
		},
		cli.BoolFlag{
			Name:  "fakenet",
			Usage: "Run a local fake network (shorthand for --network=fake)",
		},
	}
}

// BatchingFlags isolates the notarization batching knobs.
func BatchingFlags() []cli.Flag {
	return []cli.Flag{
		cli.IntFlag{
			Name:  "batch.maxreceipts",
			Usage: "Receipts per log block before sealing triggers",
		},
		cli.DurationFlag{
			Name:  "batch.maxperiod",
			Usage: "Maximum time between log block seals",
		},
		cli.IntFlag{
			Name:  "batch.capacity",
			Usage: "Pending receipt queue capacity before backpressure",
		},
	}
}

// TxPoolFlags isolates transaction-pool tuning knobs.
func TxPoolFlags() []cli.Flag {
	return []cli.Flag{
		cli.IntFlag{
			Name:  "txpool.size",
			Usage: "Maximum number of pending transactions",
		},
		cli.IntFlag{
			Name:  "txpool.blocktxs",
			Usage: "Maximum transactions drawn from the pool per block",
		},
	}
}
