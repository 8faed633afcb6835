package launcher

import "path/filepath"

// DefaultConfig returns the baseline configuration used before the config
// file and CLI flags override it.
func DefaultConfig() Config {
	home := GuessHomeDir()
	return Config{
		Node: NodeConfig{
			DataDir:  filepath.Join(home, ".poechain"),
			Name:     "poechain",
			LightKDF: false,
			Logging: LoggingConfig{
				Verbosity: 4, // info
				Format:    "text",
				Color:     true,
			},
		},
		Network: NetworkConfig{
			Name: "main",
		},
		Validator: ValidatorConfig{
			Stake: 1,
		},
		// Zero batching overrides: the network rule set decides.
		Batching: BatchingConfig{},
		TxPool: TxPoolConfig{
			Size:     4096,
			BlockTxs: 256,
		},
		API: APIConfig{
			Enabled: false,
			Addr:    "127.0.0.1",
			Port:    18545,
			Metrics: false,
		},
		Preset: "default",
	}
}
