package launcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cli "gopkg.in/urfave/cli.v1"
)

// Config aggregates every subsystem's configuration the launcher needs.
type Config struct {
	Node      NodeConfig
	Network   NetworkConfig
	Validator ValidatorConfig
	Wallet    WalletConfig
	Batching  BatchingConfig
	TxPool    TxPoolConfig
	API       APIConfig
	Preset    string
}

type NodeConfig struct {
	DataDir  string
	Name     string
	Keystore string
	LightKDF bool
	Logging  LoggingConfig
}

type LoggingConfig struct {
	Verbosity int
	Format    string
	Color     bool
	SentryDSN string
}

type NetworkConfig struct {
	// Name selects the rule set: main, test or fake.
	Name string
}

type ValidatorConfig struct {
	ID     uint32
	KeyHex string
	Stake  uint64
}

// WalletConfig names the fee-share beneficiaries. Hex addresses.
type WalletConfig struct {
	OwnerAddr    string
	TreasuryAddr string
}

// BatchingConfig overrides the network's notarization batching rules.
// Zero values keep the rule set's defaults.
type BatchingConfig struct {
	MaxReceipts int
	MaxPeriod   time.Duration
	Capacity    int
}

type TxPoolConfig struct {
	Size     int
	BlockTxs int
}

type APIConfig struct {
	Enabled bool
	Addr    string
	Port    int
	Metrics bool
}

// ListenAddr formats the API bind address.
func (c APIConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Addr, c.Port)
}

// MakeAllConfigs merges defaults, the optional config file, then CLI flag
// overrides into a single config struct.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := DefaultConfig()

	if file := ctx.GlobalString("config"); file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", file, err)
		}
	}

	applyCLIOverrides(ctx, &cfg)

	if err := ensureDir(cfg.Node.DataDir); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(resolvePath(path))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if ctx.GlobalIsSet("datadir") {
		cfg.Node.DataDir = resolvePath(ctx.GlobalString("datadir"))
	}
	if ctx.GlobalIsSet("identity") {
		cfg.Node.Name = ctx.GlobalString("identity")
	}
	if ctx.GlobalIsSet("keystore") {
		cfg.Node.Keystore = resolvePath(ctx.GlobalString("keystore"))
	}
	if ctx.GlobalBool("lightkdf") {
		cfg.Node.LightKDF = true
	}

	if ctx.GlobalIsSet("log.format") {
		cfg.Node.Logging.Format = ctx.GlobalString("log.format")
	}
	if ctx.GlobalIsSet("log.verbosity") {
		cfg.Node.Logging.Verbosity = ctx.GlobalInt("log.verbosity")
	}
	if ctx.GlobalIsSet("log.color") {
		cfg.Node.Logging.Color = ctx.GlobalBool("log.color")
	}
	if ctx.GlobalIsSet("log.sentry") {
		cfg.Node.Logging.SentryDSN = ctx.GlobalString("log.sentry")
	}

	if ctx.GlobalIsSet("network") {
		cfg.Network.Name = ctx.GlobalString("network")
	}
	if ctx.GlobalBool("fakenet") {
		cfg.Network.Name = "fake"
	}

	if ctx.GlobalIsSet("validator.id") {
		cfg.Validator.ID = uint32(ctx.GlobalUint64("validator.id"))
	}
	if ctx.GlobalIsSet("validator.key") {
		cfg.Validator.KeyHex = ctx.GlobalString("validator.key")
	}
	if ctx.GlobalIsSet("validator.stake") {
		cfg.Validator.Stake = ctx.GlobalUint64("validator.stake")
	}
	if ctx.GlobalIsSet("owner.addr") {
		cfg.Wallet.OwnerAddr = ctx.GlobalString("owner.addr")
	}
	if ctx.GlobalIsSet("treasury.addr") {
		cfg.Wallet.TreasuryAddr = ctx.GlobalString("treasury.addr")
	}

	if ctx.GlobalIsSet("batch.maxreceipts") {
		cfg.Batching.MaxReceipts = ctx.GlobalInt("batch.maxreceipts")
	}
	if ctx.GlobalIsSet("batch.maxperiod") {
		cfg.Batching.MaxPeriod = ctx.GlobalDuration("batch.maxperiod")
	}
	if ctx.GlobalIsSet("batch.capacity") {
		cfg.Batching.Capacity = ctx.GlobalInt("batch.capacity")
	}

	if ctx.GlobalIsSet("txpool.size") {
		cfg.TxPool.Size = ctx.GlobalInt("txpool.size")
	}
	if ctx.GlobalIsSet("txpool.blocktxs") {
		cfg.TxPool.BlockTxs = ctx.GlobalInt("txpool.blocktxs")
	}

	if ctx.GlobalBool("api") {
		cfg.API.Enabled = true
	}
	if ctx.GlobalIsSet("api.addr") {
		cfg.API.Addr = ctx.GlobalString("api.addr")
	}
	if ctx.GlobalIsSet("api.port") {
		cfg.API.Port = ctx.GlobalInt("api.port")
	}
	if ctx.GlobalBool("metrics") {
		cfg.API.Metrics = true
	}

	if ctx.GlobalIsSet("preset") {
		cfg.Preset = ctx.GlobalString("preset")
	}
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
