package launcher

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/poechain/go-poechain/flags"
	"github.com/poechain/go-poechain/integration"
	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/poechain"
)

const version = "0.1.0"

var app = flags.NewApp(version, "Proof-of-execution chain node")

func init() {
	app.Flags = append(app.Flags, flags.CommonFlags()...)
	app.Flags = append(app.Flags, flags.NodeFlags()...)
	app.Flags = append(app.Flags, flags.NetworkFlags()...)
	app.Flags = append(app.Flags, flags.BatchingFlags()...)
	app.Flags = append(app.Flags, flags.TxPoolFlags()...)
	app.Action = launch
}

// Launch parses flags and runs the node until interrupted.
func Launch(args []string) error {
	return app.Run(args)
}

func launch(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}

	log, err := makeLogger(cfg.Node.Logging)
	if err != nil {
		return err
	}

	rules, err := makeRules(cfg)
	if err != nil {
		return err
	}

	preset, err := integration.GetPresetByName(cfg.Preset)
	if err != nil {
		return err
	}
	if cfg.TxPool.Size > 0 {
		preset.TxPoolSize = cfg.TxPool.Size
	}
	if cfg.TxPool.BlockTxs > 0 {
		preset.MaxBlockTxs = cfg.TxPool.BlockTxs
	}
	preset.EnableMetrics = preset.EnableMetrics || cfg.API.Metrics
	preset.LightKDF = preset.LightKDF || cfg.Node.LightKDF

	fake := rules.NetworkID == poechain.FakeNetworkID
	validatorKey, err := makeValidatorKey(cfg.Validator, fake)
	if err != nil {
		return err
	}

	// Notary and proposer keys are generated per process. Persistent
	// keystore-backed identities attach here once the keystore lands.
	emitterKey, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	_, notaryKey, err := mode3.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	_, proposerKey, err := mode3.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}

	owner, treasury, err := makeWallet(cfg.Wallet, crypto.PubkeyToAddress(emitterKey.PublicKey), fake)
	if err != nil {
		return err
	}

	nodeCfg := integration.Config{
		Rules:          rules,
		Preset:         preset,
		EmitterKey:     emitterKey,
		NotaryKey:      notaryKey,
		ProposerKey:    proposerKey,
		ValidatorID:    idx.ValidatorID(cfg.Validator.ID),
		ValidatorKey:   validatorKey,
		ValidatorStake: new(big.Int).SetUint64(cfg.Validator.Stake),
		OwnerAddr:      owner,
		TreasuryAddr:   treasury,
	}
	if cfg.API.Enabled {
		nodeCfg.APIAddr = cfg.API.ListenAddr()
	}

	node, err := integration.NewNode(nodeCfg, log)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"network": rules.Name,
		"name":    cfg.Node.Name,
		"datadir": cfg.Node.DataDir,
		"preset":  preset.Name,
	}).Info("starting node")

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := node.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("node stopped")
	return nil
}

// makeRules resolves the network preset and applies batching overrides.
func makeRules(cfg Config) (poechain.Rules, error) {
	var rules poechain.Rules
	switch cfg.Network.Name {
	case "main":
		rules = poechain.MainNetRules()
	case "test":
		rules = poechain.TestNetRules()
	case "fake":
		rules = poechain.FakeNetRules()
	default:
		return poechain.Rules{}, fmt.Errorf("unknown network %q (valid: main, test, fake)", cfg.Network.Name)
	}

	if cfg.Batching.MaxReceipts > 0 {
		rules.Batching.MaxReceipts = uint32(cfg.Batching.MaxReceipts)
	}
	if cfg.Batching.MaxPeriod > 0 {
		rules.Batching.MaxPeriod = inter.Timestamp(cfg.Batching.MaxPeriod)
	}
	if cfg.Batching.Capacity > 0 {
		rules.Batching.Capacity = uint32(cfg.Batching.Capacity)
	}
	return rules, rules.Validate()
}

// makeWallet resolves the fee beneficiaries. The treasury address is
// mandatory outside fake networks, so real-network fees are never burned to
// the zero address; the owner share defaults to the emitter address.
func makeWallet(cfg WalletConfig, fallbackOwner common.Address, fake bool) (owner, treasury common.Address, err error) {
	owner = fallbackOwner
	if cfg.OwnerAddr != "" {
		if !common.IsHexAddress(cfg.OwnerAddr) {
			return common.Address{}, common.Address{}, fmt.Errorf("invalid owner address %q", cfg.OwnerAddr)
		}
		owner = common.HexToAddress(cfg.OwnerAddr)
	}
	if cfg.TreasuryAddr == "" {
		if !fake {
			return common.Address{}, common.Address{}, errors.New("treasury.addr is required outside fake networks")
		}
		return owner, common.Address{}, nil
	}
	if !common.IsHexAddress(cfg.TreasuryAddr) {
		return common.Address{}, common.Address{}, fmt.Errorf("invalid treasury address %q", cfg.TreasuryAddr)
	}
	return owner, common.HexToAddress(cfg.TreasuryAddr), nil
}

// makeValidatorKey loads the configured key, or generates a throwaway one
// on fake networks.
func makeValidatorKey(cfg ValidatorConfig, fake bool) (*ecdsa.PrivateKey, error) {
	if cfg.KeyHex != "" {
		key, err := crypto.HexToECDSA(cfg.KeyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid validator key: %w", err)
		}
		return key, nil
	}
	if fake {
		return crypto.GenerateKey()
	}
	return nil, errors.New("validator.key is required outside fake networks")
}

// makeLogger configures logrus per the logging config, attaching a Sentry
// hook when a DSN is set.
func makeLogger(cfg LoggingConfig) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if cfg.Verbosity < 0 || cfg.Verbosity > int(logrus.TraceLevel) {
		return nil, fmt.Errorf("invalid log verbosity %d", cfg.Verbosity)
	}
	log.SetLevel(logrus.Level(cfg.Verbosity))

	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{
			ForceColors:     cfg.Color,
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return nil, fmt.Errorf("sentry hook: %w", err)
		}
		hook.StacktraceConfiguration.Enable = true
		log.Hooks.Add(hook)
	}
	return log, nil
}
