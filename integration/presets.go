// Package integration assembles the receipt pipeline into a runnable node
// and provides named configuration presets. Presets bundle the tunables that
// trade memory and durability against throughput (queue depths, retry
// budgets, observability) so operators pick a profile instead of tweaking
// individual knobs.
package integration

import "fmt"

// PresetConfig captures the tunable parameters that vary across profiles.
// It intentionally excludes what never varies per profile, like network
// rules or listen addresses.
type PresetConfig struct {
	Name string

	// TxPoolSize bounds the pending transaction queue.
	TxPoolSize int
	// LogBlockBuffer is the depth of the notary-to-miner channel. A full
	// buffer applies backpressure to sealing, not to receipt emission.
	LogBlockBuffer int
	// StoreRetries is the write retry budget before a storage failure
	// halts the affected stage.
	StoreRetries uint64
	// MaxBlockTxs caps transactions drawn from the pool per mined block.
	MaxBlockTxs int

	EnableMetrics bool
	// LightKDF uses faster (weaker) key derivation for keystore
	// passwords. Never for production keys.
	LightKDF bool
}

// DefaultPreset is the balanced profile for moderate workloads.
func DefaultPreset() PresetConfig {
	return PresetConfig{
		Name:           "default",
		TxPoolSize:     4096,
		LogBlockBuffer: 16,
		StoreRetries:   5,
		MaxBlockTxs:    256,
		EnableMetrics:  false,
		LightKDF:       false,
	}
}

// LitePreset is tuned for development, CI, and disposable fake networks:
// small queues, quick failure, metrics on for diagnosing issues.
func LitePreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "lite"
	cfg.TxPoolSize = 256
	cfg.LogBlockBuffer = 4
	cfg.StoreRetries = 1
	cfg.MaxBlockTxs = 32
	cfg.EnableMetrics = true
	cfg.LightKDF = true
	return cfg
}

// FullPreset is the production profile for validator nodes: deep queues, a
// generous retry budget, and full observability.
func FullPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "full"
	cfg.TxPoolSize = 16384
	cfg.LogBlockBuffer = 64
	cfg.StoreRetries = 10
	cfg.MaxBlockTxs = 1024
	cfg.EnableMetrics = true
	cfg.LightKDF = false
	return cfg
}

// ArchivePreset is tuned for explorers and analytics nodes that replay and
// serve the full chain history.
func ArchivePreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "archive"
	cfg.TxPoolSize = 8192
	cfg.LogBlockBuffer = 128
	cfg.StoreRetries = 10
	cfg.MaxBlockTxs = 512
	cfg.EnableMetrics = true
	cfg.LightKDF = false
	return cfg
}

// GetPresetByName resolves a --preset flag value to its configuration.
func GetPresetByName(name string) (PresetConfig, error) {
	switch name {
	case "lite":
		return LitePreset(), nil
	case "full":
		return FullPreset(), nil
	case "archive":
		return ArchivePreset(), nil
	case "default":
		return DefaultPreset(), nil
	default:
		return PresetConfig{}, fmt.Errorf("unknown preset: %q (valid: lite, full, archive, default)", name)
	}
}

// ApplyPreset merges a preset into target. Numeric and string fields are
// only overridden when set, so presets layer on top of file or CLI
// overrides without clobbering unrelated settings.
func ApplyPreset(target *PresetConfig, preset PresetConfig) {
	if preset.Name != "" {
		target.Name = preset.Name
	}
	if preset.TxPoolSize > 0 {
		target.TxPoolSize = preset.TxPoolSize
	}
	if preset.LogBlockBuffer > 0 {
		target.LogBlockBuffer = preset.LogBlockBuffer
	}
	if preset.StoreRetries > 0 {
		target.StoreRetries = preset.StoreRetries
	}
	if preset.MaxBlockTxs > 0 {
		target.MaxBlockTxs = preset.MaxBlockTxs
	}
	target.EnableMetrics = preset.EnableMetrics
	target.LightKDF = preset.LightKDF
}
