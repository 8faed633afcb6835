// Package poechain defines the network rules and configuration parameters
// for a proof-of-execution network.
//
// This package provides:
//   - Network identification constants (MainNet, TestNet, FakeNet)
//   - Batching rules for receipt notarization
//   - Economic parameters: usage weights, normalization scales, the per-window
//     token budget and the fee split
//   - Consensus rules: round timeouts and retry limits
//   - Difficulty retargeting parameters for the proposer work check
//
// The Rules type is the central consensus-critical configuration structure
// for a given network deployment. All economic parameters are fixed-point
// integers (ppm, milli or micro units) so that every node derives identical
// mint amounts from identical inputs.

package poechain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/poechain/go-poechain/inter"
)

// Network identification constants
const (
	// MainNetworkID is the chain ID of the production network.
	MainNetworkID uint64 = 0x9e
	// TestNetworkID is the chain ID of the public test network.
	TestNetworkID uint64 = 0x9e2
	// FakeNetworkID is the chain ID for local/fake networks used in testing.
	FakeNetworkID uint64 = 0x9e3
)

// Fixed-point denominators. Every ratio in the rules is expressed against
// one of these so the arithmetic stays in integers end to end.
const (
	// PpmDenominator is the parts-per-million denominator used for weights
	// and fee fractions.
	PpmDenominator uint64 = 1_000_000
	// MicroDenominator converts whole tokens to micro-tokens.
	MicroDenominator uint64 = 1_000_000
	// MilliDenominator is the denominator for milli-unit scales.
	MilliDenominator uint64 = 1_000
)

// RulesRLP is the RLP-serializable version of Rules. It contains all network
// configuration parameters that need to be persisted or transmitted over the
// network. The Upgrades field is excluded from RLP encoding.
type RulesRLP struct {
	Name      string
	NetworkID uint64

	// Batching governs how receipts are grouped into log blocks.
	Batching BatchingRules

	// Economy holds the usage weights, scales and mint parameters.
	Economy EconomyRules

	// Consensus holds round timing and vote collection limits.
	Consensus ConsensusRules

	// Difficulty holds proposer work retargeting parameters.
	Difficulty DifficultyRules

	// Upgrades - protocol feature flags (not RLP-encoded)
	Upgrades Upgrades `rlp:"-"`
}

// Rules describes the complete configuration of a network. This is the main
// type used throughout the codebase to access network parameters.
//
// Note: when extending Rules with pointer-typed fields, Copy() must be
// taught to deep-copy them.
type Rules RulesRLP

// BatchingRules governs when the notary seals a log block out of the pending
// receipt queue. A batch is sealed when either the size or the time trigger
// fires, whichever comes first.
type BatchingRules struct {
	// MaxReceipts is the size trigger: the queue is drained as soon as it
	// holds this many receipts.
	MaxReceipts uint32

	// MaxPeriod is the time trigger: a non-empty queue is drained at least
	// this often even if the size trigger never fires.
	MaxPeriod inter.Timestamp

	// Capacity bounds the pending queue. Submissions beyond capacity are
	// rejected with a backpressure error rather than buffered unboundedly.
	Capacity uint32
}

// UsageWeightsPpm are the relative weights of the resource categories in the
// complexity index, in parts per million. The five weights must sum to
// exactly PpmDenominator.
type UsageWeightsPpm struct {
	CPU      uint64
	Mem      uint64
	Storage  uint64
	Egress   uint64
	Receipts uint64
}

// Sum returns the total of all five weights.
func (w UsageWeightsPpm) Sum() uint64 {
	return w.CPU + w.Mem + w.Storage + w.Egress + w.Receipts
}

// UsageScales are the per-category normalization divisors: one "expected
// unit" of each category per billing window, in the category's own storage
// unit (milliseconds, MB·s, milli-GB·day, milli-MB, receipt count). A
// category's term contributes weight·usage/scale to the complexity index.
type UsageScales struct {
	CPUMillis         uint64
	MemMBSec          uint64
	StorageGBDayMilli uint64
	EgressMBMilli     uint64
	Receipts          uint64
}

// EconomyRules contains all economic parameters of the network: how usage is
// weighted into the complexity index Φ, the per-window token budget, and how
// the protocol fee on mint is divided.
type EconomyRules struct {
	// Weights are the ppm weights of the usage categories; they must sum to
	// exactly PpmDenominator.
	Weights UsageWeightsPpm

	// Scales are the normalization divisors; every scale must be positive.
	Scales UsageScales

	// KWindowMicro is the token budget per billing window, in micro-tokens.
	// The actual mint is KWindowMicro·Γ·A, always strictly below the budget
	// since Γ < 1.
	KWindowMicro uint64

	// AdoptionMilli is the adoption multiplier A in milli-units
	// (1000 = 1.0). Validate bounds it to (0, 1000]; a larger value would
	// let the mint exceed the window budget.
	AdoptionMilli uint64

	// Fees splits the protocol fee charged against each block's mint.
	Fees FeeRules
}

// FeeRules defines the protocol fee as ppm fractions of a block's mint.
// The four fractions together are the total fee rate; they need not reach
// PpmDenominator (the rest of the mint is untouched). Rounding remainders
// from the first three parts land in the treasury so the split always
// conserves the total exactly.
type FeeRules struct {
	LockedPpm    uint64
	SpendablePpm uint64
	OwnerPpm     uint64
	TreasuryPpm  uint64
}

// TotalPpm returns the combined fee rate.
func (f FeeRules) TotalPpm() uint64 {
	return f.LockedPpm + f.SpendablePpm + f.OwnerPpm + f.TreasuryPpm
}

// ConsensusRules holds the timing and retry parameters of block
// finalization rounds.
type ConsensusRules struct {
	// RoundTimeout is how long a proposer waits for quorum before the round
	// is abandoned and re-proposed.
	RoundTimeout inter.Timestamp

	// MaxRounds bounds the number of re-proposals per height before the
	// pipeline surfaces an error instead of spinning.
	MaxRounds uint32
}

// DifficultyRules holds the retargeting parameters of the proposer work
// check.
type DifficultyRules struct {
	// TargetBlockTime is the desired spacing between finalized blocks.
	TargetBlockTime inter.Timestamp

	// AdjustWindow is how many blocks are averaged per retarget step.
	AdjustWindow uint32

	// MaxAdjustFactor clamps each retarget step: the difficulty may change
	// by at most this factor (up or down) per step.
	MaxAdjustFactor uint32
}

// Upgrades tracks which optional protocol features are enabled.
type Upgrades struct {
	// Slashing enables stake penalties on verified misbehaviour proofs.
	Slashing bool
	// StrictAttestation rejects receipts whose attestation flag is unset.
	StrictAttestation bool
}

// MainNetRules returns the production network configuration.
func MainNetRules() Rules {
	return Rules{
		Name:       "main",
		NetworkID:  MainNetworkID,
		Batching:   DefaultBatchingRules(),
		Economy:    DefaultEconomyRules(),
		Consensus:  DefaultConsensusRules(),
		Difficulty: DefaultDifficultyRules(),
		Upgrades: Upgrades{
			Slashing: true,
		},
	}
}

// TestNetRules returns the public testnet configuration. It uses the same
// economic parameters as mainnet for realistic testing.
func TestNetRules() Rules {
	return Rules{
		Name:       "test",
		NetworkID:  TestNetworkID,
		Batching:   DefaultBatchingRules(),
		Economy:    DefaultEconomyRules(),
		Consensus:  DefaultConsensusRules(),
		Difficulty: DefaultDifficultyRules(),
		Upgrades: Upgrades{
			Slashing: true,
		},
	}
}

// FakeNetRules returns the configuration for local/fake networks.
// Fake networks use accelerated parameters for faster development cycles:
// small batches, short round timeouts and all features enabled.
func FakeNetRules() Rules {
	return Rules{
		Name:      "fake",
		NetworkID: FakeNetworkID,
		Batching: BatchingRules{
			MaxReceipts: 8,
			MaxPeriod:   inter.Timestamp(200 * time.Millisecond),
			Capacity:    256,
		},
		Economy: DefaultEconomyRules(),
		Consensus: ConsensusRules{
			RoundTimeout: inter.Timestamp(500 * time.Millisecond),
			MaxRounds:    16,
		},
		Difficulty: DifficultyRules{
			TargetBlockTime: inter.Timestamp(1 * time.Second),
			AdjustWindow:    4,
			MaxAdjustFactor: 4,
		},
		Upgrades: Upgrades{
			Slashing:          true,
			StrictAttestation: true,
		},
	}
}

// DefaultBatchingRules returns the mainnet batching configuration: batches
// of up to 512 receipts sealed at least every 5 seconds, with a bounded
// pending queue.
func DefaultBatchingRules() BatchingRules {
	return BatchingRules{
		MaxReceipts: 512,
		MaxPeriod:   inter.Timestamp(5 * time.Second),
		Capacity:    8192,
	}
}

// DefaultEconomyRules returns the mainnet economy configuration.
//
// The weights favor CPU (35%) and receipt throughput (20%) with the
// remaining categories at 15% each; they sum to exactly one million ppm.
// The scales express one expected window's worth of each category in its
// storage unit.
func DefaultEconomyRules() EconomyRules {
	return EconomyRules{
		Weights: UsageWeightsPpm{
			CPU:      350_000,
			Mem:      150_000,
			Storage:  150_000,
			Egress:   150_000,
			Receipts: 200_000,
		},
		Scales: UsageScales{
			CPUMillis:         1000,   // 1 CPU-second
			MemMBSec:          1000,   // 1000 MB·s
			StorageGBDayMilli: 1000,   // 1 GB·day
			EgressMBMilli:     10_000, // 10 MB
			Receipts:          100,    // 100 receipts
		},
		KWindowMicro:  1000 * MicroDenominator, // 1000 tokens per window
		AdoptionMilli: MilliDenominator,        // A = 1.0
		Fees: FeeRules{
			LockedPpm:    2000,
			SpendablePpm: 3000,
			OwnerPpm:     2000,
			TreasuryPpm:  3000,
		},
	}
}

// DefaultConsensusRules returns the mainnet consensus timing.
func DefaultConsensusRules() ConsensusRules {
	return ConsensusRules{
		RoundTimeout: inter.Timestamp(10 * time.Second),
		MaxRounds:    64,
	}
}

// DefaultDifficultyRules returns the mainnet retargeting parameters.
func DefaultDifficultyRules() DifficultyRules {
	return DifficultyRules{
		TargetBlockTime: inter.Timestamp(10 * time.Second),
		AdjustWindow:    30,
		MaxAdjustFactor: 4,
	}
}

// Validate checks the internal consistency of the rules. It is called once
// at node startup; economic code downstream assumes a validated Rules and
// does not re-check.
func (r Rules) Validate() error {
	if r.Name == "" {
		return errors.New("empty network name")
	}
	if sum := r.Economy.Weights.Sum(); sum != PpmDenominator {
		return fmt.Errorf("usage weights must sum to %d ppm, got %d", PpmDenominator, sum)
	}
	s := r.Economy.Scales
	if s.CPUMillis == 0 || s.MemMBSec == 0 || s.StorageGBDayMilli == 0 ||
		s.EgressMBMilli == 0 || s.Receipts == 0 {
		return errors.New("usage scales must be positive")
	}
	if r.Economy.KWindowMicro == 0 {
		return errors.New("window token budget must be positive")
	}
	if r.Economy.AdoptionMilli == 0 || r.Economy.AdoptionMilli > MilliDenominator {
		return fmt.Errorf("adoption multiplier must be in (0, %d] milli", MilliDenominator)
	}
	if total := r.Economy.Fees.TotalPpm(); total > PpmDenominator {
		return fmt.Errorf("fee fractions exceed %d ppm: %d", PpmDenominator, total)
	}
	if r.Batching.MaxReceipts == 0 {
		return errors.New("batch size trigger must be positive")
	}
	if r.Batching.MaxPeriod == 0 {
		return errors.New("batch time trigger must be positive")
	}
	if r.Batching.Capacity < r.Batching.MaxReceipts {
		return errors.New("pending queue capacity below batch size")
	}
	if r.Consensus.RoundTimeout == 0 {
		return errors.New("round timeout must be positive")
	}
	if r.Consensus.MaxRounds == 0 {
		return errors.New("round limit must be positive")
	}
	if r.Difficulty.TargetBlockTime == 0 || r.Difficulty.AdjustWindow == 0 {
		return errors.New("difficulty retarget parameters must be positive")
	}
	if r.Difficulty.MaxAdjustFactor < 2 {
		return errors.New("difficulty clamp factor must be at least 2")
	}
	return nil
}

// Copy creates a deep copy of Rules. All fields are currently value types,
// but callers should still go through Copy so that adding pointer fields
// later cannot silently introduce shared state.
func (r Rules) Copy() Rules {
	cp := r
	return cp
}

// String returns a JSON representation of Rules for debugging and logging.
func (r Rules) String() string {
	b, _ := json.Marshal(&r)
	return string(b)
}
