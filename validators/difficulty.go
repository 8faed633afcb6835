package validators

import (
	"math/big"
	"sync"

	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/poechain"
)

// Difficulty bounds for the proof-of-work notarization used outside
// PoE-driven blocks.
const (
	// MinDifficulty is the floor the controller never goes below.
	MinDifficulty uint64 = 1
	// MaxDifficulty caps the controller against runaway feedback.
	MaxDifficulty uint64 = 1 << 48
)

// AdjustDifficulty retargets the work difficulty from an observed average
// block interval toward the target interval. The adjustment is
// multiplicative (difficulty · target/observed) and clamped to the rules'
// MaxAdjustFactor per step in both directions, so a burst of anomalous
// intervals cannot swing the difficulty by more than the clamp.
func AdjustDifficulty(current uint64, observed, target inter.Timestamp, rules poechain.DifficultyRules) uint64 {
	if current < MinDifficulty {
		current = MinDifficulty
	}
	if observed == 0 {
		observed = 1
	}

	next := new(big.Int).SetUint64(current)
	next.Mul(next, new(big.Int).SetUint64(uint64(target)))
	next.Quo(next, new(big.Int).SetUint64(uint64(observed)))

	factor := uint64(rules.MaxAdjustFactor)
	lo := current / factor
	if lo < MinDifficulty {
		lo = MinDifficulty
	}
	hi := MaxDifficulty
	if current <= MaxDifficulty/factor {
		hi = current * factor
	}

	if next.Cmp(new(big.Int).SetUint64(lo)) < 0 {
		return lo
	}
	if next.Cmp(new(big.Int).SetUint64(hi)) > 0 {
		return hi
	}
	return next.Uint64()
}

// DifficultyTracker maintains the live difficulty across finalized blocks.
// It averages seal intervals over the rules' adjust window and retargets
// once per full window via AdjustDifficulty.
type DifficultyTracker struct {
	mu        sync.Mutex
	rules     poechain.DifficultyRules
	current   uint64
	lastSeal  inter.Timestamp
	intervals []inter.Timestamp
}

// NewDifficultyTracker starts a tracker at the given initial difficulty.
func NewDifficultyTracker(rules poechain.DifficultyRules, initial uint64) *DifficultyTracker {
	if initial < MinDifficulty {
		initial = MinDifficulty
	}
	return &DifficultyTracker{
		rules:   rules,
		current: initial,
	}
}

// Current returns the difficulty in force for the next block.
func (t *DifficultyTracker) Current() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// OnBlockSealed records a finalized block's seal time and returns the
// difficulty in force after it. The first seal only anchors the interval
// clock; out-of-order timestamps are ignored.
func (t *DifficultyTracker) OnBlockSealed(sealedAt inter.Timestamp) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastSeal == 0 {
		t.lastSeal = sealedAt
		return t.current
	}
	if sealedAt <= t.lastSeal {
		return t.current
	}
	t.intervals = append(t.intervals, sealedAt-t.lastSeal)
	t.lastSeal = sealedAt

	window := int(t.rules.AdjustWindow)
	if window < 1 {
		window = 1
	}
	if len(t.intervals) < window {
		return t.current
	}

	var sum inter.Timestamp
	for _, iv := range t.intervals {
		sum += iv
	}
	observed := sum / inter.Timestamp(len(t.intervals))
	t.current = AdjustDifficulty(t.current, observed, t.rules.TargetBlockTime, t.rules)
	t.intervals = t.intervals[:0]
	return t.current
}
