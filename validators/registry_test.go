package validators

import (
	"math/big"
	"testing"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/inter/validatorpk"
	"github.com/poechain/go-poechain/poechain"
)

func testPubKey(t *testing.T) validatorpk.PubKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return validatorpk.PubKey{
		Type: validatorpk.Types.Secp256k1,
		Raw:  crypto.FromECDSAPub(&key.PublicKey),
	}
}

func newTestRegistry(t *testing.T, stakes map[idx.ValidatorID]int64) *Registry {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	r := NewRegistry(log)
	for id, stake := range stakes {
		require.NoError(t, r.Register(id, testPubKey(t), big.NewInt(stake)))
	}
	return r
}

func doublesignEvidence(offender idx.ValidatorID, height idx.Block) *inter.MisbehaviourProof {
	return &inter.MisbehaviourProof{
		ProposalDoublesign: &inter.ProposalDoublesign{
			Pair: [2]inter.SignedProposalRef{
				{Height: height, Proposer: offender, Hash: hash.Of([]byte("a"))},
				{Height: height, Proposer: offender, Hash: hash.Of([]byte("b"))},
			},
		},
	}
}

// TestRegister covers registration and its rejection paths.
func TestRegister(t *testing.T) {
	require := require.New(t)
	r := newTestRegistry(t, map[idx.ValidatorID]int64{1: 100})

	// Duplicate registration.
	require.ErrorIs(r.Register(1, testPubKey(t), big.NewInt(50)), ErrAlreadyRegistered)

	// Non-positive stake.
	require.ErrorIs(r.Register(2, testPubKey(t), big.NewInt(0)), ErrNonPositiveStake)
	require.ErrorIs(r.Register(2, testPubKey(t), big.NewInt(-5)), ErrNonPositiveStake)

	// Malformed public key.
	require.Error(r.Register(2, validatorpk.PubKey{Type: 0x42, Raw: []byte{1}}, big.NewInt(50)))

	snap := r.Snapshot()
	require.True(snap.IsActive(1))
	require.False(snap.IsActive(2))
	require.EqualValues(100, snap.TotalStake.Int64())
}

// TestSnapshotIsolation verifies that an obtained snapshot is immune to
// subsequent writes: the finalizer sees one consistent view per round.
func TestSnapshotIsolation(t *testing.T) {
	require := require.New(t)
	r := newTestRegistry(t, map[idx.ValidatorID]int64{1: 100, 2: 200})

	before := r.Snapshot()
	require.NoError(r.UpdateStake(2, big.NewInt(700)))
	after := r.Snapshot()

	// The old snapshot still shows the old stake and version.
	p, ok := before.Profile(2)
	require.True(ok)
	require.EqualValues(200, p.Stake.Int64())
	require.Less(before.Version, after.Version)

	p, ok = after.Profile(2)
	require.True(ok)
	require.EqualValues(900, p.Stake.Int64())

	// Mutating a snapshot's profile copy cannot reach the registry.
	p.Stake.SetInt64(1)
	fresh, _ := r.Snapshot().Profile(2)
	require.EqualValues(900, fresh.Stake.Int64())
}

// TestUpdateStake covers stake deltas and the positivity invariant.
func TestUpdateStake(t *testing.T) {
	require := require.New(t)
	r := newTestRegistry(t, map[idx.ValidatorID]int64{1: 100})

	require.NoError(r.UpdateStake(1, big.NewInt(-40)))
	p, _ := r.Snapshot().Profile(1)
	require.EqualValues(60, p.Stake.Int64())

	// Draining to zero or below is rejected and leaves stake untouched.
	require.ErrorIs(r.UpdateStake(1, big.NewInt(-60)), ErrNonPositiveStake)
	p, _ = r.Snapshot().Profile(1)
	require.EqualValues(60, p.Stake.Int64())

	require.ErrorIs(r.UpdateStake(9, big.NewInt(1)), ErrUnknownValidator)
}

// TestSlash verifies evidence checking, the stake penalty and exclusion from
// the active set.
func TestSlash(t *testing.T) {
	require := require.New(t)
	r := newTestRegistry(t, map[idx.ValidatorID]int64{1: 100, 2: 201})

	// Evidence naming a different offender is rejected.
	require.ErrorIs(r.Slash(1, doublesignEvidence(2, 5)), ErrWrongEvidence)

	// Self-consistent evidence slashes: stake halved, status marked,
	// excluded from the active set and from the stake total.
	require.NoError(r.Slash(2, doublesignEvidence(2, 5)))
	snap := r.Snapshot()
	p, _ := snap.Profile(2)
	require.True(p.IsSlashed())
	require.EqualValues(100, p.Stake.Int64())
	require.False(snap.IsActive(2))
	require.True(snap.IsActive(1))
	require.EqualValues(100, snap.TotalStake.Int64())

	// Slashing the same offender twice does not halve again.
	require.NoError(r.Slash(2, doublesignEvidence(2, 6)))
	p, _ = r.Snapshot().Profile(2)
	require.EqualValues(100, p.Stake.Int64())

	// Non-evidence is rejected.
	require.ErrorIs(r.Slash(1, &inter.MisbehaviourProof{}), ErrWrongEvidence)
	require.ErrorIs(r.Slash(1, nil), ErrWrongEvidence)
}

// TestSelectProposer verifies determinism, coverage and stake bias.
func TestSelectProposer(t *testing.T) {
	require := require.New(t)
	r := newTestRegistry(t, map[idx.ValidatorID]int64{1: 100, 2: 100, 3: 800})
	snap := r.Snapshot()

	// Determinism: the same (height, round, version) always picks the same
	// leader.
	a, err := SelectProposer(snap, 42, 0)
	require.NoError(err)
	b, err := SelectProposer(snap, 42, 0)
	require.NoError(err)
	require.Equal(a, b)

	// A timed-out round rotates: over many rounds, every validator leads
	// eventually and the heavy staker leads most often.
	counts := map[idx.ValidatorID]int{}
	for round := uint32(0); round < 200; round++ {
		id, err := SelectProposer(snap, 42, round)
		require.NoError(err)
		counts[id]++
	}
	require.Len(counts, 3)
	require.Greater(counts[3], counts[1])
	require.Greater(counts[3], counts[2])
	require.Greater(counts[3], 100) // 80% of stake, 200 rounds

	// Empty active set.
	empty := NewRegistry(logrus.New()).Snapshot()
	_, err = SelectProposer(empty, 1, 0)
	require.ErrorIs(err, ErrNoActiveValidators)
}

// TestAdjustDifficulty verifies retargeting direction and the per-step clamp.
func TestAdjustDifficulty(t *testing.T) {
	require := require.New(t)
	rules := poechain.DefaultDifficultyRules()

	target := rules.TargetBlockTime

	// On-target intervals leave difficulty unchanged.
	require.EqualValues(1000, AdjustDifficulty(1000, target, target, rules))

	// Fast blocks raise difficulty proportionally.
	require.EqualValues(2000, AdjustDifficulty(1000, target/2, target, rules))

	// Slow blocks lower it.
	require.EqualValues(500, AdjustDifficulty(1000, target*2, target, rules))

	// The swing is clamped to 4x per step in both directions.
	require.EqualValues(4000, AdjustDifficulty(1000, target/100, target, rules))
	require.EqualValues(250, AdjustDifficulty(1000, target*100, target, rules))

	// The floor holds even under extreme slowdowns.
	require.EqualValues(MinDifficulty, AdjustDifficulty(2, target*100, target, rules))

	// A zero observed interval must not divide by zero.
	require.EqualValues(8, AdjustDifficulty(2, 0, target, rules))
}

// TestDifficultyTracker verifies windowed retargeting from seal timestamps.
func TestDifficultyTracker(t *testing.T) {
	require := require.New(t)
	rules := poechain.FakeNetRules().Difficulty // 1s target, window 4

	tr := NewDifficultyTracker(rules, 1000)
	require.EqualValues(1000, tr.Current())

	// First seal only anchors the clock.
	at := inter.Timestamp(1_000_000_000)
	require.EqualValues(1000, tr.OnBlockSealed(at))

	// Blocks arriving at twice the target rate: no retarget until the
	// window fills, then difficulty doubles.
	half := rules.TargetBlockTime / 2
	for i := 0; i < 3; i++ {
		at += half
		require.EqualValues(1000, tr.OnBlockSealed(at))
	}
	at += half
	require.EqualValues(2000, tr.OnBlockSealed(at))
	require.EqualValues(2000, tr.Current())

	// Out-of-order seals are ignored.
	require.EqualValues(2000, tr.OnBlockSealed(at-1))

	// Blocks at half rate over the next window halve it back.
	double := rules.TargetBlockTime * 2
	for i := 0; i < 3; i++ {
		at += double
		require.EqualValues(2000, tr.OnBlockSealed(at))
	}
	at += double
	require.EqualValues(1000, tr.OnBlockSealed(at))
}
