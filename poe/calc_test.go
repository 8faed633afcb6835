package poe

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/poechain/go-poechain/emitter"
	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/notary"
	"github.com/poechain/go-poechain/poechain"
)

func newTestCalculator(t *testing.T) (*Calculator, *mode3.PublicKey) {
	t.Helper()
	pub, priv, err := mode3.GenerateKey(rand.Reader)
	require.NoError(t, err)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewCalculator(poechain.MainNetRules(), priv, NewConsumedSet(), log), pub
}

// citedBlocks notarizes one batch of receipts with the given usage records
// and returns it as a citation.
func citedBlocks(t *testing.T, usages []inter.ResourceUsage) []CitedBlock {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	em := emitter.NewEmitter(poechain.MainNetRules(), key, log)

	_, notaryKey, err := mode3.GenerateKey(rand.Reader)
	require.NoError(t, err)
	nt := notary.NewNotary(poechain.MainNetRules(), notaryKey, make(chan *inter.LogBlock, 1), log)

	origin := inter.Origin{Kind: inter.OriginContainer, ID: "c1"}
	base := inter.FromTime(time.Now())
	receipts := make([]*inter.StepReceipt, 0, len(usages))
	for i, u := range usages {
		r, err := em.EmitReceipt(emitter.ExecutionContext{
			Origin: origin,
			Op:     "exec",
			Usage:  u,
			Time:   base + inter.Timestamp(i),
		})
		require.NoError(t, err)
		_, err = nt.Submit(r)
		require.NoError(t, err)
		receipts = append(receipts, r)
	}
	b, err := nt.Seal()
	require.NoError(t, err)
	return []CitedBlock{{Block: b, Receipts: receipts}}
}

// TestGoldenVector pins the consensus-critical fixed-point arithmetic:
// usage (cpu=490ms, mem=1000MB·s, egress=2.000MB, 10 receipts) under default
// weights and scales yields Φ=0.3715 and Γ≈0.270871 exactly in micro-units.
func TestGoldenVector(t *testing.T) {
	require := require.New(t)
	eco := poechain.DefaultEconomyRules()

	sum := inter.UsageSum{
		ResourceUsage: inter.ResourceUsage{
			CPUMillis:     490,
			MemMBSec:      1000,
			EgressMBMilli: 2000,
		},
		Receipts: 10,
	}

	phi := PhiMicro(sum, eco.Weights, eco.Scales)
	require.EqualValues(371_500, phi)

	gamma := GammaMicro(phi)
	require.EqualValues(270_871, gamma)

	// Mint = 1000 tokens · Γ · 1.0 = 270.871 tokens.
	mint := MintMicro(eco.KWindowMicro, gamma, eco.AdoptionMilli)
	require.EqualValues(270_871_000, mint)
}

// TestGammaBounds verifies Γ ∈ [0, 1) across the Φ range.
func TestGammaBounds(t *testing.T) {
	require := require.New(t)

	require.EqualValues(0, GammaMicro(0))
	require.Less(GammaMicro(poechain.PpmDenominator), poechain.PpmDenominator) // Φ=1 → Γ=0.5
	require.EqualValues(500_000, GammaMicro(poechain.PpmDenominator))

	// Even an absurd Φ stays strictly below one.
	require.Less(GammaMicro(1<<62), poechain.PpmDenominator)

	// Γ is monotonic in Φ.
	require.LessOrEqual(GammaMicro(100), GammaMicro(200))
}

// TestComputeDeterminism verifies that compute is a pure function of its
// inputs: two calculators fed identical citations derive bit-identical
// economics.
func TestComputeDeterminism(t *testing.T) {
	require := require.New(t)
	usages := []inter.ResourceUsage{
		{CPUMillis: 412, MemMBSec: 265, EgressMBMilli: 1200},
		{CPUMillis: 78, StorageGBDayMilli: 500},
	}
	window := inter.BillingWindow{From: 0, To: inter.FromTime(time.Now())}

	cited := citedBlocks(t, usages)
	calcA, _ := newTestCalculator(t)
	calcB, _ := newTestCalculator(t)

	a, err := calcA.Compute(window, cited)
	require.NoError(err)
	b, err := calcB.Compute(window, cited)
	require.NoError(err)

	require.Equal(a.PhiMicro, b.PhiMicro)
	require.Equal(a.GammaMicro, b.GammaMicro)
	require.Equal(a.MintMicro, b.MintMicro)
	require.Equal(a.UsageSum, b.UsageSum)
	// The signed digest is identical too; only the signatures differ by key.
	require.Equal(a.SigningHash(), b.SigningHash())
}

// TestComputeSignsBundle verifies the proposal signature and usage summing.
func TestComputeSignsBundle(t *testing.T) {
	require := require.New(t)
	calc, pub := newTestCalculator(t)
	cited := citedBlocks(t, []inter.ResourceUsage{
		{CPUMillis: 100},
		{CPUMillis: 200, MemMBSec: 50},
	})
	window := inter.BillingWindow{From: 0, To: inter.FromTime(time.Now())}

	b, err := calc.Compute(window, cited)
	require.NoError(err)

	require.EqualValues(300, b.UsageSum.CPUMillis)
	require.EqualValues(50, b.UsageSum.MemMBSec)
	require.EqualValues(2, b.UsageSum.Receipts)
	require.NoError(VerifyProposerSig(b, pub))
}

// TestDoubleCitation verifies that a LogBlock can be settled at most once,
// including across abandoned rounds.
func TestDoubleCitation(t *testing.T) {
	require := require.New(t)
	calc, _ := newTestCalculator(t)
	cited := citedBlocks(t, []inter.ResourceUsage{{CPUMillis: 10}})
	window := inter.BillingWindow{From: 0, To: inter.FromTime(time.Now())}

	b1, err := calc.Compute(window, cited)
	require.NoError(err)

	// While the first bundle is in flight, the citation is reserved.
	_, err = calc.Compute(window, cited)
	require.ErrorIs(err, ErrLogBlockReserved)

	// An abandoned round releases the citation for recomputation.
	calc.Consumed().Release(b1.LogBlocks)
	b2, err := calc.Compute(window, cited)
	require.NoError(err)
	require.Equal(b1.SigningHash(), b2.SigningHash())

	// Finalization commits it for good.
	calc.Consumed().Commit(b2.LogBlocks)
	_, err = calc.Compute(window, cited)
	require.ErrorIs(err, ErrLogBlockConsumed)
	require.True(calc.Consumed().IsConsumed(b2.LogBlocks[0]))
}

// TestComputeRejectsMismatch verifies receipt-membership checking.
func TestComputeRejectsMismatch(t *testing.T) {
	require := require.New(t)
	calc, _ := newTestCalculator(t)
	window := inter.BillingWindow{From: 0, To: inter.FromTime(time.Now())}

	// Empty window.
	_, err := calc.Compute(window, nil)
	require.ErrorIs(err, ErrEmptyWindow)

	// Receipt list that does not match the block's hash list.
	cited := citedBlocks(t, []inter.ResourceUsage{{CPUMillis: 10}, {CPUMillis: 20}})
	cited[0].Receipts = cited[0].Receipts[:1]
	_, err = calc.Compute(window, cited)
	require.ErrorIs(err, ErrReceiptsMismatch)

	// A failed compute must not leave a reservation behind.
	cited = citedBlocks(t, []inter.ResourceUsage{{CPUMillis: 10}})
	tampered := *cited[0].Block
	tampered.Count++
	_, err = calc.Compute(window, []CitedBlock{{Block: &tampered, Receipts: cited[0].Receipts}})
	require.Error(err)
	_, err = calc.Compute(window, cited)
	require.NoError(err)
}
