// Package poe implements the economic calculator: it consumes notarized
// LogBlocks for a billing window, sums their resource usage, derives the
// complexity index Φ and the bounded efficiency score Γ, and proposes a
// token mint.
//
// All arithmetic is fixed-point integer math. Weights are parts per million,
// Φ and Γ are carried in micro-units and token amounts in micro-tokens, so
// compute() is a pure function: every node derives bit-identical Φ, Γ and
// mint from the same inputs regardless of its floating-point environment.
package poe

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/sirupsen/logrus"

	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/poechain"
)

var (
	// ErrEmptyWindow is returned when a bundle would cite no log blocks.
	ErrEmptyWindow = errors.New("billing window cites no log blocks")

	// ErrReceiptsMismatch is returned when a cited block's receipt list does
	// not reproduce the block's stored hash list.
	ErrReceiptsMismatch = errors.New("cited receipts do not match log block")

	// ErrNoProposerKey is returned when bundle signing is attempted without
	// a proposer key.
	ErrNoProposerKey = errors.New("proposer key unavailable")
)

// CitedBlock pairs a notarized LogBlock with the receipts it anchors, so the
// calculator can sum usage while verifying the receipts actually belong to
// the block.
type CitedBlock struct {
	Block    *inter.LogBlock
	Receipts []*inter.StepReceipt
}

// PhiMicro computes the complexity index Φ in micro-units: the sum over
// categories of weight·usage/scale, each term floored individually. The
// result saturates at MaxUint64 instead of wrapping; Γ approaches 1 there
// anyway.
func PhiMicro(sum inter.UsageSum, w poechain.UsageWeightsPpm, s poechain.UsageScales) uint64 {
	total := new(big.Int)
	term := func(weight, usage, scale uint64) {
		t := new(big.Int).SetUint64(weight)
		t.Mul(t, new(big.Int).SetUint64(usage))
		t.Quo(t, new(big.Int).SetUint64(scale))
		total.Add(total, t)
	}
	term(w.CPU, sum.CPUMillis, s.CPUMillis)
	term(w.Mem, sum.MemMBSec, s.MemMBSec)
	term(w.Storage, sum.StorageGBDayMilli, s.StorageGBDayMilli)
	term(w.Egress, sum.EgressMBMilli, s.EgressMBMilli)
	term(w.Receipts, sum.Receipts, s.Receipts)

	if !total.IsUint64() {
		return math.MaxUint64
	}
	return total.Uint64()
}

// GammaMicro maps Φ into the bounded efficiency score Γ = Φ/(1+Φ), in
// micro-units. The result is always in [0, 1_000_000): zero usage gives
// zero, and no finite Φ reaches one.
func GammaMicro(phiMicro uint64) uint64 {
	num := new(big.Int).SetUint64(phiMicro)
	num.Mul(num, new(big.Int).SetUint64(poechain.PpmDenominator))
	den := new(big.Int).SetUint64(phiMicro)
	den.Add(den, new(big.Int).SetUint64(poechain.PpmDenominator))
	num.Quo(num, den)
	return num.Uint64()
}

// MintMicro computes the proposed mint in micro-tokens:
// K_window · Γ · A, evaluated as floored integer products so the result is
// reproducible and strictly below the window budget.
func MintMicro(kWindowMicro, gammaMicro, adoptionMilli uint64) uint64 {
	m := new(big.Int).SetUint64(kWindowMicro)
	m.Mul(m, new(big.Int).SetUint64(gammaMicro))
	m.Quo(m, new(big.Int).SetUint64(poechain.MicroDenominator))
	m.Mul(m, new(big.Int).SetUint64(adoptionMilli))
	m.Quo(m, new(big.Int).SetUint64(poechain.MilliDenominator))
	if !m.IsUint64() {
		return math.MaxUint64
	}
	return m.Uint64()
}

// Calculator produces PoE bundles for billing windows. It shares a
// ConsumedSet with the finalizer so a LogBlock settles exactly once.
type Calculator struct {
	rules    poechain.Rules
	key      *mode3.PrivateKey
	consumed *ConsumedSet

	log *logrus.Entry
}

// NewCalculator creates a calculator signing proposals with the given
// Dilithium key. The rules must already be validated; weight normalization
// is a load-time check, never a compute-time one.
func NewCalculator(rules poechain.Rules, key *mode3.PrivateKey, consumed *ConsumedSet, log *logrus.Logger) *Calculator {
	return &Calculator{
		rules:    rules,
		key:      key,
		consumed: consumed,
		log:      log.WithField("module", "poe"),
	}
}

// Consumed exposes the shared consumed-block set.
func (c *Calculator) Consumed() *ConsumedSet {
	return c.consumed
}

// Compute builds the billing window's economic proposal from the cited
// blocks. It verifies block integrity and receipt membership, reserves the
// citations against double counting, sums usage and derives Φ, Γ and the
// mint. Any failure releases the reservation, leaving the blocks citable by
// a recomputed bundle.
func (c *Calculator) Compute(window inter.BillingWindow, cited []CitedBlock) (*inter.PoEBundle, error) {
	if len(cited) == 0 {
		return nil, ErrEmptyWindow
	}
	if c.key == nil {
		return nil, ErrNoProposerKey
	}

	ids := make([]hash.Hash, len(cited))
	for i, cb := range cited {
		if err := cb.Block.CheckIntegrity(); err != nil {
			return nil, err
		}
		if len(cb.Receipts) != len(cb.Block.Receipts) {
			return nil, fmt.Errorf("%w: block %d", ErrReceiptsMismatch, cb.Block.Height)
		}
		for j, r := range cb.Receipts {
			if r.Hash != cb.Block.Receipts[j] {
				return nil, fmt.Errorf("%w: block %d receipt %d", ErrReceiptsMismatch, cb.Block.Height, j)
			}
		}
		ids[i] = cb.Block.ID()
	}

	if err := c.consumed.Reserve(ids); err != nil {
		return nil, err
	}

	var sum inter.UsageSum
	for _, cb := range cited {
		for _, r := range cb.Receipts {
			sum.AddReceipt(r.Usage)
		}
	}

	eco := c.rules.Economy
	phi := PhiMicro(sum, eco.Weights, eco.Scales)
	gamma := GammaMicro(phi)
	mint := MintMicro(eco.KWindowMicro, gamma, eco.AdoptionMilli)

	b := &inter.PoEBundle{
		Version:    inter.BundleVersion,
		Window:     window,
		LogBlocks:  ids,
		UsageSum:   sum,
		PhiMicro:   phi,
		GammaMicro: gamma,
		MintMicro:  mint,
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(c.key, b.SigningHash().Bytes(), sig)
	b.ProposerSig = sig

	c.log.WithFields(logrus.Fields{
		"blocks":     len(ids),
		"receipts":   sum.Receipts,
		"phiMicro":   phi,
		"gammaMicro": gamma,
		"mintMicro":  mint,
	}).Info("computed bundle")

	return b, nil
}

// VerifyProposerSig checks a bundle's Dilithium signature against the
// proposer public key.
func VerifyProposerSig(b *inter.PoEBundle, pub *mode3.PublicKey) error {
	if !mode3.Verify(pub, b.SigningHash().Bytes(), b.ProposerSig) {
		return errors.New("invalid proposer signature")
	}
	return nil
}
