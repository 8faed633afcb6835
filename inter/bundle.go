package inter

import (
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/rlp"
)

// BundleVersion is the current wire version of PoEBundle.
const BundleVersion uint8 = 1

// BillingWindow is the half-open window [From, To) a bundle settles.
type BillingWindow struct {
	From Timestamp
	To   Timestamp
}

// Contains reports whether ts falls inside the window.
func (w BillingWindow) Contains(ts Timestamp) bool {
	return ts >= w.From && ts < w.To
}

// PoEBundle is one billing window's economic proposal: the set of cited
// LogBlocks, their summed resource usage, the complexity index Φ, the
// bounded efficiency Γ and the proposed mint amount.
//
// Φ, Γ and the mint are carried in fixed-point micro-units (1e-6) so that
// every node reproduces them bit-for-bit from the same inputs; see the poe
// package for the arithmetic. A bundle may cite a LogBlock only if no
// finalized bundle has cited it before, and it is consumed exactly once by
// block finalization.
type PoEBundle struct {
	Version uint8
	Window  BillingWindow
	// LogBlocks are the IDs of the cited log blocks, in citation order.
	LogBlocks []hash.Hash
	// UsageSum is the resource usage summed over all cited blocks' receipts.
	UsageSum UsageSum
	// PhiMicro is the complexity index Φ in micro-units (unbounded, >= 0).
	PhiMicro uint64
	// GammaMicro is the efficiency score Γ = Φ/(1+Φ) in micro-units,
	// always in [0, 1_000_000).
	GammaMicro uint64
	// MintMicro is the proposed mint in micro-tokens.
	MintMicro uint64
	// ProposerSig is the proposer's Dilithium signature over SigningHash().
	ProposerSig []byte
}

// bundlePreimage excludes the proposer signature from the signed content.
type bundlePreimage struct {
	Version    uint8
	Window     BillingWindow
	LogBlocks  []hash.Hash
	UsageSum   UsageSum
	PhiMicro   uint64
	GammaMicro uint64
	MintMicro  uint64
}

// SigningHash is the digest the proposer signs.
func (b *PoEBundle) SigningHash() hash.Hash {
	raw, err := rlp.EncodeToBytes(&bundlePreimage{
		Version:    b.Version,
		Window:     b.Window,
		LogBlocks:  b.LogBlocks,
		UsageSum:   b.UsageSum,
		PhiMicro:   b.PhiMicro,
		GammaMicro: b.GammaMicro,
		MintMicro:  b.MintMicro,
	})
	if err != nil {
		panic("can't hash: " + err.Error())
	}
	return DomainHash(BundleDomain, raw)
}

// ID is the canonical identifier of the bundle.
func (b *PoEBundle) ID() hash.Hash {
	return b.SigningHash()
}

// EstimateSize returns an approximate size of the bundle in bytes.
func (b *PoEBundle) EstimateSize() int {
	return len(b.LogBlocks)*32 + 5*8 + 2*8 + len(b.ProposerSig) + 2
}
