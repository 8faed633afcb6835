// This file contains the MinedBlock structure, the finalized unit of the
// chain. A mined block binds one or more PoE bundles (the economic layer:
// cited log blocks, usage sums and the mint) together with plain token
// transfers, the validator signature set that finalized it, and the fee
// split applied to the mint.
//
// Key concepts:
//   - MinedBlock: A finalized block carrying bundles, transactions and votes
//   - ValidatorSig: One validator's recoverable signature over the block
//   - FeeSplit: The four-way division of the protocol fee taken from mint
//
// A block is only valid once the accumulated stake behind its ValidatorSigs
// reaches quorum; StakeWeight records the exact stake that finalized it so
// the decision can be re-audited without replaying the validator set.

package inter

import (
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/rlp"
)

// BlockVersion is the current wire version of MinedBlock.
const BlockVersion uint8 = 1

// FeeSplit is the division of the protocol fee charged against a block's
// mint. All fields are micro-tokens. The four parts always sum exactly to
// the total fee: locked, spendable and owner are computed by flooring ppm
// division, and treasury absorbs the remainder.
type FeeSplit struct {
	// Locked is the part credited to the proposer's locked balance.
	Locked uint64

	// Spendable is the part credited to the proposer's spendable balance.
	Spendable uint64

	// Owner is the part credited to the network owner account.
	Owner uint64

	// Treasury is the part credited to the treasury, including any rounding
	// remainder left by the other three parts.
	Treasury uint64
}

// Total returns the sum of all four fee parts.
func (f FeeSplit) Total() uint64 {
	return f.Locked + f.Spendable + f.Owner + f.Treasury
}

// ValidatorSig is one validator's recoverable secp256k1 signature over a
// block's signing hash. The validator ID is carried alongside so the vote
// can be matched against the registry without trial recovery.
type ValidatorSig struct {
	Validator idx.ValidatorID
	Sig       Signature
}

// MinedBlock is a finalized block. Unlike work-race chains where the first
// valid solution wins, blocks here are finalized by a stake-weighted quorum
// of validator signatures over the signing hash.
type MinedBlock struct {
	Version uint8

	// Height is the block's position in the chain; heights are contiguous
	// and strictly increasing from genesis.
	Height idx.Block

	// Parent is the ID of the previous block, or the zero hash at genesis.
	Parent hash.Hash

	// Time is the proposer-assigned timestamp of the block.
	Time Timestamp

	// Proposer is the validator that assembled and proposed this block.
	Proposer idx.ValidatorID

	// Bundles are the PoE bundles settled by this block, in proposal order.
	// Each cited log block is consumed here and may never be cited again.
	Bundles []*PoEBundle

	// Txs are the plain token transfers included in this block.
	Txs []*Transaction

	// Sigs are the validator signatures that finalized the block. The set
	// is only meaningful once its accumulated stake reaches quorum; it is
	// excluded from the signing hash since it is collected over the hash.
	Sigs []ValidatorSig

	// StakeWeight is the total stake behind Sigs at finalization time.
	StakeWeight uint64

	// MintMicro is the total mint of the block, the sum of its bundles'
	// mints, in micro-tokens.
	MintMicro uint64

	// Fees is the protocol fee split applied against MintMicro.
	Fees FeeSplit
}

// blockPreimage is the signed content: everything except the vote set and
// the stake tally, which are accumulated over the hash itself.
type blockPreimage struct {
	Version   uint8
	Height    idx.Block
	Parent    hash.Hash
	Time      Timestamp
	Proposer  idx.ValidatorID
	Bundles   []*PoEBundle
	Txs       []*Transaction
	MintMicro uint64
	Fees      FeeSplit
}

// SigningHash is the digest validators sign when voting for the block.
func (b *MinedBlock) SigningHash() hash.Hash {
	raw, err := rlp.EncodeToBytes(&blockPreimage{
		Version:   b.Version,
		Height:    b.Height,
		Parent:    b.Parent,
		Time:      b.Time,
		Proposer:  b.Proposer,
		Bundles:   b.Bundles,
		Txs:       b.Txs,
		MintMicro: b.MintMicro,
		Fees:      b.Fees,
	})
	if err != nil {
		panic("can't hash: " + err.Error())
	}
	return DomainHash(BlockDomain, raw)
}

// ID is the canonical identifier of the block.
func (b *MinedBlock) ID() hash.Hash {
	return b.SigningHash()
}

// EstimateSize returns an approximate size of the block in bytes. The
// estimate is used for memory accounting and transfer planning; it does not
// match the RLP-encoded size exactly.
func (b *MinedBlock) EstimateSize() int {
	size := 1 + 8 + 32 + 8 + 4 + 8 + 8 + 4*8
	for _, bundle := range b.Bundles {
		size += bundle.EstimateSize()
	}
	for _, tx := range b.Txs {
		size += tx.EstimateSize()
	}
	size += len(b.Sigs) * (4 + SigSize)
	return size
}
