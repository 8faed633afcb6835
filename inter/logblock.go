package inter

import (
	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
)

// LogBlockVersion is the current wire version of LogBlock.
const LogBlockVersion uint8 = 1

// TimeRange is the closed interval of receipt timestamps covered by a
// LogBlock.
type TimeRange struct {
	From Timestamp
	To   Timestamp
}

// LogBlock is a notarized batch of step receipts. The notary drains its
// pending queue atomically, anchors the ordered receipt hashes under a
// Merkle root, assigns the next monotonic height and signs
// (root, height, range). A LogBlock is immutable after signing and is
// referenced (never deleted) by downstream economic bundles.
type LogBlock struct {
	Version uint8
	Height  idx.Block
	// Root is the Merkle root over Receipts in stored order. It is always
	// recomputable from the list: MerkleRoot(Receipts) == Root.
	Root hash.Hash
	// Receipts is the ordered list of receipt hashes included in the batch.
	// A LogBlock never references the same receipt twice.
	Receipts []hash.Hash
	Count    uint32
	Range    TimeRange
	// NotarySig is the notary's Dilithium signature over SigningHash().
	NotarySig []byte
}

// MerkleRoot computes the Merkle root of an ordered hash list by pairwise
// domain-separated hashing. An odd leaf is paired with itself at each level.
// The root is a pure function of the list order: the same ordered list
// always yields the same root, and any reordering changes it.
func MerkleRoot(leaves []hash.Hash) hash.Hash {
	if len(leaves) == 0 {
		return hash.Hash{}
	}
	level := make([]hash.Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		next := make([]hash.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i] // odd leaf duplicated
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, DomainHash(MerkleNodeDomain, level[i].Bytes(), right.Bytes()))
		}
		level = next
	}
	return level[0]
}

// SigningHash is the digest the notary signs: the Merkle root bound to the
// block's height and covered time range.
func (b *LogBlock) SigningHash() hash.Hash {
	return DomainHash(LogBlockDomain,
		[]byte{b.Version},
		b.Root.Bytes(),
		b.Height.Bytes(),
		bigendian.Uint64ToBytes(uint64(b.Range.From)),
		bigendian.Uint64ToBytes(uint64(b.Range.To)),
	)
}

// ID is the canonical identifier of the LogBlock, used by bundles to cite
// it and by the double-citation guard.
func (b *LogBlock) ID() hash.Hash {
	return b.SigningHash()
}

// CheckIntegrity verifies that the stored root and count match the stored
// receipt-hash list.
func (b *LogBlock) CheckIntegrity() error {
	if int(b.Count) != len(b.Receipts) {
		return ErrHashMismatch
	}
	if MerkleRoot(b.Receipts) != b.Root {
		return ErrHashMismatch
	}
	return nil
}

// EstimateSize returns an approximate size of the block in bytes.
func (b *LogBlock) EstimateSize() int {
	// receipt hashes + root + fixed header fields + signature
	return len(b.Receipts)*32 + 32 + 8 + 4 + 16 + len(b.NotarySig)
}
