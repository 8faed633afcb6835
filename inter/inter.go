// Package inter defines the interchange data structures of the
// proof-of-execution pipeline: signed step receipts, notarized log blocks,
// economic bundles and consensus-finalized blocks. These types flow strictly
// forward between the pipeline stages and are immutable once hashed; every
// stage communicates by value, never by shared mutable reference.
//
// Hashing is domain-separated SHA-256: every structure hashes under its own
// domain tag so a receipt hash can never collide with, say, a merkle node or
// a block header. Preimages are canonical RLP encodings.
package inter

import (
	"crypto/sha256"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
)

// Domain tags for domain-separated hashing. A tag is prepended (with a '|'
// delimiter) to every hash preimage, so structures of different kinds can
// never produce colliding digests even from identical payload bytes.
const (
	ReceiptDomain    = "poe/receipt"
	MerkleNodeDomain = "poe/merkle"
	LogBlockDomain   = "poe/logblock"
	BundleDomain     = "poe/bundle"
	BlockDomain      = "poe/block"
	TxDomain         = "poe/tx"
	VoteDomain       = "poe/vote"
)

// Timestamp is a Unix timestamp in nanoseconds. It doubles as a duration in
// rule structures (e.g. a batching window of Timestamp(5 * time.Second)).
type Timestamp uint64

// FromTime converts a wall-clock time into a Timestamp.
func FromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixNano())
}

// Time converts the Timestamp back into a wall-clock time.
func (t Timestamp) Time() time.Time {
	return time.Unix(0, int64(t))
}

// MaxTimestamp returns the later of two timestamps.
func MaxTimestamp(x, y Timestamp) Timestamp {
	if x > y {
		return x
	}
	return y
}

// SigSize is the length of a recoverable secp256k1 signature (r ∥ s ∥ v).
const SigSize = 65

// Signature is a recoverable secp256k1 signature produced by an origin's or
// a validator's key. Notary and proposer signatures use a different scheme
// (Dilithium) and are carried as variable-length byte slices instead.
type Signature [SigSize]byte

// BytesToSignature converts a byte slice into a Signature, truncating or
// zero-padding to SigSize.
func BytesToSignature(b []byte) Signature {
	var sig Signature
	copy(sig[:], b)
	return sig
}

// Bytes returns the signature as a byte slice.
func (s Signature) Bytes() []byte {
	return s[:]
}

// DomainHash computes the domain-separated SHA-256 digest of the given
// chunks: SHA256(domain ∥ '|' ∥ chunk_0 ∥ ... ∥ chunk_n).
func DomainHash(domain string, chunks ...[]byte) hash.Hash {
	hasher := sha256.New()
	hasher.Write([]byte(domain))
	hasher.Write([]byte{'|'})
	for _, c := range chunks {
		hasher.Write(c)
	}
	return hash.BytesToHash(hasher.Sum(nil))
}
