package inter

import (
	"errors"
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/rlp"
)

// ReceiptVersion is the current wire version of StepReceipt.
const ReceiptVersion uint8 = 1

// ErrBrokenChain is returned when a receipt's PrevHash does not match the
// hash of its predecessor in the origin's chain.
var ErrBrokenChain = errors.New("broken receipt chain")

// ErrHashMismatch is returned when a receipt's stored hash does not equal
// the hash recomputed from its content.
var ErrHashMismatch = errors.New("receipt hash mismatch")

// StepReceipt is the signed, hash-chained record of one infrastructure
// action. Receipts form an append-only chain per origin: each receipt's
// PrevHash is the Hash of the previous receipt from the same origin (or the
// zero hash for the chain's first receipt), so tampering with any receipt
// invalidates every subsequent hash in the chain.
//
// A receipt is immutable once hashed. Its Hash is a pure function of the
// content fields plus PrevHash; the Sig is the origin key's recoverable
// signature over Hash.
type StepReceipt struct {
	Version  uint8
	ReceiptID string
	Origin   Origin
	Op       string
	Time     Timestamp
	Usage    ResourceUsage
	Attested bool

	// PrevHash chains this receipt to the previous one of the same origin.
	PrevHash hash.Hash
	// Hash is the domain-separated digest of the content plus PrevHash.
	Hash hash.Hash
	// Sig is the origin's signature over Hash.
	Sig Signature
}

// receiptPreimage is the hashable subset of StepReceipt: everything except
// the hash itself and the signature. Kept as a separate struct so that the
// preimage encoding cannot accidentally drift from the stored fields.
type receiptPreimage struct {
	Version   uint8
	ReceiptID string
	Kind      uint8
	OriginID  string
	Op        string
	Time      Timestamp
	Usage     ResourceUsage
	Attested  bool
	PrevHash  hash.Hash
}

// ContentHash recomputes the receipt digest from its content and PrevHash.
// It never consults the stored Hash field, which makes it usable both for
// sealing new receipts and for integrity verification of stored ones.
func (r *StepReceipt) ContentHash() hash.Hash {
	raw, err := rlp.EncodeToBytes(&receiptPreimage{
		Version:   r.Version,
		ReceiptID: r.ReceiptID,
		Kind:      uint8(r.Origin.Kind),
		OriginID:  r.Origin.ID,
		Op:        r.Op,
		Time:      r.Time,
		Usage:     r.Usage,
		Attested:  r.Attested,
		PrevHash:  r.PrevHash,
	})
	if err != nil {
		panic("can't hash: " + err.Error())
	}
	return DomainHash(ReceiptDomain, raw)
}

// CheckIntegrity verifies that the stored Hash equals the recomputed
// content hash.
func (r *StepReceipt) CheckIntegrity() error {
	if r.ContentHash() != r.Hash {
		return ErrHashMismatch
	}
	return nil
}

// EstimateSize returns an approximate in-memory size of the receipt in
// bytes, for queue capacity accounting.
func (r *StepReceipt) EstimateSize() int {
	// 3 hashes/sig-sized blobs + 4 usage counters + timestamp + strings
	return 32 + 32 + SigSize + 4*8 + 8 +
		len(r.ReceiptID) + len(r.Origin.ID) + len(r.Op) + 2
}

// VerifyChain checks a single origin's receipt sequence: each receipt's
// content hash must match its stored hash, and each PrevHash must equal the
// predecessor's hash (the first receipt chains from firstPrev, normally the
// zero hash). Breaking any one receipt invalidates all that follow it.
func VerifyChain(firstPrev hash.Hash, receipts []*StepReceipt) error {
	prev := firstPrev
	for i, r := range receipts {
		if r.PrevHash != prev {
			return fmt.Errorf("%w: receipt %d of %s", ErrBrokenChain, i, r.Origin)
		}
		if err := r.CheckIntegrity(); err != nil {
			return fmt.Errorf("%w: receipt %d of %s", err, i, r.Origin)
		}
		prev = r.Hash
	}
	return nil
}
