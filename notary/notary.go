// Package notary implements the log aggregator: it batches pending step
// receipts into Merkle-anchored, height-ordered LogBlocks and signs them
// with the notary's Dilithium key.
//
// The pending queue is bounded. Submissions beyond capacity are rejected
// with a backpressure error instead of buffered unboundedly; callers decide
// whether to retry, shed or block. A batch is sealed when the queue reaches
// the size trigger or the time trigger elapses, whichever comes first, and
// the drain is atomic: no receipt is ever included in two blocks and none
// is dropped.
package notary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/sirupsen/logrus"

	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/poechain"
)

var (
	// ErrQueueFull is the backpressure error: the pending queue is at
	// capacity and the receipt was not accepted.
	ErrQueueFull = errors.New("pending receipt queue is full")

	// ErrDuplicateReceipt is returned when a receipt hash is already
	// pending or was already notarized.
	ErrDuplicateReceipt = errors.New("duplicate receipt")

	// ErrNoNotaryKey is returned when sealing is attempted without a
	// signing key. Receipts stay pending and are retried on the next
	// trigger.
	ErrNoNotaryKey = errors.New("notary key unavailable")
)

// Notary batches receipts into signed LogBlocks.
type Notary struct {
	rules poechain.Rules
	key   *mode3.PrivateKey

	// sealMu serializes sealers: the time ticker and size-triggered
	// SubmitAndSeal callers race otherwise, and two in-flight seals would
	// both read the same height.
	sealMu sync.Mutex

	mu      sync.Mutex
	pending []*inter.StepReceipt
	seen    map[hash.Hash]struct{}
	height  idx.Block

	// sealed retains the hashes of the last seenLimit sealed batches, the
	// dedup horizon. Hashes older than the horizon are dropped from seen,
	// keeping its size bounded across the notary's lifetime.
	sealed    [][]hash.Hash
	seenLimit int

	out chan<- *inter.LogBlock
	log *logrus.Entry
}

// defaultSeenLimit is the dedup horizon in sealed batches. Receipts
// redelivered within the horizon are rejected as duplicates; older ones are
// already anchored in a LogBlock and caught by their origin's hash chain.
const defaultSeenLimit = 64

// NewNotary creates a notary signing with the given Dilithium key. Sealed
// blocks are delivered on out.
func NewNotary(rules poechain.Rules, key *mode3.PrivateKey, out chan<- *inter.LogBlock, log *logrus.Logger) *Notary {
	return &Notary{
		rules:     rules,
		key:       key,
		pending:   make([]*inter.StepReceipt, 0, rules.Batching.MaxReceipts),
		seen:      make(map[hash.Hash]struct{}),
		seenLimit: defaultSeenLimit,
		out:       out,
		log:       log.WithField("module", "notary"),
	}
}

// Submit queues a receipt for notarization. It verifies the receipt's seal,
// rejects duplicates and applies backpressure at capacity. Returns true if
// the size trigger fired, meaning a caller-driven notary should seal now.
func (n *Notary) Submit(r *inter.StepReceipt) (full bool, err error) {
	if err := r.CheckIntegrity(); err != nil {
		return false, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.seen[r.Hash]; ok {
		return false, fmt.Errorf("%w: %s", ErrDuplicateReceipt, r.Hash.String())
	}
	if uint32(len(n.pending)) >= n.rules.Batching.Capacity {
		return false, fmt.Errorf("%w: capacity %d", ErrQueueFull, n.rules.Batching.Capacity)
	}

	n.seen[r.Hash] = struct{}{}
	n.pending = append(n.pending, r)
	return uint32(len(n.pending)) >= n.rules.Batching.MaxReceipts, nil
}

// Seal drains up to one batch from the pending queue into a signed LogBlock.
// Returns nil with no error when the queue is empty. On signing failure the
// drained receipts are returned to the front of the queue, so the next
// trigger retries exactly the same batch. Concurrent sealers are serialized:
// only one batch is in flight at a time, so heights are strictly increasing.
func (n *Notary) Seal() (*inter.LogBlock, error) {
	n.sealMu.Lock()
	defer n.sealMu.Unlock()

	n.mu.Lock()
	batch := n.drainLocked()
	if len(batch) == 0 {
		n.mu.Unlock()
		return nil, nil
	}
	height := n.height + 1
	n.mu.Unlock()

	b := buildBlock(height, batch)

	if n.key == nil {
		n.requeue(batch)
		return nil, ErrNoNotaryKey
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(n.key, b.SigningHash().Bytes(), sig)
	b.NotarySig = sig

	n.mu.Lock()
	n.height = height
	n.sealed = append(n.sealed, b.Receipts)
	if len(n.sealed) > n.seenLimit {
		for _, h := range n.sealed[0] {
			delete(n.seen, h)
		}
		n.sealed = n.sealed[1:]
	}
	n.mu.Unlock()

	n.log.WithFields(logrus.Fields{
		"height":   uint64(height),
		"receipts": b.Count,
	}).Info("sealed log block")
	return b, nil
}

// drainLocked removes up to MaxReceipts receipts from the queue head.
// Caller holds n.mu.
func (n *Notary) drainLocked() []*inter.StepReceipt {
	take := len(n.pending)
	if max := int(n.rules.Batching.MaxReceipts); take > max {
		take = max
	}
	if take == 0 {
		return nil
	}
	batch := make([]*inter.StepReceipt, take)
	copy(batch, n.pending[:take])
	n.pending = append(n.pending[:0:0], n.pending[take:]...)
	return batch
}

// requeue puts a failed batch back at the queue head, preserving order.
func (n *Notary) requeue(batch []*inter.StepReceipt) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = append(batch, n.pending...)
}

// buildBlock assembles an unsigned LogBlock over the batch in drain order.
func buildBlock(height idx.Block, batch []*inter.StepReceipt) *inter.LogBlock {
	leaves := make([]hash.Hash, len(batch))
	rng := inter.TimeRange{From: batch[0].Time, To: batch[0].Time}
	for i, r := range batch {
		leaves[i] = r.Hash
		if r.Time < rng.From {
			rng.From = r.Time
		}
		if r.Time > rng.To {
			rng.To = r.Time
		}
	}
	return &inter.LogBlock{
		Version:  inter.LogBlockVersion,
		Height:   height,
		Root:     inter.MerkleRoot(leaves),
		Receipts: leaves,
		Count:    uint32(len(leaves)),
		Range:    rng,
	}
}

// Run drives the notary until the context is cancelled: it seals on the
// time trigger and emits sealed blocks on the out channel. The size trigger
// is handled by SubmitAndSeal callers or by the next tick, whichever comes
// first.
func (n *Notary) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(n.rules.Batching.MaxPeriod))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := n.sealAndEmit(ctx); err != nil {
				if errors.Is(err, ErrNoNotaryKey) {
					return err
				}
				n.log.WithError(err).Warn("seal failed, receipts stay pending")
			}
		}
	}
}

// SubmitAndSeal submits a receipt and immediately seals if the size trigger
// fired. It is the path used by the node pipeline. An error means the
// receipt was rejected; a seal failure after a successful submit leaves the
// batch pending for the next trigger, same as the ticker path.
func (n *Notary) SubmitAndSeal(ctx context.Context, r *inter.StepReceipt) error {
	full, err := n.Submit(r)
	if err != nil {
		return err
	}
	if full {
		if err := n.sealAndEmit(ctx); err != nil {
			n.log.WithError(err).Warn("seal failed, receipts stay pending")
		}
	}
	return nil
}

func (n *Notary) sealAndEmit(ctx context.Context) error {
	b, err := n.Seal()
	if err != nil || b == nil {
		return err
	}
	select {
	case n.out <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PendingCount returns the current pending queue length, for the query
// surface.
func (n *Notary) PendingCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// Height returns the height of the last sealed LogBlock.
func (n *Notary) Height() idx.Block {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.height
}

// VerifyNotarySig checks a LogBlock's Dilithium signature against the
// notary public key.
func VerifyNotarySig(b *inter.LogBlock, pub *mode3.PublicKey) error {
	if !mode3.Verify(pub, b.SigningHash().Bytes(), b.NotarySig) {
		return errors.New("invalid notary signature")
	}
	return nil
}
