package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/hash"

	"github.com/poechain/go-poechain/inter"
)

var (
	// ErrPoolFull is the backpressure error: the pending pool is at capacity
	// and the transaction was not accepted.
	ErrPoolFull = errors.New("pending transaction pool is full")

	// ErrDuplicateTx is returned when a transaction is already pending.
	ErrDuplicateTx = errors.New("duplicate transaction")
)

// TxPool is the bounded FIFO of pending transactions. Submissions beyond
// capacity are rejected rather than buffered unboundedly.
type TxPool struct {
	mu       sync.Mutex
	pending  []*inter.Transaction
	seen     map[hash.Hash]struct{}
	capacity int
}

// NewTxPool creates a pool holding at most capacity transactions.
func NewTxPool(capacity int) *TxPool {
	return &TxPool{
		pending:  make([]*inter.Transaction, 0, capacity),
		seen:     make(map[hash.Hash]struct{}),
		capacity: capacity,
	}
}

// Add queues a transaction. The signature is checked at the boundary so the
// pool never holds an unverifiable entry.
func (p *TxPool) Add(tx *inter.Transaction) error {
	if err := tx.CheckSig(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id := tx.ID()
	if _, ok := p.seen[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTx, id.String())
	}
	if len(p.pending) >= p.capacity {
		return fmt.Errorf("%w: capacity %d", ErrPoolFull, p.capacity)
	}
	p.seen[id] = struct{}{}
	p.pending = append(p.pending, tx)
	return nil
}

// Take drains up to n transactions in FIFO order for block proposal.
func (p *TxPool) Take(n int) []*inter.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n > len(p.pending) {
		n = len(p.pending)
	}
	if n == 0 {
		return nil
	}
	out := make([]*inter.Transaction, n)
	copy(out, p.pending[:n])
	p.pending = append(p.pending[:0:0], p.pending[n:]...)
	for _, tx := range out {
		delete(p.seen, tx.ID())
	}
	return out
}

// Requeue puts transactions from an abandoned round back at the pool head,
// preserving order, so they are eligible for the next proposal.
func (p *TxPool) Requeue(txs []*inter.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := txs
	if overflow := len(p.pending) + len(txs) - p.capacity; overflow > 0 {
		kept = txs[:len(txs)-overflow]
	}
	for _, tx := range kept {
		p.seen[tx.ID()] = struct{}{}
	}
	p.pending = append(append([]*inter.Transaction{}, kept...), p.pending...)
}

// Len returns the number of pending transactions.
func (p *TxPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
