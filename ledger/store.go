package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/cenkalti/backoff/v4"

	"github.com/poechain/go-poechain/inter"
)

var (
	// ErrStorage wraps persistence failures. A retried write that exhausts
	// its backoff surfaces this, halting the affected stage instead of
	// silently dropping data.
	ErrStorage = errors.New("storage failure")

	// ErrNotFound is returned for lookups of absent heights.
	ErrNotFound = errors.New("not found")
)

// Store is the persistence interface of the pipeline. The engine behind it
// is external; the pipeline only appends and reads back.
type Store interface {
	AppendReceipt(r *inter.StepReceipt) error
	PutLogBlock(b *inter.LogBlock) error
	PutBlock(b *inter.MinedBlock) error

	GetBlock(h idx.Block) (*inter.MinedBlock, error)
	LatestBlock() (*inter.MinedBlock, error)
	LatestLogBlock() (*inter.LogBlock, error)
	ReceiptCount() int
}

// MemStore is the in-memory Store used by tests and fake networks.
type MemStore struct {
	mu        sync.RWMutex
	receipts  []*inter.StepReceipt
	logBlocks []*inter.LogBlock
	blocks    map[idx.Block]*inter.MinedBlock
	latest    idx.Block
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		blocks: make(map[idx.Block]*inter.MinedBlock),
	}
}

func (s *MemStore) AppendReceipt(r *inter.StepReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *MemStore) PutLogBlock(b *inter.LogBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logBlocks = append(s.logBlocks, b)
	return nil
}

func (s *MemStore) PutBlock(b *inter.MinedBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.Height] = b
	if b.Height > s.latest {
		s.latest = b.Height
	}
	return nil
}

func (s *MemStore) GetBlock(h idx.Block) (*inter.MinedBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[h]
	if !ok {
		return nil, fmt.Errorf("%w: block %d", ErrNotFound, h)
	}
	return b, nil
}

func (s *MemStore) LatestBlock() (*inter.MinedBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[s.latest]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *MemStore) LatestLogBlock() (*inter.LogBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.logBlocks) == 0 {
		return nil, ErrNotFound
	}
	return s.logBlocks[len(s.logBlocks)-1], nil
}

func (s *MemStore) ReceiptCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.receipts)
}

// RetryStore wraps a Store with bounded exponential backoff on writes.
// Reads are not retried; they are cheap to repeat at the call site. When a
// write exhausts its retries the error is wrapped as ErrStorage, which
// callers treat as a stage halt.
type RetryStore struct {
	Store
	maxRetries   uint64
	initialDelay time.Duration
}

// NewRetryStore wraps inner with up to maxRetries retries per write.
func NewRetryStore(inner Store, maxRetries uint64) *RetryStore {
	return &RetryStore{
		Store:        inner,
		maxRetries:   maxRetries,
		initialDelay: 10 * time.Millisecond,
	}
}

func (s *RetryStore) retry(op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initialDelay
	err := backoff.Retry(op, backoff.WithMaxRetries(bo, s.maxRetries))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (s *RetryStore) AppendReceipt(r *inter.StepReceipt) error {
	return s.retry(func() error { return s.Store.AppendReceipt(r) })
}

func (s *RetryStore) PutLogBlock(b *inter.LogBlock) error {
	return s.retry(func() error { return s.Store.PutLogBlock(b) })
}

func (s *RetryStore) PutBlock(b *inter.MinedBlock) error {
	return s.retry(func() error { return s.Store.PutBlock(b) })
}
