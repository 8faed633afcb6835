package poe

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/hash"
)

var (
	// ErrLogBlockConsumed is returned when a bundle cites a LogBlock that a
	// finalized bundle has already settled.
	ErrLogBlockConsumed = errors.New("log block already consumed")

	// ErrLogBlockReserved is returned when a bundle cites a LogBlock that an
	// in-flight bundle has reserved.
	ErrLogBlockReserved = errors.New("log block reserved by in-flight bundle")
)

// ConsumedSet tracks which LogBlocks have been settled by finalized bundles.
// It is the only mutable structure shared across billing windows, so it uses
// a two-phase discipline: Compute reserves the cited blocks, finalization
// commits them, and an abandoned consensus round releases them. A block can
// therefore never be counted twice, not even across round retries.
type ConsumedSet struct {
	mu       sync.RWMutex
	consumed map[hash.Hash]struct{}
	reserved map[hash.Hash]struct{}
}

// NewConsumedSet creates an empty consumed-block tracker.
func NewConsumedSet() *ConsumedSet {
	return &ConsumedSet{
		consumed: make(map[hash.Hash]struct{}),
		reserved: make(map[hash.Hash]struct{}),
	}
}

// Reserve marks the blocks as cited by an in-flight bundle. It is
// all-or-nothing: if any block is consumed or reserved, nothing is reserved
// and the matching error is returned.
func (s *ConsumedSet) Reserve(ids []hash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, ok := s.consumed[id]; ok {
			return fmt.Errorf("%w: %s", ErrLogBlockConsumed, id.String())
		}
		if _, ok := s.reserved[id]; ok {
			return fmt.Errorf("%w: %s", ErrLogBlockReserved, id.String())
		}
	}
	for _, id := range ids {
		s.reserved[id] = struct{}{}
	}
	return nil
}

// Commit moves reserved blocks to the consumed set. Called exactly once per
// finalized bundle.
func (s *ConsumedSet) Commit(ids []hash.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.reserved, id)
		s.consumed[id] = struct{}{}
	}
}

// Release frees reserved blocks after an abandoned round, making them
// citable by the window's recomputed bundle.
func (s *ConsumedSet) Release(ids []hash.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.reserved, id)
	}
}

// IsConsumed reports whether a finalized bundle has settled the block.
func (s *ConsumedSet) IsConsumed(id hash.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.consumed[id]
	return ok
}

// ConsumedCount returns the number of settled blocks, for the query surface.
func (s *ConsumedSet) ConsumedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.consumed)
}
