// Package memstore is an in-memory store.Store, used by tests and by
// callers that want a tree scoped to a single process lifetime.
package memstore

import (
	"sync"

	"cowtree/pkg/bnode"
	"cowtree/pkg/store"
)

// Store is a map-backed store.Store. The zero value is not usable; use New.
type Store struct {
	mu           sync.Mutex
	blocks       map[bnode.NodeId][]byte
	nextID       bnode.NodeId
	maxBlockSize uint32
	closed       bool
}

// New returns an empty Store with the given block size ceiling.
func New(maxBlockSize uint32) *Store {
	return &Store{
		blocks:       make(map[bnode.NodeId][]byte),
		nextID:       1,
		maxBlockSize: maxBlockSize,
	}
}

func (s *Store) AllocateIDs(n int) ([]bnode.NodeId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	ids := make([]bnode.NodeId, n)
	for i := 0; i < n; i++ {
		ids[i] = s.nextID
		s.nextID++
	}
	return ids, nil
}

func (s *Store) Get(id bnode.NodeId) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	b, ok := s.blocks[id]
	if !ok {
		return nil, store.ErrBlockNotFound
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (s *Store) PutAll(blocks []store.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	for _, b := range blocks {
		if uint32(len(b.Bytes)) > s.maxBlockSize {
			return store.ErrBlockTooLarge
		}
	}
	for _, b := range blocks {
		cp := make([]byte, len(b.Bytes))
		copy(cp, b.Bytes)
		s.blocks[b.ID] = cp
	}
	return nil
}

func (s *Store) DeleteAll(ids []bnode.NodeId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	for _, id := range ids {
		delete(s.blocks, id)
	}
	return nil
}

func (s *Store) MaxBlockSize() uint32 {
	return s.maxBlockSize
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.blocks = nil
	return nil
}

// Len reports the number of live blocks. Test helper, not part of
// store.Store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks)
}
