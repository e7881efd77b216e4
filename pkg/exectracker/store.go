package exectracker

import "github.com/strataorch/orchestration/pkg/xtypes"

// MapStore is an in-memory Store, suitable for tests and for a standalone
// tracker whose blocks are supplied directly rather than read from a
// durable EE-exec-record store.
type MapStore struct {
	blocks map[xtypes.Hash]*BlockRecord
}

// NewMapStore returns an empty MapStore.
func NewMapStore() *MapStore {
	return &MapStore{blocks: make(map[xtypes.Hash]*BlockRecord)}
}

// Put installs rec, indexed by its own hash.
func (s *MapStore) Put(rec BlockRecord) {
	cp := rec
	s.blocks[rec.Hash] = &cp
}

// GetBlock implements Store.
func (s *MapStore) GetBlock(hash xtypes.Hash) (*BlockRecord, error) {
	return s.blocks[hash], nil
}
