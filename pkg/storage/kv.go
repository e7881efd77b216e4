// Package storage defines the persistence traits spec §6 lists — L1 DB,
// OL/L2 DB, OL-state DB, ASM DB, checkpoint DB, proof DB, broadcast/writer
// DB — plus a generic key-value engine backing all of them, the way the
// teacher's pkg/database/repositories.go bundles per-concern repositories
// behind one struct. No specific storage engine is mandated (spec §1 "file
// backed key-value storage engine selection" is explicitly out of scope),
// so every trait here is defined against the KV interface rather than a
// named database product.
package storage

import dbm "github.com/cometbft/cometbft-db"

// KV is the minimal key-value contract every trait in this package is built
// on, mirroring the teacher's pkg/ledger.KV but widened with Has/Delete/
// Iterate since several traits here need range scans (e.g. manifest-by-height
// prefix scans) that pkg/ledger.KV's callers never needed.
type KV interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// Iterate calls fn for every key in [start, end) in ascending order,
	// stopping early if fn returns false.
	Iterate(start, end []byte, fn func(key, value []byte) bool) error
}

// CometKV adapts a github.com/cometbft/cometbft-db DB (already a teacher
// dependency, via pkg/kvdb.KVAdapter, left there as a narrower ledger-only
// wrapper) into the wider KV interface this package's traits need.
type CometKV struct {
	db dbm.DB
}

// NewCometKV wraps db.
func NewCometKV(db dbm.DB) *CometKV { return &CometKV{db: db} }

func (c *CometKV) Get(key []byte) ([]byte, error) { return c.db.Get(key) }

func (c *CometKV) Has(key []byte) (bool, error) { return c.db.Has(key) }

func (c *CometKV) Set(key, value []byte) error { return c.db.SetSync(key, value) }

func (c *CometKV) Delete(key []byte) error { return c.db.DeleteSync(key) }

func (c *CometKV) Iterate(start, end []byte, fn func(key, value []byte) bool) error {
	it, err := c.db.Iterator(start, end)
	if err != nil {
		return err
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		if !fn(it.Key(), it.Value()) {
			break
		}
	}
	return it.Error()
}

// MemKV is an in-memory KV, suitable for tests and for ephemeral worker state
// that never survives a restart.
type MemKV struct {
	data map[string][]byte
	keys []string // insertion order is irrelevant; Iterate sorts a copy on each call
}

// NewMemKV returns an empty MemKV.
func NewMemKV() *MemKV { return &MemKV{data: make(map[string][]byte)} }

func (m *MemKV) Get(key []byte) ([]byte, error) { return m.data[string(key)], nil }

func (m *MemKV) Has(key []byte) (bool, error) {
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *MemKV) Set(key, value []byte) error {
	k := string(key)
	if _, exists := m.data[k]; !exists {
		m.keys = append(m.keys, k)
	}
	m.data[k] = append([]byte{}, value...)
	return nil
}

func (m *MemKV) Delete(key []byte) error {
	k := string(key)
	delete(m.data, k)
	for i, existing := range m.keys {
		if existing == k {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemKV) Iterate(start, end []byte, fn func(key, value []byte) bool) error {
	sorted := append([]string{}, m.keys...)
	insertionSort(sorted)
	for _, k := range sorted {
		if start != nil && k < string(start) {
			continue
		}
		if end != nil && k >= string(end) {
			continue
		}
		if !fn([]byte(k), m.data[k]) {
			break
		}
	}
	return nil
}

// insertionSort keeps MemKV dependency-free; its key sets are small (test
// fixtures and single-process worker state), so O(n^2) is not a concern.
func insertionSort(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
