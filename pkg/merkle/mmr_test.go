package merkle

import (
	"bytes"
	"fmt"
	"testing"
)

func leafData(i int) []byte {
	return []byte(fmt.Sprintf("leaf-%d", i))
}

func TestMMRRootChangesOnAppend(t *testing.T) {
	m := NewMMR()
	var roots [][]byte
	for i := 0; i < 8; i++ {
		if _, err := m.AppendLeaf(leafData(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		root := m.Root()
		if root == nil {
			t.Fatalf("root is nil after appending leaf %d", i)
		}
		for _, prior := range roots {
			if bytes.Equal(prior, root) {
				t.Fatalf("root did not change after appending leaf %d", i)
			}
		}
		roots = append(roots, root)
	}
	if m.NumLeaves() != 8 {
		t.Fatalf("expected 8 leaves, got %d", m.NumLeaves())
	}
}

func TestMMRProofRoundTrip(t *testing.T) {
	m := NewMMR()
	const n = 13 // deliberately not a power of two: exercises multiple peaks
	for i := 0; i < n; i++ {
		if _, err := m.AppendLeaf(leafData(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	root := m.Root()
	for i := 0; i < n; i++ {
		proof, err := m.GenerateProof(i)
		if err != nil {
			t.Fatalf("generate proof %d: %v", i, err)
		}
		ok, err := VerifyMMRProof(leafData(i), proof, root)
		if err != nil {
			t.Fatalf("verify proof %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("proof %d did not verify", i)
		}
	}
}

func TestMMRProofRejectsWrongLeaf(t *testing.T) {
	m := NewMMR()
	for i := 0; i < 5; i++ {
		if _, err := m.AppendLeaf(leafData(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	root := m.Root()
	proof, err := m.GenerateProof(2)
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}
	ok, err := VerifyMMRProof(leafData(3), proof, root)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("proof for leaf 2 should not verify against leaf 3's data")
	}
}

func TestMMRGenerateProofsBatch(t *testing.T) {
	m := NewMMR()
	for i := 0; i < 20; i++ {
		if _, err := m.AppendLeaf(leafData(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	root := m.Root()
	idxs := []int{0, 5, 11, 19}
	proofs, err := m.GenerateProofs(idxs)
	if err != nil {
		t.Fatalf("generate proofs: %v", err)
	}
	for i, idx := range idxs {
		ok, err := VerifyMMRProof(leafData(idx), proofs[i], root)
		if err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("batch proof for leaf %d did not verify", idx)
		}
	}
}

func TestMMRPopLeaf(t *testing.T) {
	m := NewMMR()
	for i := 0; i < 4; i++ {
		if _, err := m.AppendLeaf(leafData(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	rootBefore := m.Root()

	if _, err := m.AppendLeaf(leafData(4)); err != nil {
		t.Fatalf("append 4: %v", err)
	}
	if err := m.PopLeaf(); err != nil {
		t.Fatalf("pop: %v", err)
	}
	if m.NumLeaves() != 4 {
		t.Fatalf("expected 4 leaves after pop, got %d", m.NumLeaves())
	}
	if !bytes.Equal(m.Root(), rootBefore) {
		t.Fatalf("root after pop does not match root before the popped append")
	}
}

func TestMMRPopEmptyErrors(t *testing.T) {
	m := NewMMR()
	if err := m.PopLeaf(); err != ErrMMREmpty {
		t.Fatalf("expected ErrMMREmpty, got %v", err)
	}
}

func TestMMRCompactRoundTrip(t *testing.T) {
	m := NewMMR()
	for i := 0; i < 10; i++ {
		if _, err := m.AppendLeaf(leafData(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	root := m.Root()
	c := m.ToCompact()

	m2, err := MMRFromCompact(c)
	if err != nil {
		t.Fatalf("from compact: %v", err)
	}
	if !bytes.Equal(m2.Root(), root) {
		t.Fatalf("compacted MMR root mismatch")
	}
	if m2.NumLeaves() != 10 {
		t.Fatalf("expected 10 leaves, got %d", m2.NumLeaves())
	}

	// Appending past a compacted state must still extend the root correctly.
	if _, err := m.AppendLeaf(leafData(10)); err != nil {
		t.Fatalf("append to original: %v", err)
	}
	if _, err := m2.AppendLeaf(leafData(10)); err != nil {
		t.Fatalf("append to compacted: %v", err)
	}
	if !bytes.Equal(m.Root(), m2.Root()) {
		t.Fatalf("roots diverge after appending past a compaction point")
	}
}

func TestMMREmptyRootIsNil(t *testing.T) {
	m := NewMMR()
	if m.Root() != nil {
		t.Fatalf("expected nil root for an empty MMR")
	}
}
