package checkpoint

import (
	"crypto/sha256"
	"encoding/binary"
)

// RollingHash verifies an L1->L2 message range by folding each range member's
// commitment into a single digest: init with the range's metadata (its L1
// height bounds), then fold SHA-256(prev || commitment) per member in range
// order. Two different ranges folding the same commitment sequence can never
// collide since the starting digest is range-specific.
type RollingHash struct {
	digest [32]byte
}

// NewRollingHash seeds the fold with the L1 height bounds the range covers.
func NewRollingHash(fromL1Height, toL1Height uint64) *RollingHash {
	var meta [16]byte
	binary.BigEndian.PutUint64(meta[0:8], fromL1Height)
	binary.BigEndian.PutUint64(meta[8:16], toL1Height)
	return &RollingHash{digest: sha256.Sum256(meta[:])}
}

// Fold folds one commitment into the running digest.
func (r *RollingHash) Fold(commitment [32]byte) {
	h := sha256.New()
	h.Write(r.digest[:])
	h.Write(commitment[:])
	copy(r.digest[:], h.Sum(nil))
}

// Digest returns the current folded digest.
func (r *RollingHash) Digest() [32]byte { return r.digest }

// FoldRange folds an ordered commitment sequence over a fresh RollingHash and
// returns the resulting digest, for one-shot verification callers.
func FoldRange(fromL1Height, toL1Height uint64, commitments [][32]byte) [32]byte {
	rh := NewRollingHash(fromL1Height, toL1Height)
	for _, c := range commitments {
		rh.Fold(c)
	}
	return rh.Digest()
}
