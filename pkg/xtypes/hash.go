// Package xtypes defines the fixed-width identifier and hash types shared across
// the orchestration, anchor-state, and execution-environment packages.
package xtypes

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// HashSize is the width in bytes of every content-addressed identifier in this system.
const HashSize = 32

// Hash is an opaque 32-byte content-addressed identifier, usually a domain-tagged
// SHA-256 digest.
type Hash [HashSize]byte

// ZeroHash is the all-zero sentinel used as a genesis parent / absent reference.
var ZeroHash Hash

// IsZero reports whether h is the all-zero sentinel.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String returns the hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of h's bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// HashFromBytes builds a Hash from a byte slice, erroring if the length is wrong.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, errors.New("xtypes: hash must be 32 bytes")
	}
	copy(h[:], b)
	return h, nil
}

// HashFromHex parses a hex-encoded hash.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	return HashFromBytes(b)
}

// DigestTagged computes a domain-separated SHA-256 digest: SHA256(tag || data...).
// Domain separation prevents a leaf hash from ever colliding with a node hash or a
// hash computed for an unrelated purpose, per spec §4.2.
func DigestTagged(tag string, data ...[]byte) Hash {
	h := sha256.New()
	h.Write([]byte(tag))
	for _, d := range data {
		h.Write(d)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// CombineHashes concatenates and hashes multiple byte slices under a tag — used for
// composite identifiers built from several fields (e.g. a block-commitment hash).
func CombineHashes(tag string, parts ...Hash) Hash {
	data := make([][]byte, len(parts))
	for i, p := range parts {
		b := p // copy
		data[i] = b[:]
	}
	return DigestTagged(tag, data...)
}
