// Package schnorr implements BIP-340 Schnorr signing and verification for the
// checkpoint subprotocol's sequencer signature (spec §4.5), built on
// btcsuite/btcd/btcec/v2's schnorr implementation, the same curve library the
// Bitcoin header-verification code in this repository already depends on.
package schnorr

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

const (
	// PublicKeySize is the x-only public key encoding BIP-340 uses.
	PublicKeySize = 32
	// SignatureSize is a BIP-340 Schnorr signature (R.x || s).
	SignatureSize = 64
)

// PrivateKey wraps a secp256k1 scalar for Schnorr signing.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// PublicKey is an x-only secp256k1 public key.
type PublicKey struct {
	key *btcec.PublicKey
}

// GeneratePrivateKey creates a new random signing key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("schnorr: generate private key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes parses a 32-byte scalar.
func PrivateKeyFromBytes(data []byte) (*PrivateKey, error) {
	if len(data) != 32 {
		return nil, fmt.Errorf("schnorr: private key must be 32 bytes, got %d", len(data))
	}
	key, _ := btcec.PrivKeyFromBytes(data)
	return &PrivateKey{key: key}, nil
}

// PublicKey derives the corresponding x-only public key.
func (sk *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{key: sk.key.PubKey()}
}

// Sign produces a BIP-340 signature over messageHash as given (no further hashing
// here) — it is expected to already be a commitment hash (e.g. a checkpoint's
// content hash from HashMessage), not raw bytes.
func (sk *PrivateKey) Sign(messageHash [32]byte) ([]byte, error) {
	sig, err := schnorr.Sign(sk.key, messageHash[:])
	if err != nil {
		return nil, fmt.Errorf("schnorr: sign: %w", err)
	}
	return sig.Serialize(), nil
}

// PublicKeyFromBytes parses a 32-byte x-only public key.
func PublicKeyFromBytes(data []byte) (*PublicKey, error) {
	if len(data) != PublicKeySize {
		return nil, fmt.Errorf("schnorr: public key must be %d bytes, got %d", PublicKeySize, len(data))
	}
	key, err := schnorr.ParsePubKey(data)
	if err != nil {
		return nil, fmt.Errorf("schnorr: parse public key: %w", err)
	}
	return &PublicKey{key: key}, nil
}

// Bytes returns the serialized x-only public key.
func (pk *PublicKey) Bytes() []byte {
	return schnorr.SerializePubKey(pk.key)
}

// Verify checks a BIP-340 signature over a message hash.
func (pk *PublicKey) Verify(sig []byte, messageHash [32]byte) error {
	if len(sig) != SignatureSize {
		return fmt.Errorf("schnorr: signature must be %d bytes, got %d", SignatureSize, len(sig))
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return fmt.Errorf("schnorr: parse signature: %w", err)
	}
	if !parsed.Verify(messageHash[:], pk.key) {
		return errors.New("schnorr: signature does not verify")
	}
	return nil
}

// HashMessage is the canonical way checkpoint payloads are reduced to the 32-byte
// digest that gets Schnorr-signed: a plain SHA-256 over the already-SSZ-encoded
// checkpoint body (spec §4.5 — the signature covers the checkpoint's content hash,
// not its raw bytes).
func HashMessage(data []byte) [32]byte {
	return sha256.Sum256(data)
}
