// Package bls implements BLS12-381 signatures (gnark-crypto) for the upgrade
// subprotocol's operator multisig and for any other component needing aggregable
// threshold signatures over an indexed operator set.
package bls

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"

	"crypto/rand"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

var (
	initOnce sync.Once

	g1Gen bls12381.G1Affine
	g2Gen bls12381.G2Affine
)

// Domain separation tags for the signing contexts this system uses BLS for.
const (
	DomainUpgradeEnactment  = "ANCHOR_UPGRADE_ENACTMENT_V1"
	DomainOperatorSetChange = "ANCHOR_OPERATOR_SET_CHANGE_V1"
)

const (
	PrivateKeySize = 32
	PublicKeySize  = 96
	SignatureSize  = 48
)

// Initialize loads the curve's generator points. Safe to call multiple times.
func Initialize() error {
	initOnce.Do(func() {
		_, _, g1GenPoint, g2GenPoint := bls12381.Generators()
		g1Gen = g1GenPoint
		g2Gen = g2GenPoint
	})
	return nil
}

// PrivateKey is a BLS12-381 scalar.
type PrivateKey struct {
	scalar fr.Element
}

// PublicKey is a point on G2.
type PublicKey struct {
	point bls12381.G2Affine
}

// Signature is a point on G1.
type Signature struct {
	point bls12381.G1Affine
}

// GenerateKeyPair generates a new key pair using a secure random source.
func GenerateKeyPair() (*PrivateKey, *PublicKey, error) {
	if err := Initialize(); err != nil {
		return nil, nil, fmt.Errorf("initialize bls: %w", err)
	}
	var sk fr.Element
	if _, err := sk.SetRandom(); err != nil {
		return nil, nil, fmt.Errorf("generate random scalar: %w", err)
	}
	priv := &PrivateKey{scalar: sk}
	return priv, priv.PublicKey(), nil
}

// PrivateKeyFromBytes deserializes a private key.
func PrivateKeyFromBytes(data []byte) (*PrivateKey, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	if len(data) != PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: got %d, want %d", len(data), PrivateKeySize)
	}
	var sk fr.Element
	sk.SetBytes(data)
	return &PrivateKey{scalar: sk}, nil
}

// PublicKeyFromBytes deserializes a public key (G2 point, in the compressed
// PublicKeySize-byte encoding that Bytes produces).
func PublicKeyFromBytes(data []byte) (*PublicKey, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	var pk bls12381.G2Affine
	if _, err := pk.SetBytes(data); err != nil {
		return nil, fmt.Errorf("deserialize public key: %w", err)
	}
	return &PublicKey{point: pk}, nil
}

// SignatureFromBytes deserializes a signature (compressed G1 point).
func SignatureFromBytes(data []byte) (*Signature, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	var sig bls12381.G1Affine
	if _, err := sig.SetBytes(data); err != nil {
		return nil, fmt.Errorf("deserialize signature: %w", err)
	}
	return &Signature{point: sig}, nil
}

func (sk *PrivateKey) Bytes() []byte {
	b := sk.scalar.Bytes()
	return b[:]
}

func (sk *PrivateKey) Hex() string { return hex.EncodeToString(sk.Bytes()) }

// PublicKey derives pk = sk * G2.
func (sk *PrivateKey) PublicKey() *PublicKey {
	var pk bls12381.G2Affine
	var skBig big.Int
	sk.scalar.BigInt(&skBig)
	pk.ScalarMultiplication(&g2Gen, &skBig)
	return &PublicKey{point: pk}
}

// SignWithDomain signs H(domain || message) with sk.
func (sk *PrivateKey) SignWithDomain(domain string, message []byte) *Signature {
	h := hashToG1(computeDomainMessage(domain, message))
	var sig bls12381.G1Affine
	var skBig big.Int
	sk.scalar.BigInt(&skBig)
	sig.ScalarMultiplication(&h, &skBig)
	return &Signature{point: sig}
}

func (pk *PublicKey) Bytes() []byte {
	b := pk.point.Bytes()
	return b[:]
}

func (pk *PublicKey) Hex() string { return hex.EncodeToString(pk.Bytes()) }

// VerifyWithDomain checks e(sig, G2) == e(H(domain||msg), pk).
func (pk *PublicKey) VerifyWithDomain(sig *Signature, domain string, message []byte) bool {
	h := hashToG1(computeDomainMessage(domain, message))
	var negPk bls12381.G2Affine
	negPk.Neg(&pk.point)
	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{sig.point, h},
		[]bls12381.G2Affine{g2Gen, negPk},
	)
	if err != nil {
		return false
	}
	return ok
}

// Equal reports whether two public keys are the same point.
func (pk *PublicKey) Equal(other *PublicKey) bool { return pk.point.Equal(&other.point) }

func (sig *Signature) Bytes() []byte {
	b := sig.point.Bytes()
	return b[:]
}

func (sig *Signature) Hex() string { return hex.EncodeToString(sig.Bytes()) }

// AggregateSignatures sums signatures on G1.
func AggregateSignatures(sigs []*Signature) (*Signature, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	if len(sigs) == 0 {
		return nil, errors.New("bls: no signatures to aggregate")
	}
	var agg bls12381.G1Jac
	agg.FromAffine(&sigs[0].point)
	for i := 1; i < len(sigs); i++ {
		var jac bls12381.G1Jac
		jac.FromAffine(&sigs[i].point)
		agg.AddAssign(&jac)
	}
	var result bls12381.G1Affine
	result.FromJacobian(&agg)
	return &Signature{point: result}, nil
}

// AggregatePublicKeys sums public keys on G2.
func AggregatePublicKeys(pks []*PublicKey) (*PublicKey, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	if len(pks) == 0 {
		return nil, errors.New("bls: no public keys to aggregate")
	}
	var agg bls12381.G2Jac
	agg.FromAffine(&pks[0].point)
	for i := 1; i < len(pks); i++ {
		var jac bls12381.G2Jac
		jac.FromAffine(&pks[i].point)
		agg.AddAssign(&jac)
	}
	var result bls12381.G2Affine
	result.FromJacobian(&agg)
	return &PublicKey{point: result}, nil
}

func hashToG1(message []byte) bls12381.G1Affine {
	h := sha256.New()
	h.Write([]byte("BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_"))
	h.Write(message)

	var counter uint64
	for {
		h2 := sha256.New()
		h2.Write(h.Sum(nil))
		binary.Write(h2, binary.BigEndian, counter)
		hashed := h2.Sum(nil)

		var point bls12381.G1Affine
		if _, err := point.SetBytes(hashed); err == nil && !point.IsInfinity() {
			return point
		}

		var scalar fr.Element
		scalar.SetBytes(hashed)
		var scalarBig big.Int
		scalar.BigInt(&scalarBig)
		var result bls12381.G1Affine
		result.ScalarMultiplication(&g1Gen, &scalarBig)
		if !result.IsInfinity() {
			return result
		}

		counter++
		if counter > 1000 {
			return g1Gen
		}
	}
}

func computeDomainMessage(domain string, message []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write(message)
	return h.Sum(nil)
}

// GenerateRandomBytes returns n cryptographically secure random bytes.
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ValidatePublicKeySubgroup rejects points off-curve, at infinity, or outside the
// correct G2 subgroup — required before trusting any externally-supplied operator
// key (spec §4.5 "rogue-key resistance").
func ValidatePublicKeySubgroup(data []byte) error {
	if err := Initialize(); err != nil {
		return err
	}
	if len(data) != PublicKeySize {
		return fmt.Errorf("invalid public key size: got %d, want %d", len(data), PublicKeySize)
	}
	var pk bls12381.G2Affine
	if _, err := pk.SetBytes(data); err != nil {
		return fmt.Errorf("invalid public key encoding: %w", err)
	}
	if !pk.IsOnCurve() {
		return errors.New("bls: public key not on G2 curve")
	}
	if pk.IsInfinity() {
		return errors.New("bls: public key is the identity point")
	}
	if !pk.IsInSubGroup() {
		return errors.New("bls: public key not in the correct G2 subgroup")
	}
	return nil
}

// ValidateSignatureSubgroup mirrors ValidatePublicKeySubgroup for G1 signatures.
func ValidateSignatureSubgroup(data []byte) error {
	if err := Initialize(); err != nil {
		return err
	}
	if len(data) != SignatureSize {
		return fmt.Errorf("invalid signature size: got %d, want %d", len(data), SignatureSize)
	}
	var sig bls12381.G1Affine
	if _, err := sig.SetBytes(data); err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	if !sig.IsOnCurve() {
		return errors.New("bls: signature not on G1 curve")
	}
	if sig.IsInfinity() {
		return errors.New("bls: signature is the identity point")
	}
	if !sig.IsInSubGroup() {
		return errors.New("bls: signature not in the correct G1 subgroup")
	}
	return nil
}
