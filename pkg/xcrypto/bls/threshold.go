package bls

import (
	"fmt"
	"math/bits"
)

// OperatorSet is a fixed, indexed list of operator public keys. Upgrade-subprotocol
// multisig messages identify signers by bitmap over this index rather than listing
// full public keys (spec §4.5 "operator set").
type OperatorSet struct {
	keys []*PublicKey
}

// NewOperatorSet builds an indexed set, rejecting any key that fails subgroup
// validation.
func NewOperatorSet(rawKeys [][]byte) (*OperatorSet, error) {
	keys := make([]*PublicKey, len(rawKeys))
	for i, raw := range rawKeys {
		if err := ValidatePublicKeySubgroup(raw); err != nil {
			return nil, fmt.Errorf("bls: operator %d: %w", i, err)
		}
		pk, err := PublicKeyFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("bls: operator %d: %w", i, err)
		}
		keys[i] = pk
	}
	return &OperatorSet{keys: keys}, nil
}

// Len returns the number of operators in the set.
func (s *OperatorSet) Len() int { return len(s.keys) }

// Bitmap is a little-endian bitmap over operator indices, one bit per operator,
// indicating which operators co-signed a message.
type Bitmap []byte

// NewBitmap returns a zeroed bitmap sized for n operators.
func NewBitmap(n int) Bitmap {
	return make(Bitmap, (n+7)/8)
}

// Set marks operator index i as a signer.
func (b Bitmap) Set(i int) {
	b[i/8] |= 1 << uint(i%8)
}

// IsSet reports whether operator index i signed.
func (b Bitmap) IsSet(i int) bool {
	if i/8 >= len(b) {
		return false
	}
	return b[i/8]&(1<<uint(i%8)) != 0
}

// Count returns the number of set bits.
func (b Bitmap) Count() int {
	n := 0
	for _, byteVal := range b {
		n += bits.OnesCount8(byteVal)
	}
	return n
}

// ThresholdSignature is an aggregated signature paired with the bitmap of which
// operators in a given OperatorSet contributed to it.
type ThresholdSignature struct {
	Signers   Bitmap
	Aggregate *Signature
}

// VerifyThreshold checks that at least `threshold` operators from the set co-signed
// domain||message, by aggregating exactly the public keys the bitmap names and
// pairing-checking against the aggregate signature (spec §4.5 enactment rule:
// "signed by at least threshold-of-N operators").
func VerifyThreshold(set *OperatorSet, ts *ThresholdSignature, domain string, message []byte, threshold int) error {
	if ts == nil || ts.Aggregate == nil {
		return fmt.Errorf("bls: threshold signature missing aggregate")
	}
	signerCount := ts.Signers.Count()
	if signerCount < threshold {
		return fmt.Errorf("bls: only %d signers, threshold requires %d", signerCount, threshold)
	}

	signing := make([]*PublicKey, 0, signerCount)
	for i := 0; i < set.Len(); i++ {
		if ts.Signers.IsSet(i) {
			signing = append(signing, set.keys[i])
		}
	}
	if len(signing) == 0 {
		return fmt.Errorf("bls: no signers named in bitmap")
	}

	aggPk, err := AggregatePublicKeys(signing)
	if err != nil {
		return fmt.Errorf("bls: aggregate public keys: %w", err)
	}
	if !aggPk.VerifyWithDomain(ts.Aggregate, domain, message) {
		return fmt.Errorf("bls: threshold signature does not verify")
	}
	return nil
}
