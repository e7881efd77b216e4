package bls

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	sk, pk, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	msg := []byte("enact upgrade epoch 42")
	sig := sk.SignWithDomain(DomainUpgradeEnactment, msg)
	if !pk.VerifyWithDomain(sig, DomainUpgradeEnactment, msg) {
		t.Fatalf("signature did not verify")
	}
	if pk.VerifyWithDomain(sig, DomainUpgradeEnactment, []byte("different message")) {
		t.Fatalf("signature verified against the wrong message")
	}
	if pk.VerifyWithDomain(sig, DomainOperatorSetChange, msg) {
		t.Fatalf("signature verified under the wrong domain tag")
	}
}

func TestAggregateSignaturesAndKeys(t *testing.T) {
	const n = 5
	msg := []byte("operator set change to epoch 10")
	var sigs []*Signature
	var pks []*PublicKey
	for i := 0; i < n; i++ {
		sk, pk, err := GenerateKeyPair()
		if err != nil {
			t.Fatalf("generate key pair %d: %v", i, err)
		}
		sigs = append(sigs, sk.SignWithDomain(DomainOperatorSetChange, msg))
		pks = append(pks, pk)
	}
	aggSig, err := AggregateSignatures(sigs)
	if err != nil {
		t.Fatalf("aggregate signatures: %v", err)
	}
	aggPk, err := AggregatePublicKeys(pks)
	if err != nil {
		t.Fatalf("aggregate public keys: %v", err)
	}
	if !aggPk.VerifyWithDomain(aggSig, DomainOperatorSetChange, msg) {
		t.Fatalf("aggregate signature did not verify")
	}
}

func TestVerifyThresholdMeetsThreshold(t *testing.T) {
	const n = 7
	const threshold = 4
	msg := []byte("enact upgrade epoch 100")

	rawKeys := make([][]byte, n)
	sks := make([]*PrivateKey, n)
	for i := 0; i < n; i++ {
		sk, pk, err := GenerateKeyPair()
		if err != nil {
			t.Fatalf("generate key pair %d: %v", i, err)
		}
		sks[i] = sk
		rawKeys[i] = pk.Bytes()
	}
	set, err := NewOperatorSet(rawKeys)
	if err != nil {
		t.Fatalf("new operator set: %v", err)
	}

	signerIdxs := []int{0, 2, 3, 6}
	signers := NewBitmap(n)
	var sigs []*Signature
	for _, i := range signerIdxs {
		signers.Set(i)
		sigs = append(sigs, sks[i].SignWithDomain(DomainUpgradeEnactment, msg))
	}
	aggSig, err := AggregateSignatures(sigs)
	if err != nil {
		t.Fatalf("aggregate signatures: %v", err)
	}
	ts := &ThresholdSignature{Signers: signers, Aggregate: aggSig}

	if err := VerifyThreshold(set, ts, DomainUpgradeEnactment, msg, threshold); err != nil {
		t.Fatalf("expected threshold to verify: %v", err)
	}
}

func TestVerifyThresholdRejectsBelowThreshold(t *testing.T) {
	const n = 5
	const threshold = 4
	msg := []byte("enact upgrade epoch 7")

	rawKeys := make([][]byte, n)
	sks := make([]*PrivateKey, n)
	for i := 0; i < n; i++ {
		sk, pk, err := GenerateKeyPair()
		if err != nil {
			t.Fatalf("generate key pair %d: %v", i, err)
		}
		sks[i] = sk
		rawKeys[i] = pk.Bytes()
	}
	set, err := NewOperatorSet(rawKeys)
	if err != nil {
		t.Fatalf("new operator set: %v", err)
	}

	signers := NewBitmap(n)
	var sigs []*Signature
	for _, i := range []int{0, 1} {
		signers.Set(i)
		sigs = append(sigs, sks[i].SignWithDomain(DomainUpgradeEnactment, msg))
	}
	aggSig, err := AggregateSignatures(sigs)
	if err != nil {
		t.Fatalf("aggregate signatures: %v", err)
	}
	ts := &ThresholdSignature{Signers: signers, Aggregate: aggSig}

	if err := VerifyThreshold(set, ts, DomainUpgradeEnactment, msg, threshold); err == nil {
		t.Fatalf("expected threshold verification to fail with too few signers")
	}
}

func TestVerifyThresholdRejectsForgedSigner(t *testing.T) {
	const n = 4
	const threshold = 2
	msg := []byte("enact upgrade epoch 3")

	rawKeys := make([][]byte, n)
	sks := make([]*PrivateKey, n)
	for i := 0; i < n; i++ {
		sk, pk, err := GenerateKeyPair()
		if err != nil {
			t.Fatalf("generate key pair %d: %v", i, err)
		}
		sks[i] = sk
		rawKeys[i] = pk.Bytes()
	}
	set, err := NewOperatorSet(rawKeys)
	if err != nil {
		t.Fatalf("new operator set: %v", err)
	}

	// Bitmap claims operators 0 and 1 signed, but the aggregate is built only from
	// operator 0's real signature plus an outside key's signature.
	outsideSk, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate outside key: %v", err)
	}
	signers := NewBitmap(n)
	signers.Set(0)
	signers.Set(1)
	sigs := []*Signature{
		sks[0].SignWithDomain(DomainUpgradeEnactment, msg),
		outsideSk.SignWithDomain(DomainUpgradeEnactment, msg),
	}
	aggSig, err := AggregateSignatures(sigs)
	if err != nil {
		t.Fatalf("aggregate signatures: %v", err)
	}
	ts := &ThresholdSignature{Signers: signers, Aggregate: aggSig}

	if err := VerifyThreshold(set, ts, DomainUpgradeEnactment, msg, threshold); err == nil {
		t.Fatalf("expected verification to fail when bitmap doesn't match actual signers")
	}
}
