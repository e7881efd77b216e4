package schnorr

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	sk, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate private key: %v", err)
	}
	pk := sk.PublicKey()

	msgHash := HashMessage([]byte("checkpoint epoch 12 root abc"))
	sig, err := sk.Sign(msgHash)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) != SignatureSize {
		t.Fatalf("unexpected signature size %d", len(sig))
	}

	if err := pk.Verify(sig, msgHash); err != nil {
		t.Fatalf("expected signature to verify: %v", err)
	}

	otherHash := HashMessage([]byte("checkpoint epoch 13 root def"))
	if err := pk.Verify(sig, otherHash); err == nil {
		t.Fatalf("expected verification to fail against a different message")
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	sk, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate private key: %v", err)
	}
	pk := sk.PublicKey()
	raw := pk.Bytes()
	if len(raw) != PublicKeySize {
		t.Fatalf("unexpected public key size %d", len(raw))
	}

	parsed, err := PublicKeyFromBytes(raw)
	if err != nil {
		t.Fatalf("parse public key: %v", err)
	}

	msgHash := HashMessage([]byte("sequencer key confirmation"))
	sig, err := sk.Sign(msgHash)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := parsed.Verify(sig, msgHash); err != nil {
		t.Fatalf("expected re-parsed public key to verify signature: %v", err)
	}
}

func TestVerifyRejectsWrongSizeSignature(t *testing.T) {
	sk, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate private key: %v", err)
	}
	pk := sk.PublicKey()
	msgHash := HashMessage([]byte("short sig test"))
	if err := pk.Verify([]byte{1, 2, 3}, msgHash); err == nil {
		t.Fatalf("expected error for undersized signature")
	}
}
