package txcodec

import (
	"encoding/json"
	"testing"

	"github.com/strataorch/orchestration/pkg/subprotocol/bridge"
	"github.com/strataorch/orchestration/pkg/subprotocol/core"
	"github.com/strataorch/orchestration/pkg/xcrypto/schnorr"
	"github.com/strataorch/orchestration/pkg/xtypes"
)

func TestParseCheckpointProofTxRoundTrips(t *testing.T) {
	tx := core.CheckpointProofTx{
		Summary: core.EpochSummary{Epoch: 3, L1Height: 100, OLStateRoot: xtypes.Hash{1}},
		Proof:   []byte("proof-bytes"),
	}
	raw, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	parsed, err := ParseCheckpointProofTx(core.TxCheckpointProof, raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Summary.Epoch != 3 {
		t.Fatalf("expected epoch 3, got %d", parsed.Summary.Epoch)
	}

	if _, err := ParseCheckpointProofTx(core.TxType(7), raw); err == nil {
		t.Fatalf("expected unsupported tx type to error")
	}
}

func TestVerifyCheckpointProofAcceptsValidSignature(t *testing.T) {
	sk, err := schnorr.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	summary := core.EpochSummary{Epoch: 1, L1Height: 10, OLStateRoot: xtypes.Hash{9}}
	digest := schnorr.HashMessage(summaryBytes(summary))
	sig, err := sk.Sign(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tx := core.CheckpointProofTx{Summary: summary, Proof: sig}
	if err := VerifyCheckpointProof(sk.PublicKey().Bytes(), tx); err != nil {
		t.Fatalf("expected verification to succeed, got %v", err)
	}
}

func TestVerifyCheckpointProofRejectsWrongKey(t *testing.T) {
	sk, _ := schnorr.GeneratePrivateKey()
	other, _ := schnorr.GeneratePrivateKey()
	summary := core.EpochSummary{Epoch: 2}
	digest := schnorr.HashMessage(summaryBytes(summary))
	sig, _ := sk.Sign(digest)

	tx := core.CheckpointProofTx{Summary: summary, Proof: sig}
	if err := VerifyCheckpointProof(other.PublicKey().Bytes(), tx); err == nil {
		t.Fatalf("expected verification to fail with the wrong key")
	}
}

func TestParseBridgeTxDispatchesByType(t *testing.T) {
	raw, _ := json.Marshal(bridge.DepositCreateTx{DepositorId: xtypes.Hash{1}, Amount: 5})
	parsed, err := ParseBridgeTx(bridge.TxDepositCreate, raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.DepositCreate == nil || parsed.DepositCreate.Amount != 5 {
		t.Fatalf("unexpected parsed deposit-create: %+v", parsed)
	}
}
