package checkpoint

import (
	"testing"

	"github.com/strataorch/orchestration/pkg/subprotocol"
	"github.com/strataorch/orchestration/pkg/subprotocol/core"
	"github.com/strataorch/orchestration/pkg/xcrypto/schnorr"
)

type recordingRelayer struct {
	msgs []subprotocol.Msg
	logs []subprotocol.Log
}

func (r *recordingRelayer) RelayMsg(m subprotocol.Msg) { r.msgs = append(r.msgs, m) }
func (r *recordingRelayer) EmitLog(l subprotocol.Log)  { r.logs = append(r.logs, l) }

func TestProcessTxsVerifiesSignatureAndAdvancesTip(t *testing.T) {
	sk, err := schnorr.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	hash := schnorr.HashMessage([]byte("checkpoint-body"))
	sig, err := sk.Sign(hash)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	wantDigest := FoldRange(0, 0, nil)
	sub, err := New(GenesisConfig{SequencerPubKey: sk.PublicKey().Bytes()}, func(TxType, []byte) (SignedCheckpointTx, error) {
		return SignedCheckpointTx{
			Tip:               Tip{Epoch: 1, L1Height: 100, L2Slot: 10},
			SignedMessageHash: hash,
			SequencerSig:      sig,
			WithdrawalIntents: []core.WithdrawalIntentMsg{{Amount: 1}},
			RangeDigest:       wantDigest,
		}, nil
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	rec := &recordingRelayer{}
	if err := sub.ProcessTxs([]subprotocol.TaggedTx{{}}, []subprotocol.AuxResponse{{}}, 200, rec); err != nil {
		t.Fatalf("process txs: %v", err)
	}
	if sub.state.VerifiedTip.Epoch != 1 {
		t.Fatalf("expected tip to advance")
	}
	if len(rec.msgs) != 1 {
		t.Fatalf("expected the withdrawal intent to be relayed")
	}
}

func TestProcessTxsRejectsBadSignature(t *testing.T) {
	sk, _ := schnorr.GeneratePrivateKey()
	other, _ := schnorr.GeneratePrivateKey()
	hash := schnorr.HashMessage([]byte("body"))
	badSig, _ := other.Sign(hash)

	sub, err := New(GenesisConfig{SequencerPubKey: sk.PublicKey().Bytes()}, func(TxType, []byte) (SignedCheckpointTx, error) {
		return SignedCheckpointTx{Tip: Tip{Epoch: 1, L1Height: 1, L2Slot: 1}, SignedMessageHash: hash, SequencerSig: badSig}, nil
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	rec := &recordingRelayer{}
	sub.ProcessTxs([]subprotocol.TaggedTx{{}}, []subprotocol.AuxResponse{{}}, 200, rec)
	if sub.state.VerifiedTip.Epoch != 0 {
		t.Fatalf("tip must not advance on a bad signature")
	}
	if len(rec.logs) != 1 {
		t.Fatalf("expected a signature-rejection log")
	}
}

func TestProcessTxsRejectsRangeDigestMismatch(t *testing.T) {
	sk, _ := schnorr.GeneratePrivateKey()
	hash := schnorr.HashMessage([]byte("checkpoint-body"))
	sig, _ := sk.Sign(hash)

	sub, err := New(GenesisConfig{SequencerPubKey: sk.PublicKey().Bytes()}, func(TxType, []byte) (SignedCheckpointTx, error) {
		return SignedCheckpointTx{
			Tip:               Tip{Epoch: 1, L1Height: 100, L2Slot: 10},
			SignedMessageHash: hash,
			SequencerSig:      sig,
			RangeDigest:       [32]byte{0xff}, // does not match the folded aux leaves
		}, nil
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	rec := &recordingRelayer{}
	sub.ProcessTxs([]subprotocol.TaggedTx{{}}, []subprotocol.AuxResponse{{ManifestLeaves: [][]byte{[]byte("leaf")}}}, 200, rec)
	if sub.state.VerifiedTip.Epoch != 0 {
		t.Fatalf("tip must not advance when the rolling-hash range digest mismatches")
	}
	if len(rec.logs) != 1 {
		t.Fatalf("expected a range-digest-mismatch log")
	}
}

func TestProcessTxsRejectsEpochSkip(t *testing.T) {
	sk, _ := schnorr.GeneratePrivateKey()
	hash := schnorr.HashMessage([]byte("checkpoint-body"))
	sig, _ := sk.Sign(hash)
	wantDigest := FoldRange(0, 0, nil)

	sub, err := New(GenesisConfig{SequencerPubKey: sk.PublicKey().Bytes()}, func(TxType, []byte) (SignedCheckpointTx, error) {
		// Tip{Epoch: 5} skips epochs 1-4 relative to the genesis tip (epoch 0).
		return SignedCheckpointTx{
			Tip:               Tip{Epoch: 5, L1Height: 100, L2Slot: 10},
			SignedMessageHash: hash,
			SequencerSig:      sig,
			RangeDigest:       wantDigest,
		}, nil
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	rec := &recordingRelayer{}
	sub.ProcessTxs([]subprotocol.TaggedTx{{}}, []subprotocol.AuxResponse{{}}, 200, rec)
	if sub.state.VerifiedTip.Epoch != 0 {
		t.Fatalf("tip must not advance when the checkpoint skips epochs")
	}
	if len(rec.logs) != 1 {
		t.Fatalf("expected an epoch-skip rejection log")
	}
}

func TestProcessTxsRejectsRangeNotBeforeCurrentL1Height(t *testing.T) {
	sk, _ := schnorr.GeneratePrivateKey()
	hash := schnorr.HashMessage([]byte("checkpoint-body"))
	sig, _ := sk.Sign(hash)
	wantDigest := FoldRange(0, 100, nil)

	sub, err := New(GenesisConfig{SequencerPubKey: sk.PublicKey().Bytes()}, func(TxType, []byte) (SignedCheckpointTx, error) {
		return SignedCheckpointTx{
			Tip:               Tip{Epoch: 1, L1Height: 100, L2Slot: 10},
			SignedMessageHash: hash,
			SequencerSig:      sig,
			RangeToL1Height:   100,
			RangeDigest:       wantDigest,
		}, nil
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	rec := &recordingRelayer{}
	// currentL1Height equal to RangeToL1Height must be rejected: the invariant
	// is strictly less than, not less-than-or-equal.
	sub.ProcessTxs([]subprotocol.TaggedTx{{}}, []subprotocol.AuxResponse{{}}, 100, rec)
	if sub.state.VerifiedTip.Epoch != 0 {
		t.Fatalf("tip must not advance when the range is not strictly before the current block height")
	}
	if len(rec.logs) != 1 {
		t.Fatalf("expected a range-beyond-current-height rejection log")
	}
}

func TestProcessMsgsRotatesSequencerKey(t *testing.T) {
	sk, _ := schnorr.GeneratePrivateKey()
	newSk, _ := schnorr.GeneratePrivateKey()

	sub, err := New(GenesisConfig{SequencerPubKey: sk.PublicKey().Bytes()}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	rec := &recordingRelayer{}
	if err := sub.ProcessMsgs([]subprotocol.Msg{SequencerKeyRotatedMsg{NewKey: newSk.PublicKey().Bytes()}}, rec); err != nil {
		t.Fatalf("process msgs: %v", err)
	}
	if string(sub.state.SequencerPubKey.Bytes()) != string(newSk.PublicKey().Bytes()) {
		t.Fatalf("expected sequencer key to be rotated")
	}
}
