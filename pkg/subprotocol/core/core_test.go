package core

import (
	"testing"

	"github.com/strataorch/orchestration/pkg/subprotocol"
	"github.com/strataorch/orchestration/pkg/xcrypto/schnorr"
	"github.com/strataorch/orchestration/pkg/xtypes"
)

type recordingRelayer struct {
	msgs []subprotocol.Msg
	logs []subprotocol.Log
}

func (r *recordingRelayer) RelayMsg(m subprotocol.Msg) { r.msgs = append(r.msgs, m) }
func (r *recordingRelayer) EmitLog(l subprotocol.Log)  { r.logs = append(r.logs, l) }

func newTestCore(t *testing.T) (*Subprotocol, *bool) {
	t.Helper()
	sk, err := schnorr.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate sequencer key: %v", err)
	}
	verifyCalled := false
	sub, err := New(GenesisConfig{CheckpointVerifyingKey: []byte("vk"), SequencerPubKey: sk.PublicKey().Bytes()},
		func(vk []byte, tx CheckpointProofTx) error {
			verifyCalled = true
			if string(vk) != "vk" {
				t.Fatalf("unexpected verifying key passed through: %q", vk)
			}
			return nil
		},
		func(txType TxType, auxData []byte) (CheckpointProofTx, error) {
			return CheckpointProofTx{
				Summary:           EpochSummary{Epoch: 1},
				WithdrawalIntents: []WithdrawalIntentMsg{{AccountId: xtypes.Hash{1}, Amount: 5}},
			}, nil
		})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return sub, &verifyCalled
}

func TestProcessTxsAdvancesEpochAndRelaysIntents(t *testing.T) {
	sub, verifyCalled := newTestCore(t)
	rec := &recordingRelayer{}
	if err := sub.ProcessTxs([]subprotocol.TaggedTx{{}}, nil, 0, rec); err != nil {
		t.Fatalf("process txs: %v", err)
	}
	if !*verifyCalled {
		t.Fatalf("expected the proof verifier to be invoked")
	}
	if sub.state.LastVerified.Epoch != 1 {
		t.Fatalf("expected verified epoch to advance to 1, got %d", sub.state.LastVerified.Epoch)
	}
	if len(rec.msgs) != 1 {
		t.Fatalf("expected one relayed withdrawal intent, got %d", len(rec.msgs))
	}
}

func TestProcessTxsRejectsStaleEpoch(t *testing.T) {
	sub, _ := newTestCore(t)
	rec := &recordingRelayer{}
	sub.ProcessTxs([]subprotocol.TaggedTx{{}}, nil, 0, rec)
	rec2 := &recordingRelayer{}
	if err := sub.ProcessTxs([]subprotocol.TaggedTx{{}}, nil, 0, rec2); err != nil {
		t.Fatalf("process txs: %v", err)
	}
	if len(rec2.msgs) != 0 {
		t.Fatalf("a stale-epoch checkpoint must not relay withdrawal intents again")
	}
	if len(rec2.logs) != 1 {
		t.Fatalf("expected a stale-epoch rejection log")
	}
}
