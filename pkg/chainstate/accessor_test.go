package chainstate

import (
	"bytes"
	"testing"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

func accountId(b byte) xtypes.AccountId {
	var id xtypes.Hash
	id[0] = b
	return id
}

func TestAccumulatorEmptyIsIdentity(t *testing.T) {
	a := NewAccumulator(0, xtypes.ZeroHash)
	if !a.IsEmpty() {
		t.Fatalf("freshly constructed accumulator should be empty")
	}
	diff, err := a.Seal(1<<20, nil)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if len(diff.Ledger.NewAccounts) != 0 || len(diff.Ledger.Existing) != 0 || len(diff.InboxBuffer) != 0 || len(diff.OutputLogs) != 0 {
		t.Fatalf("sealing an empty accumulator should produce an empty diff")
	}
}

func TestAccumulatorNewAccountContiguity(t *testing.T) {
	a := NewAccumulator(1, xtypes.ZeroHash)
	if err := a.RecordNewAccount(NewAccountEntry{Serial: 0, Id: accountId(1), Balance: 10}); err != nil {
		t.Fatalf("record new account 0: %v", err)
	}
	if err := a.RecordNewAccount(NewAccountEntry{Serial: 1, Id: accountId(2), Balance: 20}); err != nil {
		t.Fatalf("record new account 1: %v", err)
	}
	if err := a.RecordNewAccount(NewAccountEntry{Serial: 5, Id: accountId(3), Balance: 30}); err == nil {
		t.Fatalf("expected an error for a non-contiguous serial gap")
	}
}

func TestAccumulatorExistingAccountDiffSortedBySerial(t *testing.T) {
	a := NewAccumulator(1, xtypes.ZeroHash)
	bal := xtypes.Amount(500)
	a.RecordAccountDiff(3, func(e *AccountDiffEntry) { e.Balance = &bal })
	bal2 := xtypes.Amount(7)
	a.RecordAccountDiff(1, func(e *AccountDiffEntry) { e.Balance = &bal2 })

	diff, err := a.Seal(1<<20, nil)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if len(diff.Ledger.Existing) != 2 {
		t.Fatalf("expected 2 existing-account diffs, got %d", len(diff.Ledger.Existing))
	}
	if diff.Ledger.Existing[0].Serial != 1 || diff.Ledger.Existing[1].Serial != 3 {
		t.Fatalf("expected diffs sorted by serial, got %+v", diff.Ledger.Existing)
	}
}

func TestAccumulatorInboxDedup(t *testing.T) {
	a := NewAccumulator(1, xtypes.ZeroHash)
	acc := accountId(9)
	if err := a.RecordInboxMessage(DaMessageEntry{Account: acc, MsgIdx: 1, Payload: []byte("first")}); err != nil {
		t.Fatalf("record inbox message: %v", err)
	}
	if err := a.RecordInboxMessage(DaMessageEntry{Account: acc, MsgIdx: 1, Payload: []byte("overwritten")}); err != nil {
		t.Fatalf("record inbox message: %v", err)
	}
	diff, err := a.Seal(1<<20, nil)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if len(diff.InboxBuffer) != 1 {
		t.Fatalf("expected deduplication by (account, msg_idx), got %d entries", len(diff.InboxBuffer))
	}
	if !bytes.Equal(diff.InboxBuffer[0].Payload, []byte("overwritten")) {
		t.Fatalf("expected the later write to win, got %q", diff.InboxBuffer[0].Payload)
	}
}

func TestAccumulatorRejectsOversizedMessage(t *testing.T) {
	a := NewAccumulator(1, xtypes.ZeroHash)
	big := make([]byte, MaxMessagePayloadBytes+1)
	if err := a.RecordInboxMessage(DaMessageEntry{Account: accountId(1), MsgIdx: 0, Payload: big}); err == nil {
		t.Fatalf("expected oversized message payload to be rejected")
	}
}

func TestAccumulatorRejectsOversizedLogAndTotal(t *testing.T) {
	a := NewAccumulator(1, xtypes.ZeroHash)
	tooLarge := make([]byte, MaxLogPayloadBytes+1)
	if err := a.RecordLog(OLLog{AccountSerial: 1, Payload: tooLarge}); err == nil {
		t.Fatalf("expected oversized log payload to be rejected")
	}

	chunk := make([]byte, MaxLogPayloadBytes)
	count := MaxTotalLogBytes / MaxLogPayloadBytes
	for i := 0; i < count; i++ {
		if err := a.RecordLog(OLLog{AccountSerial: xtypes.AccountSerial(i), Payload: chunk}); err != nil {
			t.Fatalf("log %d should fit within the total budget: %v", i, err)
		}
	}
	if err := a.RecordLog(OLLog{AccountSerial: xtypes.AccountSerial(count), Payload: chunk}); err == nil {
		t.Fatalf("expected the total log budget to be exceeded")
	}
}

func TestAccumulatorSealRejectsOverMaxDASize(t *testing.T) {
	a := NewAccumulator(1, xtypes.ZeroHash)
	a.SetCurEpoch(2)
	_, err := a.Seal(10, func(*OLStateDiff) (int, error) { return 1000, nil })
	if err == nil {
		t.Fatalf("expected seal to reject a payload exceeding max DA size")
	}
}
