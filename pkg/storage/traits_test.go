package storage

import (
	"errors"
	"testing"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

func TestL1StoreRoundTrips(t *testing.T) {
	s := NewL1Store(NewMemKV())
	var blockId xtypes.Hash
	blockId[0] = 1

	m := L1Manifest{Height: 100, BlockId: blockId, Body: []byte("manifest")}
	if err := s.PutManifest(m); err != nil {
		t.Fatalf("put manifest: %v", err)
	}

	byHeight, err := s.ManifestByHeight(100)
	if err != nil || string(byHeight.Body) != "manifest" {
		t.Fatalf("manifest by height: %+v, %v", byHeight, err)
	}
	byId, err := s.ManifestByBlockId(blockId)
	if err != nil || byId.Height != 100 {
		t.Fatalf("manifest by block id: %+v, %v", byId, err)
	}

	if _, err := s.ManifestByHeight(999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	txId := xtypes.Hash{2}
	if err := s.PutTxsByBlockId(blockId, []xtypes.Hash{txId}); err != nil {
		t.Fatalf("put txs: %v", err)
	}
	txs, err := s.TxsByBlockId(blockId)
	if err != nil || len(txs) != 1 || txs[0] != txId {
		t.Fatalf("txs by block id: %+v, %v", txs, err)
	}
}

func TestOLStoreTracksBlockStatusAndHeightIndex(t *testing.T) {
	s := NewOLStore(NewMemKV())
	id := xtypes.Hash{3}

	if err := s.PutBlock(id, 7, []byte("block-body")); err != nil {
		t.Fatalf("put block: %v", err)
	}
	body, err := s.Block(id)
	if err != nil || string(body) != "block-body" {
		t.Fatalf("block: %s, %v", body, err)
	}

	ids, err := s.BlockIdsAtHeight(7)
	if err != nil || len(ids) != 1 || ids[0] != id {
		t.Fatalf("block ids at height: %+v, %v", ids, err)
	}

	status, err := s.BlockStatus(id)
	if err != nil || status != BlockUnchecked {
		t.Fatalf("expected unchecked status by default, got %v, %v", status, err)
	}

	if err := s.SetBlockStatus(id, BlockValid); err != nil {
		t.Fatalf("set status: %v", err)
	}
	status, err = s.BlockStatus(id)
	if err != nil || status != BlockValid {
		t.Fatalf("expected valid status, got %v, %v", status, err)
	}
}

func TestOLStateStoreRoundTrips(t *testing.T) {
	s := NewOLStateStore(NewMemKV())
	blockId := xtypes.Hash{4}

	if err := s.PutWriteBatch(blockId, []byte("wb")); err != nil {
		t.Fatalf("put write batch: %v", err)
	}
	wb, err := s.WriteBatch(blockId)
	if err != nil || string(wb) != "wb" {
		t.Fatalf("write batch: %s, %v", wb, err)
	}

	if err := s.PutFinalizedStateSnapshot([]byte("snap")); err != nil {
		t.Fatalf("put snapshot: %v", err)
	}
	snap, err := s.FinalizedStateSnapshot()
	if err != nil || string(snap) != "snap" {
		t.Fatalf("snapshot: %s, %v", snap, err)
	}

	peaks := [][]byte{[]byte("p1"), []byte("p2")}
	if err := s.PutManifestMMR(42, peaks); err != nil {
		t.Fatalf("put mmr: %v", err)
	}
	gotPeaks, err := s.ManifestMMR(42)
	if err != nil || len(gotPeaks) != 2 {
		t.Fatalf("mmr: %+v, %v", gotPeaks, err)
	}

	var account xtypes.AccountId
	account[0] = 9
	if err := s.PutSnarkInboxEntry(account, 5, []byte("msg")); err != nil {
		t.Fatalf("put inbox entry: %v", err)
	}
	msg, err := s.SnarkInboxEntry(account, 5)
	if err != nil || string(msg) != "msg" {
		t.Fatalf("inbox entry: %s, %v", msg, err)
	}
}

func TestASMStoreRoundTrips(t *testing.T) {
	s := NewASMStore(NewMemKV())
	commitment := xtypes.BlockCommitment{Height: 11, BlockId: xtypes.Hash{5}}

	if err := s.PutAnchorState(commitment, []byte("state")); err != nil {
		t.Fatalf("put anchor state: %v", err)
	}
	state, err := s.AnchorState(commitment)
	if err != nil || string(state) != "state" {
		t.Fatalf("anchor state: %s, %v", state, err)
	}

	logs := [][]byte{[]byte("log1"), []byte("log2")}
	if err := s.PutLogs(commitment, logs); err != nil {
		t.Fatalf("put logs: %v", err)
	}
	gotLogs, err := s.Logs(commitment)
	if err != nil || len(gotLogs) != 2 {
		t.Fatalf("logs: %+v, %v", gotLogs, err)
	}
}

func TestCheckpointStoreRoundTrips(t *testing.T) {
	s := NewCheckpointStore(NewMemKV())
	epoch := xtypes.Epoch(3)

	if err := s.PutEpochSummary(epoch, 1000, []byte("summary")); err != nil {
		t.Fatalf("put epoch summary: %v", err)
	}
	terminal, summary, err := s.EpochSummary(epoch)
	if err != nil || terminal != 1000 || string(summary) != "summary" {
		t.Fatalf("epoch summary: %d %s, %v", terminal, summary, err)
	}

	entry := CheckpointEntry{ProvingStatus: "proving", ConfirmationStatus: "pending"}
	if err := s.PutEntry(epoch, entry); err != nil {
		t.Fatalf("put entry: %v", err)
	}
	got, err := s.Entry(epoch)
	if err != nil || got != entry {
		t.Fatalf("entry: %+v, %v", got, err)
	}
}

func TestProofStoreRoundTrips(t *testing.T) {
	s := NewProofStore(NewMemKV())
	key := xtypes.ProofKey{Program: "batch", Backend: "gnark"}

	if _, ok, err := s.Proof(key); err != nil || ok {
		t.Fatalf("expected no proof yet: %v, %v", ok, err)
	}

	if err := s.PutProof(key, []byte("proof-bytes")); err != nil {
		t.Fatalf("put proof: %v", err)
	}
	proof, ok, err := s.Proof(key)
	if err != nil || !ok || string(proof) != "proof-bytes" {
		t.Fatalf("proof: %s %v, %v", proof, ok, err)
	}

	deps := []xtypes.ProofKey{{Program: "block", Backend: "gnark"}}
	if err := s.PutDependencies("batch", deps); err != nil {
		t.Fatalf("put deps: %v", err)
	}
	gotDeps, err := s.Dependencies("batch")
	if err != nil || len(gotDeps) != 1 || gotDeps[0] != deps[0] {
		t.Fatalf("deps: %+v, %v", gotDeps, err)
	}

	noDeps, err := s.Dependencies("unknown")
	if err != nil || noDeps != nil {
		t.Fatalf("expected nil deps for unknown program, got %+v, %v", noDeps, err)
	}
}

func TestBroadcastStoreAppendsMonotonicKeys(t *testing.T) {
	s := NewBroadcastStore(NewMemKV())

	if _, err := s.LastKey(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any append, got %v", err)
	}

	k1, err := s.Append([]byte("tx1"))
	if err != nil || k1 != 1 {
		t.Fatalf("append 1: %d, %v", k1, err)
	}
	k2, err := s.Append([]byte("tx2"))
	if err != nil || k2 != 2 {
		t.Fatalf("append 2: %d, %v", k2, err)
	}

	last, err := s.LastKey()
	if err != nil || last != 2 {
		t.Fatalf("last key: %d, %v", last, err)
	}

	entry, err := s.Entry(1)
	if err != nil || string(entry) != "tx1" {
		t.Fatalf("entry 1: %s, %v", entry, err)
	}
}
