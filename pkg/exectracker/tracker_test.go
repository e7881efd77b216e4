package exectracker

import (
	"context"
	"errors"
	"testing"

	"github.com/strataorch/orchestration/pkg/svc"
	"github.com/strataorch/orchestration/pkg/xtypes"
)

func TestNewBlockExtendsBestOverKnownParent(t *testing.T) {
	store := NewMapStore()
	genesis := BlockRecord{Hash: xtypes.Hash{0}, Height: 0}
	tr := New(store, genesis, svc.DefaultConfig("exectracker-test"))
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Stop()

	b1 := BlockRecord{Hash: xtypes.Hash{1}, Parent: genesis.Hash, Height: 1}
	store.Put(b1)

	watch := tr.Watch()
	<-watch // drains the genesis seed value

	if err := tr.NewBlock(context.Background(), b1.Hash); err != nil {
		t.Fatalf("new block: %v", err)
	}

	best, height := tr.GetBestBlock()
	if best != b1.Hash || height != 1 {
		t.Fatalf("expected best block %x at height 1, got %x at %d", b1.Hash, best, height)
	}

	update := <-watch
	if update.BestBlock != b1.Hash {
		t.Fatalf("expected watch update for new best block")
	}
}

func TestNewBlockRejectsUnknownParent(t *testing.T) {
	store := NewMapStore()
	genesis := BlockRecord{Hash: xtypes.Hash{0}, Height: 0}
	tr := New(store, genesis, svc.DefaultConfig("exectracker-test"))
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Stop()

	orphan := BlockRecord{Hash: xtypes.Hash{9}, Parent: xtypes.Hash{8}, Height: 5}
	store.Put(orphan)

	err := tr.NewBlock(context.Background(), orphan.Hash)
	if !errors.Is(err, ErrUnknownParent) {
		t.Fatalf("expected ErrUnknownParent, got %v", err)
	}
}

func TestOLConsensusUpdateExtendsFinalizedAndPrunesSiblings(t *testing.T) {
	store := NewMapStore()
	genesis := BlockRecord{Hash: xtypes.Hash{0}, Height: 0}
	tr := New(store, genesis, svc.DefaultConfig("exectracker-test"))
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Stop()

	b1a := BlockRecord{Hash: xtypes.Hash{1}, Parent: genesis.Hash, Height: 1}
	b1b := BlockRecord{Hash: xtypes.Hash{2}, Parent: genesis.Hash, Height: 1}
	store.Put(b1a)
	store.Put(b1b)
	if err := tr.NewBlock(context.Background(), b1a.Hash); err != nil {
		t.Fatalf("new block b1a: %v", err)
	}
	if err := tr.NewBlock(context.Background(), b1b.Hash); err != nil {
		t.Fatalf("new block b1b: %v", err)
	}

	if err := tr.OLConsensusUpdate(context.Background(), b1a.Hash); err != nil {
		t.Fatalf("ol consensus update: %v", err)
	}
	if got := tr.GetFinalizedBlocknum(); got != 1 {
		t.Fatalf("expected finalized height 1, got %d", got)
	}
	if tr.IsCanonical(b1b.Hash) {
		t.Fatalf("expected the sibling fork to be pruned, not canonical")
	}
}

func TestOLConsensusUpdateDefersOnOrphan(t *testing.T) {
	store := NewMapStore()
	genesis := BlockRecord{Hash: xtypes.Hash{0}, Height: 0}
	tr := New(store, genesis, svc.DefaultConfig("exectracker-test"))
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Stop()

	err := tr.OLConsensusUpdate(context.Background(), xtypes.Hash{0xFF})
	if !errors.Is(err, ErrOrphanFinalization) {
		t.Fatalf("expected ErrOrphanFinalization, got %v", err)
	}
}
