// Package exectracker implements the exec-chain tracker (spec §4.8, C12):
// fork-choice for the EE chain given OL-finalized heads. It maintains
// best_block, finalized_block, and a tree of unfinalized blocks keyed by
// exec blockid, processing NewBlock/OLConsensusUpdate as commands over a
// single-threaded worker so every mutation is serialized by channel receive
// order (spec §4.8 "Ordering").
package exectracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/strataorch/orchestration/pkg/svc"
	"github.com/strataorch/orchestration/pkg/xtypes"
)

// BlockRecord is one EE block as the tracker knows it: its own id, its
// parent's, and its height.
type BlockRecord struct {
	Hash   xtypes.Hash
	Parent xtypes.Hash
	Height uint64
}

// Store resolves a block record by id, e.g. from the durable EE-exec-record
// store (spec §3 "EE exec records"). NewBlock consults it for blocks the
// tracker has not already cached in its unfinalized tree.
type Store interface {
	GetBlock(hash xtypes.Hash) (*BlockRecord, error)
}

// ErrOrphanFinalization is returned when OLConsensusUpdate names a block the
// tracker cannot find anywhere — neither in its unfinalized tree nor in the
// backing store (spec §4.8 "if finalized equals an orphan -> defer").
// Callers should retry later rather than treat this as fatal.
var ErrOrphanFinalization = errors.New("exectracker: finalized block is an orphan, deferring")

// ErrDeepReorg is returned when OLConsensusUpdate names a block deeper than
// the tracker can reconcile with its current tree — a reorg past what this
// tracker retains (spec §4.8 "deep reorg (fatal, unimplemented)"). The
// worker terminates on this error.
var ErrDeepReorg = errors.New("exectracker: deep reorg past tracked history")

// ErrUnknownParent is returned by NewBlock when the store has no record for
// the block, or when the block's parent is neither the finalized tip nor in
// the unfinalized tree (the store is not consulted for the parent).
var ErrUnknownParent = errors.New("exectracker: block's parent is unknown")

type node struct {
	rec      *BlockRecord
	children []xtypes.Hash
}

// HeadUpdate is published on the tracker's watch channel whenever best_block
// changes (spec §4.8 "a watch channel publishes the new preconfirmation
// head").
type HeadUpdate struct {
	BestBlock xtypes.Hash
	Height    uint64
}

// Tracker runs the exec-chain fork-choice worker on a pkg/svc harness.
type Tracker struct {
	harness *svc.Harness[HeadUpdate]
	store   Store

	unfinalized map[xtypes.Hash]*node

	best       xtypes.Hash
	bestHeight uint64

	finalized       xtypes.Hash
	finalizedHeight uint64
}

// New constructs a Tracker rooted at genesis, which is treated as already
// finalized.
func New(store Store, genesis BlockRecord, cfg svc.Config) *Tracker {
	t := &Tracker{
		store:           store,
		unfinalized:     make(map[xtypes.Hash]*node),
		best:            genesis.Hash,
		bestHeight:      genesis.Height,
		finalized:       genesis.Hash,
		finalizedHeight: genesis.Height,
	}
	t.harness = svc.New[HeadUpdate](cfg, nil)
	t.harness.Publish(HeadUpdate{BestBlock: genesis.Hash, Height: genesis.Height})
	return t
}

// Start launches the tracker's worker goroutine.
func (t *Tracker) Start(ctx context.Context) error { return t.harness.Start(ctx) }

// Stop stops the tracker's worker goroutine.
func (t *Tracker) Stop() error { return t.harness.Stop() }

// Watch returns a channel receiving every subsequent best-block change,
// seeded with the current head.
func (t *Tracker) Watch() <-chan HeadUpdate { return t.harness.Watch() }

// NewBlock submits a newly observed EE block to the tracker (spec §4.8
// "NewBlock(hash): fetch the record from storage; if parent is known,
// append; if parent is the finalized tip, it may become best. If appending
// changes best, a watch channel publishes the new preconfirmation head.").
func (t *Tracker) NewBlock(ctx context.Context, hash xtypes.Hash) error {
	reply := make(chan svc.Response, 1)
	if err := t.harness.Submit(ctx, svc.Command{
		Run:   func() svc.Response { return t.applyNewBlock(hash) },
		Reply: reply,
	}); err != nil {
		return err
	}
	resp := <-reply
	return resp.Err
}

// OLConsensusUpdate submits an OL-finalized head to the tracker (spec §4.8
// "OLConsensusUpdate({finalized})").
func (t *Tracker) OLConsensusUpdate(ctx context.Context, finalized xtypes.Hash) error {
	reply := make(chan svc.Response, 1)
	if err := t.harness.Submit(ctx, svc.Command{
		Run:   func() svc.Response { return t.applyOLConsensusUpdate(finalized) },
		Reply: reply,
	}); err != nil {
		return err
	}
	resp := <-reply
	return resp.Err
}

// GetBestBlock reports the current preconfirmation head.
func (t *Tracker) GetBestBlock() (xtypes.Hash, uint64) { return t.best, t.bestHeight }

// GetFinalizedBlocknum reports the current finalized height.
func (t *Tracker) GetFinalizedBlocknum() uint64 { return t.finalizedHeight }

// IsCanonical reports whether hash is on the path from the finalized tip to
// best_block.
func (t *Tracker) IsCanonical(hash xtypes.Hash) bool {
	if hash == t.finalized {
		return true
	}
	cur := t.best
	for cur != t.finalized {
		if cur == hash {
			return true
		}
		n, ok := t.unfinalized[cur]
		if !ok {
			return false
		}
		cur = n.rec.Parent
	}
	return false
}

// applyNewBlock runs on the worker goroutine only.
func (t *Tracker) applyNewBlock(hash xtypes.Hash) svc.Response {
	if _, known := t.unfinalized[hash]; known {
		return svc.Continue()
	}
	rec, err := t.store.GetBlock(hash)
	if err != nil {
		return svc.Recoverable(fmt.Errorf("exectracker: fetch block %x: %w", hash, err))
	}
	if rec == nil {
		return svc.Recoverable(fmt.Errorf("%w: %x", ErrUnknownParent, hash))
	}

	parentKnown := rec.Parent == t.finalized
	if !parentKnown {
		_, parentKnown = t.unfinalized[rec.Parent]
	}
	if !parentKnown {
		return svc.Recoverable(fmt.Errorf("%w: %x", ErrUnknownParent, rec.Parent))
	}

	t.unfinalized[hash] = &node{rec: rec}
	if parent, ok := t.unfinalized[rec.Parent]; ok {
		parent.children = append(parent.children, hash)
	}

	if rec.Height > t.bestHeight {
		t.best = hash
		t.bestHeight = rec.Height
		t.harness.Publish(HeadUpdate{BestBlock: hash, Height: rec.Height})
	}
	return svc.Continue()
}

// applyOLConsensusUpdate runs on the worker goroutine only.
func (t *Tracker) applyOLConsensusUpdate(finalized xtypes.Hash) svc.Response {
	if finalized == t.finalized {
		return svc.Continue()
	}

	target, known := t.unfinalized[finalized]
	if !known {
		rec, err := t.store.GetBlock(finalized)
		if err != nil || rec == nil {
			return svc.Recoverable(fmt.Errorf("%w: %x", ErrOrphanFinalization, finalized))
		}
		if rec.Height <= t.finalizedHeight {
			return svc.Fatal(fmt.Errorf("%w: finalized height %d <= current tip %d", ErrDeepReorg, rec.Height, t.finalizedHeight))
		}
		return svc.Fatal(fmt.Errorf("%w: %x not reachable from tracked tree", ErrDeepReorg, finalized))
	}

	if !t.isDescendantOfFinalized(target.rec) {
		return svc.Fatal(fmt.Errorf("%w: %x does not extend the finalized chain", ErrDeepReorg, finalized))
	}

	for hash, n := range t.unfinalized {
		if !t.isDescendantOf(n.rec, finalized) {
			delete(t.unfinalized, hash)
		}
	}
	delete(t.unfinalized, finalized)

	t.finalized = finalized
	t.finalizedHeight = target.rec.Height

	if !t.isCanonicalUnlocked(t.best) {
		t.recomputeBest()
	}
	return svc.Continue()
}

// isDescendantOfFinalized reports whether rec's ancestor chain reaches the
// current finalized tip without leaving the unfinalized tree.
func (t *Tracker) isDescendantOfFinalized(rec *BlockRecord) bool {
	cur := rec
	for {
		if cur.Parent == t.finalized {
			return true
		}
		n, ok := t.unfinalized[cur.Parent]
		if !ok {
			return false
		}
		cur = n.rec
	}
}

// isDescendantOf reports whether rec's ancestor chain reaches ancestor
// without leaving the unfinalized tree.
func (t *Tracker) isDescendantOf(rec *BlockRecord, ancestor xtypes.Hash) bool {
	cur := rec
	for {
		if cur.Hash == ancestor || cur.Parent == ancestor {
			return true
		}
		n, ok := t.unfinalized[cur.Parent]
		if !ok {
			return false
		}
		cur = n.rec
	}
}

func (t *Tracker) isCanonicalUnlocked(hash xtypes.Hash) bool {
	if hash == t.finalized {
		return true
	}
	_, ok := t.unfinalized[hash]
	return ok && t.isDescendantOf(t.unfinalized[hash].rec, t.finalized)
}

// recomputeBest picks the remaining tracked block with the greatest height,
// falling back to the finalized tip if nothing remains.
func (t *Tracker) recomputeBest() {
	best := t.finalized
	bestHeight := t.finalizedHeight
	for hash, n := range t.unfinalized {
		if n.rec.Height > bestHeight {
			best = hash
			bestHeight = n.rec.Height
		}
	}
	t.best = best
	t.bestHeight = bestHeight
	t.harness.Publish(HeadUpdate{BestBlock: best, Height: bestHeight})
}
