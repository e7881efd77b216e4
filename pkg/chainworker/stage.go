package chainworker

import (
	"fmt"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

// BlockStage caches per-account copies mutated while one block is being
// validated, so that any tx-level failure can abort the whole block without
// having touched the accessor's durably-cached state at all (spec §7
// "any state-invariant or auth failure aborts the block; prior partial
// state is discarded because all mutation happens inside a write batch that
// is only committed on success").
type BlockStage struct {
	accessor StateAccessor

	staged     map[xtypes.AccountId]*AccountState
	created    map[xtypes.AccountId]bool
	nextSerial xtypes.AccountSerial
	haveSerial bool
}

func newBlockStage(accessor StateAccessor) *BlockStage {
	return &BlockStage{
		accessor: accessor,
		staged:   make(map[xtypes.AccountId]*AccountState),
		created:  make(map[xtypes.AccountId]bool),
	}
}

// Account returns the in-progress state for id as staged so far this block,
// falling through to the underlying accessor if the block has not yet
// touched it. It is exported for ComputeStateRoot and ReplayASMLog
// implementations, which run against the not-yet-committed stage.
func (s *BlockStage) Account(id xtypes.AccountId) (*AccountState, error) {
	return s.get(id)
}

// Staged returns every account this block has touched so far, keyed by
// account id. The returned map is shared with the stage; callers must treat
// it as read-only.
func (s *BlockStage) Staged() map[xtypes.AccountId]*AccountState {
	return s.staged
}

// get returns the staged copy for id, loading and copying it from the
// accessor on first touch.
func (s *BlockStage) get(id xtypes.AccountId) (*AccountState, error) {
	if acc, ok := s.staged[id]; ok {
		return acc, nil
	}
	acc, err := s.accessor.GetAccount(id)
	if err != nil {
		return nil, err
	}
	cp := *acc
	s.staged[id] = &cp
	return &cp, nil
}

// CreateIfAbsent returns the existing staged/durable account at id, or
// stages a freshly allocated one if none exists yet. Exported for
// ReplayASMLog implementations that need to credit an account the ASM side
// references for the first time (e.g. a bridge deposit's destination).
func (s *BlockStage) CreateIfAbsent(id xtypes.AccountId, kind AccountKind, initialBalance xtypes.Amount) (*AccountState, bool, error) {
	return s.createIfAbsent(id, kind, initialBalance)
}

// createIfAbsent returns the existing staged/durable account at id, or
// stages a freshly allocated one if none exists yet.
func (s *BlockStage) createIfAbsent(id xtypes.AccountId, kind AccountKind, initialBalance xtypes.Amount) (*AccountState, bool, error) {
	if acc, err := s.get(id); err == nil {
		return acc, false, nil
	} else if err != ErrAccountNotFound {
		return nil, false, err
	}
	if !s.haveSerial {
		s.nextSerial = s.accessor.PeekNextSerial()
		s.haveSerial = true
	}
	acc := &AccountState{Serial: s.nextSerial, Id: id, Kind: kind, Balance: initialBalance}
	s.nextSerial++
	s.staged[id] = acc
	s.created[id] = true
	return acc, true, nil
}

// commit flushes every staged account back into the accessor: new accounts
// via CreateAccount (in ascending-serial order, preserving the contiguous-
// serial invariant), existing ones via ApplyAccount. Called only once the
// whole block has validated successfully.
func (s *BlockStage) commit() error {
	newIds := make([]xtypes.AccountId, 0, len(s.created))
	for id := range s.created {
		newIds = append(newIds, id)
	}
	for i := 0; i < len(newIds); i++ {
		for j := i + 1; j < len(newIds); j++ {
			if s.staged[newIds[j]].Serial < s.staged[newIds[i]].Serial {
				newIds[i], newIds[j] = newIds[j], newIds[i]
			}
		}
	}
	for _, id := range newIds {
		acc := s.staged[id]
		created, err := s.accessor.CreateAccount(id, acc.Kind, 0)
		if err != nil {
			return fmt.Errorf("chainworker: commit new account %x: %w", id, err)
		}
		acc.Serial = created.Serial
		if err := s.accessor.ApplyAccount(acc); err != nil {
			return fmt.Errorf("chainworker: commit new account %x: %w", id, err)
		}
	}
	for id, acc := range s.staged {
		if s.created[id] {
			continue
		}
		if err := s.accessor.ApplyAccount(acc); err != nil {
			return fmt.Errorf("chainworker: commit account %x: %w", id, err)
		}
	}
	return nil
}
