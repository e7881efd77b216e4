package chainworker

import (
	"fmt"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

// AccountKind distinguishes a generic account (opaque-message handler, no
// proof verification) from a snark-account (VK-gated state-transition
// proofs) — spec §3.
type AccountKind uint8

const (
	AccountKindGeneric AccountKind = iota
	AccountKindSnark
)

// AccountState is one account's mutable state, as cached by a StateAccessor
// for the duration of a block's execution.
type AccountState struct {
	Serial  xtypes.AccountSerial
	Id      xtypes.AccountId
	Kind    AccountKind
	Balance xtypes.Amount

	// VK and SeqNo are only meaningful for AccountKindSnark accounts.
	VK    []byte
	SeqNo uint64

	// InboxNextIndex is the next msg_idx this account's inbox expects to
	// consume (spec §8 "msg_idx == next_expected_idx accepted").
	InboxNextIndex uint64
	InboxRoot      []byte
}

// ErrAccountNotFound is returned by a StateAccessor when no account exists
// at the requested id and the caller did not ask for creation.
var ErrAccountNotFound = fmt.Errorf("chainworker: account not found")

// StateAccessor caches per-account state across a block's execution,
// reading through to (and eventually flushing to) the durable ledger store
// that backs it (spec §4.7 "applies blocks sequentially ... caching
// per-account state").
type StateAccessor interface {
	// GetAccount returns the cached or freshly-loaded state for id, or
	// ErrAccountNotFound if no such account exists.
	GetAccount(id xtypes.AccountId) (*AccountState, error)

	// PeekNextSerial reports the serial CreateAccount would assign next,
	// without allocating it — used by block staging to reserve serials for
	// accounts a block creates before the block is known to succeed.
	PeekNextSerial() xtypes.AccountSerial

	// CreateAccount allocates a new account at the next contiguous serial
	// (spec §4.7 "new-account serials must be contiguous") and caches it.
	CreateAccount(id xtypes.AccountId, kind AccountKind, initialBalance xtypes.Amount) (*AccountState, error)

	// ApplyAccount overwrites the cached state for an existing account with
	// acc, once a block that mutated a staged copy of it has fully
	// validated. Applying an account id CreateAccount has not yet been
	// called for is an error.
	ApplyAccount(acc *AccountState) error
}

// MapStateAccessor is an in-memory StateAccessor, suitable for tests and for
// a standalone prover host that has no durable ledger backing it. Production
// callers wire a store-backed accessor from pkg/storage instead.
type MapStateAccessor struct {
	accounts   map[xtypes.AccountId]*AccountState
	nextSerial xtypes.AccountSerial
}

// NewMapStateAccessor returns an empty accessor with serials starting at 0.
func NewMapStateAccessor() *MapStateAccessor {
	return &MapStateAccessor{accounts: make(map[xtypes.AccountId]*AccountState)}
}

// Seed installs an account directly, for tests that need a pre-existing
// account rather than one created mid-block. The account's serial must not
// collide with any serial CreateAccount will later assign.
func (a *MapStateAccessor) Seed(acc *AccountState) {
	a.accounts[acc.Id] = acc
	if acc.Serial >= a.nextSerial {
		a.nextSerial = acc.Serial + 1
	}
}

func (a *MapStateAccessor) GetAccount(id xtypes.AccountId) (*AccountState, error) {
	acc, ok := a.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

func (a *MapStateAccessor) PeekNextSerial() xtypes.AccountSerial { return a.nextSerial }

func (a *MapStateAccessor) CreateAccount(id xtypes.AccountId, kind AccountKind, initialBalance xtypes.Amount) (*AccountState, error) {
	if _, exists := a.accounts[id]; exists {
		return nil, fmt.Errorf("chainworker: account %x already exists", id)
	}
	acc := &AccountState{
		Serial:  a.nextSerial,
		Id:      id,
		Kind:    kind,
		Balance: initialBalance,
	}
	a.accounts[id] = acc
	a.nextSerial++
	return acc, nil
}

func (a *MapStateAccessor) ApplyAccount(acc *AccountState) error {
	if _, exists := a.accounts[acc.Id]; !exists {
		return fmt.Errorf("chainworker: cannot apply unknown account %x", acc.Id)
	}
	cp := *acc
	a.accounts[acc.Id] = &cp
	return nil
}
