// Package eeaccount models the Execution Environment account: the OL account
// that runs EVM semantics (spec §3 "EE account state", §4.9). It applies
// inbox messages to a small account-state record, drives an injected EVM
// payload builder across the resulting PayloadAttributes boundary, and emits
// an ExecBlockPackage describing what the built block consumed and produced.
//
// The EVM executor itself is out of scope (spec §1): this package only models
// the boundary go-ethereum's engine API already shapes (PayloadAttributes in,
// a built payload out), the same thin-adapter posture as the teacher's
// pkg/execution/executor.go wrapping a "canonical pipeline" it does not itself
// implement.
package eeaccount

import "github.com/strataorch/orchestration/pkg/xtypes"

// InboxKind distinguishes the three recognized inbox-message shapes (spec
// §4.9 "deposits ... subject-transfers and commits are recognized").
type InboxKind uint8

const (
	InboxKindDeposit InboxKind = iota
	InboxKindSubjectTransfer
	InboxKindCommit
)

// InboxMessage is one message addressed to the EE account this slot, already
// decoded from the opaque account-message payload that carried it.
type InboxMessage struct {
	Kind    InboxKind
	Subject xtypes.AccountId
	Amount  xtypes.Amount
	Payload []byte
}

// DepositInput is an ordered deposit/transfer entry awaiting inclusion in the
// next EE block, in arrival order (spec §3 "pending_inputs[] ... must appear
// in the next EE block in arrival order").
type DepositInput struct {
	Subject xtypes.AccountId
	Amount  xtypes.Amount
}

// FinalizationRecord tracks one built-but-not-yet-OL-finalized EE block, so
// its deposits can be reconciled once the owning OL slot finalizes (spec §3
// "EE exec records: created when a payload is accepted; finalized when their
// OL slot finalizes").
type FinalizationRecord struct {
	ExecBlkId xtypes.Hash
	OLSlot    xtypes.Slot
}

// State is the EE account's mutable state (spec §3).
type State struct {
	LastExecBlkId xtypes.Hash
	TrackedBalance xtypes.Amount
	PendingInputs  []DepositInput
	PendingFincls  []FinalizationRecord
}

// Clone returns a deep copy, so a caller can stage mutations and discard them
// on failure the same way pkg/chainworker stages account state per block.
func (s *State) Clone() *State {
	cp := *s
	cp.PendingInputs = append([]DepositInput(nil), s.PendingInputs...)
	cp.PendingFincls = append([]FinalizationRecord(nil), s.PendingFincls...)
	return &cp
}

// ApplyInboxMessages applies a slot's worth of inbox messages to state in
// place (spec §4.9 step 1): deposits increment tracked balance and enqueue a
// subject-deposit input; subject-transfers and commits are recognized but do
// not themselves move balance (a subject-transfer's balance effect is carried
// by the destination account's own credit, handled at the OL layer — this
// package only tracks what the EE block must include as an input).
func ApplyInboxMessages(state *State, messages []InboxMessage) {
	for _, m := range messages {
		switch m.Kind {
		case InboxKindDeposit:
			state.TrackedBalance += m.Amount
			state.PendingInputs = append(state.PendingInputs, DepositInput{Subject: m.Subject, Amount: m.Amount})
		case InboxKindSubjectTransfer, InboxKindCommit:
			// Recognized, no account-state effect beyond inclusion in the
			// block the next payload build produces.
		}
	}
}
