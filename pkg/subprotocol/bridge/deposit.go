package bridge

import "github.com/strataorch/orchestration/pkg/xtypes"

// DepositStatus is the deposit state machine's current phase (spec §4.5
// "Created → Accepted → Dispatched → Fulfilled → Reimbursed").
type DepositStatus uint8

const (
	DepositCreated DepositStatus = iota
	DepositAccepted
	DepositDispatched
	DepositFulfilled
	DepositReimbursed
)

func (s DepositStatus) String() string {
	switch s {
	case DepositCreated:
		return "created"
	case DepositAccepted:
		return "accepted"
	case DepositDispatched:
		return "dispatched"
	case DepositFulfilled:
		return "fulfilled"
	case DepositReimbursed:
		return "reimbursed"
	default:
		return "unknown"
	}
}

// validTransitions enumerates the deposit state machine's allowed edges,
// grounded on the teacher's pkg/proof lifecycle-style explicit transition
// table rather than an ad-hoc if-chain.
var validTransitions = map[DepositStatus][]DepositStatus{
	DepositCreated:    {DepositAccepted},
	DepositAccepted:   {DepositDispatched},
	DepositDispatched: {DepositFulfilled, DepositReimbursed},
}

func (s DepositStatus) canTransitionTo(next DepositStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Deposit is one per-index bridge deposit entry.
type Deposit struct {
	Index       uint64
	DepositorId xtypes.AccountId
	Amount      xtypes.Amount
	BitcoinTxId xtypes.Hash
	Status      DepositStatus
}

func (d *Deposit) transition(next DepositStatus) error {
	if !d.Status.canTransitionTo(next) {
		return &invalidTransitionError{from: d.Status, to: next}
	}
	d.Status = next
	return nil
}

type invalidTransitionError struct {
	from, to DepositStatus
}

func (e *invalidTransitionError) Error() string {
	return "bridge: invalid deposit transition " + e.from.String() + " -> " + e.to.String()
}
