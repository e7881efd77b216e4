// Package paas implements Proof-as-a-Service (spec §4.10, C13): a task
// lifecycle that fetches program input, submits it to a zkVM backend, and
// stores the resulting proof, with retry on transient failure and
// dependency routing for aggregate/batch proofs.
package paas

import "github.com/strataorch/orchestration/pkg/xtypes"

// State is a proof task's fine-grained lifecycle stage (spec §4.10).
type State int

const (
	StateCreated State = iota
	StateInputFetched
	StateSubmitted
	StateProving
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInputFetched:
		return "input_fetched"
	case StateSubmitted:
		return "submitted"
	case StateProving:
		return "proving"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CoarseStatus is the glossary's simplified vocabulary ("Proof task =
// (program, backend, dependencies[], attempts, status ∈ {pending,
// in-progress, done, failed})"), distinct from but mapped from State.
type CoarseStatus int

const (
	StatusPending CoarseStatus = iota
	StatusInProgress
	StatusDone
	StatusFailed
)

func (s CoarseStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in-progress"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Coarse maps a fine-grained State onto the glossary's coarse status.
func (s State) Coarse() CoarseStatus {
	switch s {
	case StateCreated, StateInputFetched, StateSubmitted:
		return StatusPending
	case StateProving:
		return StatusInProgress
	case StateCompleted:
		return StatusDone
	case StateFailed:
		return StatusFailed
	default:
		return StatusFailed
	}
}

// StateTransition names one legal edge in the task lifecycle.
type StateTransition struct {
	From State
	To   State
}

// ValidTransitions enumerates every legal state change. A transition not
// listed here is rejected by Task.transitionTo.
var ValidTransitions = map[StateTransition]bool{
	{StateCreated, StateInputFetched}: true,
	{StateCreated, StateFailed}:       true,
	{StateInputFetched, StateSubmitted}: true,
	{StateInputFetched, StateCreated}:   true, // transient input-fetch failure, retry from scratch
	{StateInputFetched, StateFailed}:    true,
	{StateSubmitted, StateProving}:  true,
	{StateSubmitted, StateFailed}:   true,
	{StateProving, StateCompleted}:  true,
	{StateProving, StateFailed}:     true,
	{StateProving, StateSubmitted}:  true, // transient prover failure, retry submission
}

func isValidTransition(from, to State) bool {
	return ValidTransitions[StateTransition{From: from, To: to}]
}

// Task is one unit of proving work, keyed by (program, backend) per
// xtypes.ProofKey.
type Task struct {
	Key          xtypes.ProofKey
	Dependencies []xtypes.ProofKey
	State        State
	Attempts     int
	LastError    error
	Input        []byte
	Proof        []byte
}

// NewTask creates a task in its initial state.
func NewTask(key xtypes.ProofKey, dependencies []xtypes.ProofKey) *Task {
	return &Task{Key: key, Dependencies: dependencies, State: StateCreated}
}

// transitionTo advances t to 'to', returning an error if the edge is not in
// ValidTransitions.
func (t *Task) transitionTo(to State) error {
	if !isValidTransition(t.State, to) {
		return &invalidTransitionError{From: t.State, To: to}
	}
	t.State = to
	return nil
}

type invalidTransitionError struct {
	From State
	To   State
}

func (e *invalidTransitionError) Error() string {
	return "paas: invalid state transition from " + e.From.String() + " to " + e.To.String()
}
