package paas

import (
	"context"
	"errors"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

// ErrTransientFailure wraps a failure that should be retried (spec §4.10
// "input fetcher may fail transiently or permanently").
var ErrTransientFailure = errors.New("paas: transient failure")

// ErrPermanentFailure wraps a failure that should never be retried.
var ErrPermanentFailure = errors.New("paas: permanent failure")

// InputFetcher retrieves program input by program id. Dependency-bearing
// tasks (batch/aggregate proofs) build their input from their dependencies'
// stored proofs through ProofLoader instead.
type InputFetcher interface {
	FetchInput(ctx context.Context, key xtypes.ProofKey) ([]byte, error)
}

// ProofStorer persists a completed proof.
type ProofStorer interface {
	StoreProof(ctx context.Context, key xtypes.ProofKey, proof []byte) error
}

// ProofLoader retrieves a previously stored proof, used to build aggregate
// input from a task's dependencies (spec §4.10 "dependency routing").
type ProofLoader interface {
	LoadProof(ctx context.Context, key xtypes.ProofKey) ([]byte, bool, error)
}

// Host is a single zkVM backend capable of proving one program's input.
type Host interface {
	Prove(ctx context.Context, key xtypes.ProofKey, input []byte) ([]byte, error)
}

// HostResolver chooses the zkVM backend for a (program, backend) pair
// (spec §4.10 "HostResolver").
type HostResolver interface {
	Resolve(key xtypes.ProofKey) (Host, error)
}
