package paas

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

type fakeFetcher struct {
	mu        sync.Mutex
	failFirst int
	calls     int
}

func (f *fakeFetcher) FetchInput(ctx context.Context, key xtypes.ProofKey) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return nil, fmt.Errorf("%w: input not ready yet", ErrTransientFailure)
	}
	return []byte("input-for-" + key.Program), nil
}

type fakeStorer struct {
	mu      sync.Mutex
	stored  map[xtypes.ProofKey][]byte
	calls   int
}

func (s *fakeStorer) StoreProof(ctx context.Context, key xtypes.ProofKey, proof []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stored == nil {
		s.stored = make(map[xtypes.ProofKey][]byte)
	}
	s.stored[key] = proof
	s.calls++
	return nil
}

type fakeHost struct{}

func (fakeHost) Prove(ctx context.Context, key xtypes.ProofKey, input []byte) ([]byte, error) {
	return append([]byte("proof-"), input...), nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(key xtypes.ProofKey) (Host, error) { return fakeHost{}, nil }

func waitForState(t *testing.T, task *Task, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if task.State == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, last state %s (attempts=%d, err=%v)", want, task.State, task.Attempts, task.LastError)
}

func TestHandlerRetriesTransientInputFailureThenSucceeds(t *testing.T) {
	fetcher := &fakeFetcher{failFirst: 1}
	storer := &fakeStorer{}

	h := NewHandler(HandlerConfig{
		Fetcher:  fetcher,
		Storer:   storer,
		Resolver: fakeResolver{},
		Retry:    RetryConfig{MaxRetries: 3, BaseDelay: 5 * time.Millisecond},
	})

	key := xtypes.ProofKey{Program: "batch-proof", Backend: "SP1"}
	task := h.Submit(context.Background(), key, nil)

	waitForState(t, task, StateCompleted, time.Second)

	if task.Attempts != 2 {
		t.Fatalf("expected 2 attempts (1 transient failure + 1 success), got %d", task.Attempts)
	}
	storer.mu.Lock()
	calls := storer.calls
	storer.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected store_proof invoked exactly once, got %d", calls)
	}
}

func TestHandlerPermanentResolveFailureNeverRetries(t *testing.T) {
	fetcher := &fakeFetcher{}
	storer := &fakeStorer{}
	resolver := errorResolver{err: errors.New("no such backend")}

	h := NewHandler(HandlerConfig{
		Fetcher:  fetcher,
		Storer:   storer,
		Resolver: resolver,
		Retry:    RetryConfig{MaxRetries: 3, BaseDelay: 5 * time.Millisecond},
	})

	key := xtypes.ProofKey{Program: "agg-proof", Backend: "unknown"}
	task := h.Submit(context.Background(), key, nil)

	waitForState(t, task, StateFailed, time.Second)

	if task.Attempts != 1 {
		t.Fatalf("expected exactly one attempt for a permanent failure, got %d", task.Attempts)
	}
}

type errorResolver struct{ err error }

func (r errorResolver) Resolve(key xtypes.ProofKey) (Host, error) { return nil, r.err }

type fakeLoader struct {
	mu    sync.Mutex
	proofs map[xtypes.ProofKey][]byte
}

func (l *fakeLoader) put(key xtypes.ProofKey, proof []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.proofs == nil {
		l.proofs = make(map[xtypes.ProofKey][]byte)
	}
	l.proofs[key] = proof
}

func (l *fakeLoader) LoadProof(ctx context.Context, key xtypes.ProofKey) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	proof, ok := l.proofs[key]
	return proof, ok, nil
}

func TestHandlerRoutesDependencyInputsOnceDependenciesAreReady(t *testing.T) {
	loader := &fakeLoader{}
	storer := &fakeStorer{}

	h := NewHandler(HandlerConfig{
		Fetcher:  &fakeFetcher{},
		Storer:   storer,
		Loader:   loader,
		Resolver: fakeResolver{},
		Retry:    RetryConfig{MaxRetries: 5, BaseDelay: 5 * time.Millisecond},
	})

	dep := xtypes.ProofKey{Program: "leaf-a", Backend: "SP1"}
	aggKey := xtypes.ProofKey{Program: "agg", Backend: "SP1"}

	aggTask := h.Submit(context.Background(), aggKey, []xtypes.ProofKey{dep})

	// The dependency is not ready yet; the aggregate task must stay pending
	// and retry rather than fail outright.
	time.Sleep(20 * time.Millisecond)
	if aggTask.State == StateFailed {
		t.Fatalf("expected aggregate task to retry on a missing dependency, not fail")
	}

	loader.put(dep, []byte("leaf-proof-a"))

	waitForState(t, aggTask, StateCompleted, time.Second)
}
