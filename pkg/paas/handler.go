package paas

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

// HandlerConfig bundles a Handler's pluggable capabilities and retry policy.
type HandlerConfig struct {
	Fetcher  InputFetcher
	Storer   ProofStorer
	Loader   ProofLoader
	Resolver HostResolver
	Retry    RetryConfig
}

// Handler coordinates proof tasks through the Created -> InputFetched ->
// Submitted -> Proving -> Completed|Failed lifecycle (spec §4.10). Tasks for
// distinct programs run concurrently; per-program dedup keys serialize tasks
// that share a program (spec §5 "per-program serialization is enforced by
// dedup keys").
type Handler struct {
	fetcher  InputFetcher
	storer   ProofStorer
	loader   ProofLoader
	resolver HostResolver
	retry    *RetryScheduler

	mu    sync.Mutex
	tasks map[xtypes.ProofKey]*Task

	programLocks sync.Map // map[string]*sync.Mutex, keyed by ProofKey.Program
}

// NewHandler constructs a Handler from cfg.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		fetcher:  cfg.Fetcher,
		storer:   cfg.Storer,
		loader:   cfg.Loader,
		resolver: cfg.Resolver,
		retry:    NewRetryScheduler(cfg.Retry),
		tasks:    make(map[xtypes.ProofKey]*Task),
	}
}

// Submit registers a new task and begins driving it toward completion. It
// returns immediately; use Get to poll status.
func (h *Handler) Submit(ctx context.Context, key xtypes.ProofKey, dependencies []xtypes.ProofKey) *Task {
	h.mu.Lock()
	if existing, ok := h.tasks[key]; ok {
		h.mu.Unlock()
		return existing
	}
	task := NewTask(key, dependencies)
	h.tasks[key] = task
	h.mu.Unlock()

	go h.drive(ctx, task)
	return task
}

// Get returns the task registered under key, if any.
func (h *Handler) Get(key xtypes.ProofKey) (*Task, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tasks[key]
	return t, ok
}

func (h *Handler) programLock(program string) *sync.Mutex {
	lock, _ := h.programLocks.LoadOrStore(program, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// drive runs one attempt of task through as much of the lifecycle as
// succeeds, scheduling a retry on transient failure.
func (h *Handler) drive(ctx context.Context, task *Task) {
	lock := h.programLock(task.Key.Program)
	lock.Lock()
	defer lock.Unlock()

	h.mu.Lock()
	task.Attempts++
	attempts := task.Attempts
	h.mu.Unlock()

	err := h.attempt(ctx, task)

	h.mu.Lock()
	defer h.mu.Unlock()

	if err == nil {
		return
	}
	task.LastError = err

	if errors.Is(err, ErrPermanentFailure) {
		task.State = StateFailed
		return
	}

	task.State = StateCreated
	scheduled := h.retry.ScheduleRetry(task.Key, attempts, func() { h.drive(ctx, task) })
	if !scheduled {
		task.State = StateFailed
		task.LastError = fmt.Errorf("paas: %s exhausted retries: %w", task.Key, err)
	}
}

// attempt runs the fetch -> submit -> prove -> store pipeline once.
func (h *Handler) attempt(ctx context.Context, task *Task) error {
	input, err := h.fetchInput(ctx, task)
	if err != nil {
		return err
	}
	task.Input = input
	if err := task.transitionTo(StateInputFetched); err != nil {
		return fmt.Errorf("%w: %v", ErrPermanentFailure, err)
	}

	if err := task.transitionTo(StateSubmitted); err != nil {
		return fmt.Errorf("%w: %v", ErrPermanentFailure, err)
	}

	host, err := h.resolver.Resolve(task.Key)
	if err != nil {
		return fmt.Errorf("%w: resolve host for %s: %v", ErrPermanentFailure, task.Key, err)
	}

	if err := task.transitionTo(StateProving); err != nil {
		return fmt.Errorf("%w: %v", ErrPermanentFailure, err)
	}

	proof, err := host.Prove(ctx, task.Key, task.Input)
	if err != nil {
		task.transitionTo(StateSubmitted) //nolint:errcheck // best-effort rollback before surfacing err
		return err
	}
	task.Proof = proof

	if err := h.storer.StoreProof(ctx, task.Key, proof); err != nil {
		return err
	}

	if err := task.transitionTo(StateCompleted); err != nil {
		return fmt.Errorf("%w: %v", ErrPermanentFailure, err)
	}
	return nil
}

// fetchInput retrieves task's input, routing through its declared
// dependencies when present (spec §4.10 "dependency routing": batch/agg
// proofs' input fetching retrieves dependency ProofKeys, loads their stored
// proof receipts to build aggregated input; missing/still-pending
// dependencies yield transient failure).
func (h *Handler) fetchInput(ctx context.Context, task *Task) ([]byte, error) {
	if len(task.Dependencies) == 0 {
		return h.fetcher.FetchInput(ctx, task.Key)
	}

	if h.loader == nil {
		return nil, fmt.Errorf("%w: %s has dependencies but no proof loader is configured", ErrPermanentFailure, task.Key)
	}

	aggregated := make([][]byte, 0, len(task.Dependencies))
	for _, dep := range task.Dependencies {
		proof, done, err := h.loader.LoadProof(ctx, dep)
		if err != nil {
			return nil, fmt.Errorf("%w: load dependency %s: %v", ErrTransientFailure, dep, err)
		}
		if !done {
			return nil, fmt.Errorf("%w: dependency %s not yet proved", ErrTransientFailure, dep)
		}
		aggregated = append(aggregated, proof)
	}
	return concatProofs(aggregated), nil
}

func concatProofs(proofs [][]byte) []byte {
	total := 0
	for _, p := range proofs {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range proofs {
		out = append(out, p...)
	}
	return out
}
