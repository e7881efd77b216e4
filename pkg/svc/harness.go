// Package svc is the generic worker harness every blocking background
// worker (chain worker, block assembly, checkpoint sync, exec tracker, DB
// compaction) is built on (spec §5). It generalizes the command-channel /
// oneshot-reply / watch-channel run-loop shape into one reusable type so
// each worker only supplies its own command handling and per-tick work.
package svc

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// DefaultCommandCapacity is the bounded command-channel capacity spec §5
// names as typical for a worker's command queue.
const DefaultCommandCapacity = 64

// State is a worker's run state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// Response is what a command or tick handler returns. Continue means the
// worker keeps running (even if the handler itself failed — the error, if
// any, is only logged); ShouldExit terminates the run loop, the fatal path
// for Non-recoverable errors (spec §7 "Worker-boundary").
type Response struct {
	Continue   bool
	ShouldExit bool
	Err        error
}

// Continue is the Response value for a successfully handled command.
func Continue() Response { return Response{Continue: true} }

// Fatal wraps err as a ShouldExit response, for a handler that hit a
// Non-recoverable condition (spec §7).
func Fatal(err error) Response { return Response{ShouldExit: true, Err: err} }

// Recoverable wraps err as a Continue response, for any other error kind in
// the spec §7 taxonomy (malformed-input, invalid-authentication,
// state-invariant-violation, resource-missing, capacity-exceeded).
func Recoverable(err error) Response { return Response{Continue: true, Err: err} }

// Command is one unit of work submitted to a worker over its bounded command
// channel. Run executes on the worker's own goroutine, so it may touch the
// worker's state without additional synchronization. Reply, if non-nil,
// receives exactly one Response; callers that don't need the result may
// leave it nil.
type Command struct {
	Run   func() Response
	Reply chan<- Response
}

// Tick is the per-iteration work a worker does between commands, e.g. a
// chain worker pulling the next block off its input queue, or an exec
// tracker polling its execution client. A nil Tick makes the harness a pure
// command processor with no autonomous work.
type Tick func(ctx context.Context) Response

// Config configures a Harness.
type Config struct {
	// Name identifies the worker in its log line prefix.
	Name string

	// CommandCapacity bounds the command channel; zero uses
	// DefaultCommandCapacity.
	CommandCapacity int

	Logger *log.Logger
}

// DefaultConfig returns a Config for a worker named name, with the bounded
// command capacity and log prefix spec §5 describes.
func DefaultConfig(name string) Config {
	return Config{
		Name:            name,
		CommandCapacity: DefaultCommandCapacity,
		Logger:          log.New(log.Writer(), fmt.Sprintf("[%s] ", name), log.LstdFlags),
	}
}

// Harness runs one blocking worker goroutine: it drains its command channel,
// runs an optional Tick on every pass, and exits cleanly on Stop, context
// cancellation, or a ShouldExit response. W is the type published on the
// watch channel (e.g. a chain worker's latest applied slot, an exec
// tracker's head commitment); a harness with nothing to publish can use
// struct{}.
type Harness[W any] struct {
	cfg  Config
	tick Tick

	mu    sync.RWMutex
	state State

	cmdCh  chan Command
	stopCh chan struct{}
	doneCh chan struct{}

	watchMu sync.Mutex
	latest  W
	haveAny bool
	subs    []chan W
}

// New constructs a stopped Harness. tick may be nil.
func New[W any](cfg Config, tick Tick) *Harness[W] {
	if cfg.CommandCapacity <= 0 {
		cfg.CommandCapacity = DefaultCommandCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), fmt.Sprintf("[%s] ", cfg.Name), log.LstdFlags)
	}
	return &Harness[W]{
		cfg:   cfg,
		tick:  tick,
		state: StateStopped,
		cmdCh: make(chan Command, cfg.CommandCapacity),
	}
}

// State reports the worker's current run state.
func (h *Harness[W]) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Start launches the worker's run loop. Idempotent: starting an already
// running harness is a no-op.
func (h *Harness[W]) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateRunning {
		return nil
	}
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	h.state = StateRunning
	go h.run(ctx)
	h.cfg.Logger.Printf("started")
	return nil
}

// Stop signals the run loop to exit and blocks until it has.
func (h *Harness[W]) Stop() error {
	h.mu.Lock()
	if h.state == StateStopped {
		h.mu.Unlock()
		return nil
	}
	stopCh, doneCh := h.stopCh, h.doneCh
	h.mu.Unlock()

	close(stopCh)
	<-doneCh

	h.mu.Lock()
	h.state = StateStopped
	h.mu.Unlock()
	h.cfg.Logger.Printf("stopped")
	return nil
}

// Pause and Resume flip the advisory run state a Tick-driven worker may
// consult to skip its autonomous work while still draining commands; the
// harness itself does not special-case StatePaused in its run loop, since
// spec §5 only requires the state be observable, not enforced centrally.
func (h *Harness[W]) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateRunning {
		h.state = StatePaused
	}
}

func (h *Harness[W]) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StatePaused {
		h.state = StateRunning
	}
}

// Submit enqueues a command, blocking only if the bounded channel is full.
// It returns an error rather than blocking forever once the worker has
// stopped.
func (h *Harness[W]) Submit(ctx context.Context, cmd Command) error {
	select {
	case h.cmdCh <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.doneChSnapshot():
		return fmt.Errorf("svc: %s: worker stopped", h.cfg.Name)
	}
}

// doneChSnapshot returns the current doneCh under lock, or a nil channel
// (which blocks forever in a select) if the worker was never started.
func (h *Harness[W]) doneChSnapshot() chan struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.doneCh
}

// Publish makes w the latest watched value and delivers it to every active
// subscriber, dropping it for any subscriber whose buffer is full rather
// than blocking the worker on a slow reader.
func (h *Harness[W]) Publish(w W) {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()
	h.latest = w
	h.haveAny = true
	for _, sub := range h.subs {
		select {
		case sub <- w:
		default:
		}
	}
}

// Watch returns a channel that receives every subsequently published value,
// seeded with the current latest value if one has already been published.
// The returned channel is never closed by the harness; callers should stop
// reading from it once they no longer need updates.
func (h *Harness[W]) Watch() <-chan W {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()
	sub := make(chan W, 1)
	if h.haveAny {
		sub <- h.latest
	}
	h.subs = append(h.subs, sub)
	return sub
}

// Latest returns the most recently published value and whether any value has
// been published yet.
func (h *Harness[W]) Latest() (W, bool) {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()
	return h.latest, h.haveAny
}

func (h *Harness[W]) run(ctx context.Context) {
	defer close(h.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case cmd := <-h.cmdCh:
			resp := cmd.Run()
			if cmd.Reply != nil {
				cmd.Reply <- resp
			}
			if resp.Err != nil {
				h.cfg.Logger.Printf("command error: %v", resp.Err)
			}
			if resp.ShouldExit {
				h.cfg.Logger.Printf("fatal, exiting: %v", resp.Err)
				return
			}
		default:
			if h.tick == nil {
				// No autonomous work: block on the next command or stop
				// signal instead of busy-looping.
				select {
				case <-ctx.Done():
					return
				case <-h.stopCh:
					return
				case cmd := <-h.cmdCh:
					resp := cmd.Run()
					if cmd.Reply != nil {
						cmd.Reply <- resp
					}
					if resp.Err != nil {
						h.cfg.Logger.Printf("command error: %v", resp.Err)
					}
					if resp.ShouldExit {
						h.cfg.Logger.Printf("fatal, exiting: %v", resp.Err)
						return
					}
				}
				continue
			}
			resp := h.tick(ctx)
			if resp.Err != nil {
				h.cfg.Logger.Printf("tick error: %v", resp.Err)
			}
			if resp.ShouldExit {
				h.cfg.Logger.Printf("fatal, exiting: %v", resp.Err)
				return
			}
		}
	}
}
