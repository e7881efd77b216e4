// Package checkpointsync polls an ASM node's verified checkpoint tip and
// forwards newly-verified withdrawal intents to the bridge subprotocol's
// external fulfillment path (spec §4.5 C10 "forwards withdrawal intents to
// bridge"). pkg/subprotocol/checkpoint already relays intents to the bridge
// subprotocol in-process, synchronously, the instant a checkpoint tx commits
// (same-block cross-subprotocol messaging per §4.6); this package is the
// out-of-process counterpart for a validator that only observes ASM state
// (e.g. a bridge operator's watchtower) rather than participating in its
// consensus, and so must poll for newly-verified checkpoints instead of
// reacting to a local state transition.
package checkpointsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/strataorch/orchestration/pkg/subprotocol/core"
	"github.com/strataorch/orchestration/pkg/xtypes"
)

// ErrSyncStalled indicates no new verified checkpoint has appeared for
// longer than StallThreshold, mirroring pkg/consensus.ErrConsensusStalled.
var ErrSyncStalled = errors.New("checkpointsync: no new verified checkpoint")

// CheckpointFetcher is the injected source of truth for the ASM's verified
// checkpoint tip, analogous to pkg/consensus.StatusFetcher.
type CheckpointFetcher interface {
	// LatestVerifiedTip returns the checkpoint subprotocol's current
	// VerifiedTip and the withdrawal intents that checkpoint attested,
	// in the order the checkpoint subprotocol relayed them.
	LatestVerifiedTip(ctx context.Context) (Tip, []core.WithdrawalIntentMsg, error)
}

// Tip mirrors pkg/subprotocol/checkpoint.Tip without importing it, keeping
// this package's only coupling to the checkpoint subprotocol the
// WithdrawalIntentMsg type itself.
type Tip struct {
	Epoch    xtypes.Epoch
	L1Height xtypes.Height
	L2Slot   xtypes.Slot
}

// BridgeForwarder delivers a verified withdrawal intent to the bridge's
// external fulfillment path (e.g. a signer service that will broadcast the
// Bitcoin payout), distinct from subprotocol.MsgRelayer's in-ASM relay.
type BridgeForwarder interface {
	ForwardWithdrawalIntent(ctx context.Context, epoch xtypes.Epoch, intent core.WithdrawalIntentMsg) error
}

// Config configures a Syncer, mirroring pkg/consensus.HealthMonitorConfig's
// threshold/interval shape.
type Config struct {
	PollInterval   time.Duration // default: 10 seconds
	StallThreshold time.Duration // default: 2 minutes
}

// DefaultConfig returns Config with the teacher's health-monitor defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:   10 * time.Second,
		StallThreshold: 2 * time.Minute,
	}
}

// Syncer polls a CheckpointFetcher and forwards any withdrawal intents in a
// newly-observed tip to a BridgeForwarder. A forwarding failure is logged and
// returned from Check, but the tip is still recorded, so an intent whose
// forwarding failed is not forwarded again on later polls of the same tip.
type Syncer struct {
	mu sync.RWMutex

	fetcher   CheckpointFetcher
	forwarder BridgeForwarder

	pollInterval   time.Duration
	stallThreshold time.Duration

	lastTip      Tip
	haveTip      bool
	lastAdvance  time.Time
	isStalled    bool

	onIntentForwarded func(epoch xtypes.Epoch, intent core.WithdrawalIntentMsg)
	onStallDetected   func(tip Tip, stallDuration time.Duration)

	logger *log.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// New constructs a Syncer. fetcher and forwarder must be non-nil.
func New(cfg Config, fetcher CheckpointFetcher, forwarder BridgeForwarder) *Syncer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = DefaultConfig().StallThreshold
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Syncer{
		fetcher:        fetcher,
		forwarder:      forwarder,
		pollInterval:   cfg.PollInterval,
		stallThreshold: cfg.StallThreshold,
		logger:         log.New(log.Writer(), "[CheckpointSync] ", log.LstdFlags),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// SetOnIntentForwarded sets the callback invoked after an intent successfully
// forwards.
func (s *Syncer) SetOnIntentForwarded(fn func(epoch xtypes.Epoch, intent core.WithdrawalIntentMsg)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onIntentForwarded = fn
}

// SetOnStallDetected sets the callback invoked when no new tip has been
// observed for longer than StallThreshold.
func (s *Syncer) SetOnStallDetected(fn func(tip Tip, stallDuration time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStallDetected = fn
}

// Start begins the polling loop in a background goroutine.
func (s *Syncer) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("checkpointsync: already running")
	}
	s.running = true
	s.mu.Unlock()

	go s.pollLoop()
	return nil
}

// Stop halts the polling loop.
func (s *Syncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
}

// Check performs a single poll-and-forward cycle. It is exported so callers
// can drive it directly (e.g. in tests, or from a cron-style invoker) without
// going through the background loop.
func (s *Syncer) Check(ctx context.Context) error {
	tip, intents, err := s.fetcher.LatestVerifiedTip(ctx)
	if err != nil {
		return fmt.Errorf("checkpointsync: fetch latest verified tip: %w", err)
	}

	s.mu.Lock()
	advanced := !s.haveTip || tip.Epoch > s.lastTip.Epoch
	if advanced {
		s.lastTip = tip
		s.haveTip = true
		s.lastAdvance = time.Now()
		wasStalled := s.isStalled
		s.isStalled = false
		if wasStalled {
			s.logger.Printf("checkpoint sync recovered at epoch %d", tip.Epoch)
		}
	}
	stallCallback := s.onStallDetected
	forwardCallback := s.onIntentForwarded
	lastAdvance := s.lastAdvance
	s.mu.Unlock()

	if !advanced {
		if time.Since(lastAdvance) > s.stallThreshold {
			s.mu.Lock()
			s.isStalled = true
			s.mu.Unlock()
			if stallCallback != nil {
				stallCallback(tip, time.Since(lastAdvance))
			}
			return ErrSyncStalled
		}
		return nil
	}

	var firstErr error
	for _, intent := range intents {
		if err := s.forwarder.ForwardWithdrawalIntent(ctx, tip.Epoch, intent); err != nil {
			s.logger.Printf("Warning: failed to forward withdrawal intent for epoch %d: %v", tip.Epoch, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("checkpointsync: forward intent: %w", err)
			}
			continue
		}
		if forwardCallback != nil {
			forwardCallback(tip.Epoch, intent)
		}
	}
	return firstErr
}

func (s *Syncer) pollLoop() {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	if err := s.Check(s.ctx); err != nil {
		s.logger.Printf("initial checkpoint sync check: %v", err)
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.Check(s.ctx); err != nil {
				s.logger.Printf("checkpoint sync check: %v", err)
			}
		}
	}
}
