package paas

import (
	"math/rand"
	"sync"
	"time"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

// RetryConfig governs how ScheduleRetry spaces out retries (spec §4.10
// "config: max_retries, base_delay, optional jitter").
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	Jitter     time.Duration
}

// DefaultRetryConfig returns conservative retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  2 * time.Second,
		Jitter:     500 * time.Millisecond,
	}
}

// RetryScheduler runs retries through a decoupled timer service (spec §4.10
// "executed after delay via a decoupled timer service") rather than blocking
// the caller on time.Sleep.
type RetryScheduler struct {
	cfg RetryConfig

	mu      sync.Mutex
	timers  map[xtypes.ProofKey]*time.Timer
	randSrc *rand.Rand
}

// NewRetryScheduler constructs a scheduler with cfg.
func NewRetryScheduler(cfg RetryConfig) *RetryScheduler {
	return &RetryScheduler{
		cfg:    cfg,
		timers: make(map[xtypes.ProofKey]*time.Timer),
		// Deterministic seed would defeat jitter's purpose (spreading retries
		// apart); a per-process source is sufficient here since jitter is
		// cosmetic, not security-sensitive.
		randSrc: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ScheduleRetry arranges for fn to run after this attempt's backoff delay,
// unless attempts already exceeds MaxRetries. Returns false if retries are
// exhausted.
func (s *RetryScheduler) ScheduleRetry(key xtypes.ProofKey, attempts int, fn func()) bool {
	if attempts > s.cfg.MaxRetries {
		return false
	}

	delay := s.cfg.BaseDelay * time.Duration(1<<uint(attempts-1))
	if s.cfg.Jitter > 0 {
		s.mu.Lock()
		jitter := time.Duration(s.randSrc.Int63n(int64(s.cfg.Jitter)))
		s.mu.Unlock()
		delay += jitter
	}

	s.mu.Lock()
	if existing, ok := s.timers[key]; ok {
		existing.Stop()
	}
	s.timers[key] = time.AfterFunc(delay, fn)
	s.mu.Unlock()
	return true
}

// Cancel stops any pending retry timer for key.
func (s *RetryScheduler) Cancel(key xtypes.ProofKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// Stop cancels every pending retry timer.
func (s *RetryScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}
