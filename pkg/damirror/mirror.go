// Package damirror optionally republishes sealed epoch DA payload digests to
// Firestore for real-time UI consumption, the way the teacher's
// pkg/firestore/sync_service.go publishes proof-cycle progress: best effort,
// disabled by default, and never allowed to fail the caller (the Firestore
// write itself runs synchronously on the caller's goroutine). The OL DA
// accumulator (pkg/chainstate) seals an epoch regardless of whether this
// sink is reachable; a Mirror failure is logged and swallowed, never
// propagated back into the epoch-sealing path.
package damirror

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// Config configures a Mirror, mirroring pkg/firestore.ClientConfig's
// enabled-by-default-off, env-driven shape.
type Config struct {
	ProjectID       string
	CredentialsFile string
	Enabled         bool
	Logger          *log.Logger
}

// DefaultConfig reads FIREBASE_PROJECT_ID / GOOGLE_APPLICATION_CREDENTIALS /
// DAMIRROR_ENABLED from the environment, the way pkg/firestore.DefaultConfig
// does for its own client.
func DefaultConfig() *Config {
	return &Config{
		ProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		Enabled:         getEnvBool("DAMIRROR_ENABLED", false),
		Logger:          log.New(os.Stdout, "[DAMirror] ", log.LstdFlags),
	}
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "TRUE"
}

// EpochDigest is the slice of a sealed epoch worth publishing: its index, the
// terminal OL slot that sealed it, the last L1 block it anchors on, and the DA
// payload digest itself.
type EpochDigest struct {
	Epoch        uint32
	TerminalSlot uint64
	LastL1Block  string
	PayloadHash  string
	SealedAt     time.Time
}

// Mirror is a best-effort Firestore publish sink. A Mirror with Enabled=false
// (the default) is a complete no-op, matching the teacher's "disabled client
// returns nil, nil" posture.
type Mirror struct {
	firestore *gcpfirestore.Client
	app       *firebase.App
	logger    *log.Logger
	enabled   bool
}

// New creates a Mirror. When cfg.Enabled is false, it returns a no-op Mirror
// without touching the network, exactly like pkg/firestore.NewClient's
// disabled path.
func New(ctx context.Context, cfg *Config) (*Mirror, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[DAMirror] ", log.LstdFlags)
	}

	m := &Mirror{logger: cfg.Logger, enabled: cfg.Enabled}
	if !cfg.Enabled {
		cfg.Logger.Println("DA mirror disabled - running in no-op mode")
		return m, nil
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("damirror: FIREBASE_PROJECT_ID is required when enabled")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("damirror: failed to initialize Firebase app: %w", err)
	}

	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("damirror: failed to create Firestore client: %w", err)
	}

	m.app = app
	m.firestore = fsClient
	cfg.Logger.Printf("DA mirror initialized for project: %s", cfg.ProjectID)
	return m, nil
}

// Close releases the underlying Firestore client, if one was created.
func (m *Mirror) Close() error {
	if m.firestore != nil {
		return m.firestore.Close()
	}
	return nil
}

// IsEnabled reports whether this Mirror performs real Firestore writes.
func (m *Mirror) IsEnabled() bool { return m.enabled }

// PublishEpochSealed writes digest to Firestore under
// /olEpochs/{epoch} synchronously. Any error is returned to the caller (not
// logged here; PublishEpochSealedBestEffort does that) for observability, but callers MUST NOT treat a non-nil error as a
// reason to fail the epoch-sealing operation that triggered the publish —
// only to log it, matching sync_service.go's "Warning: failed to ... %v"
// posture throughout.
func (m *Mirror) PublishEpochSealed(ctx context.Context, digest EpochDigest) error {
	if !m.enabled {
		return nil
	}
	if m.firestore == nil {
		return fmt.Errorf("damirror: client not initialized")
	}

	docPath := fmt.Sprintf("olEpochs/%d", digest.Epoch)
	_, err := m.firestore.Doc(docPath).Set(ctx, map[string]interface{}{
		"epoch":        digest.Epoch,
		"terminalSlot": digest.TerminalSlot,
		"lastL1Block":  digest.LastL1Block,
		"payloadHash":  digest.PayloadHash,
		"sealedAt":     digest.SealedAt,
	})
	if err != nil {
		return fmt.Errorf("damirror: failed to publish epoch %d: %w", digest.Epoch, err)
	}
	return nil
}

// PublishEpochSealedBestEffort calls PublishEpochSealed and logs any error
// instead of returning it, for callers on the epoch-sealing hot path that
// must never be interrupted by a Firestore outage. The write is still
// synchronous: the call returns once Firestore answers or ctx is done.
func (m *Mirror) PublishEpochSealedBestEffort(ctx context.Context, digest EpochDigest) {
	if !m.enabled {
		return
	}
	if err := m.PublishEpochSealed(ctx, digest); err != nil {
		m.logger.Printf("Warning: %v", err)
	}
}
