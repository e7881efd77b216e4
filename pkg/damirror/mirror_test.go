package damirror

import (
	"context"
	"testing"
	"time"
)

func TestDisabledMirrorIsANoOp(t *testing.T) {
	m, err := New(context.Background(), &Config{Enabled: false})
	if err != nil {
		t.Fatalf("new disabled mirror: %v", err)
	}
	if m.IsEnabled() {
		t.Fatalf("expected disabled mirror")
	}

	digest := EpochDigest{Epoch: 1, TerminalSlot: 100, PayloadHash: "deadbeef", SealedAt: time.Unix(0, 0)}
	if err := m.PublishEpochSealed(context.Background(), digest); err != nil {
		t.Fatalf("expected no-op publish to succeed, got %v", err)
	}

	// Must never panic or block even with no Firestore client underneath.
	m.PublishEpochSealedBestEffort(context.Background(), digest)

	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewRequiresProjectIDWhenEnabled(t *testing.T) {
	if _, err := New(context.Background(), &Config{Enabled: true}); err == nil {
		t.Fatalf("expected an error when enabled without a project id")
	}
}
