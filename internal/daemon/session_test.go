package daemon

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/squeakbox/squeakbox/internal/guardian"
	"github.com/squeakbox/squeakbox/internal/library"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(99),
	}))
}

func newTestSession(t *testing.T) (*Session, *library.Store) {
	t.Helper()
	store, err := library.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewSession(store, quietLogger()), store
}

func TestSession_NoPolicyAllowsEverything(t *testing.T) {
	s, _ := newTestSession(t)

	if reason, allowed := s.CheckPlayback("any-item"); !allowed {
		t.Errorf("Expected playback allowed without policy, got denial %q", reason)
	}
}

func TestSession_BlockedItem(t *testing.T) {
	s, _ := newTestSession(t)
	s.SetPolicy(guardian.Policy{
		Revision:     1,
		BlockedItems: []string{"scary-movie"},
	})

	if reason, allowed := s.CheckPlayback("scary-movie"); allowed || reason != DenialBlocked {
		t.Errorf("Expected blocked denial, got %q allowed=%v", reason, allowed)
	}
	if _, allowed := s.CheckPlayback("bluey"); !allowed {
		t.Error("Expected unblocked item to be allowed")
	}
}

func TestSession_Bedtime(t *testing.T) {
	s, _ := newTestSession(t)
	s.now = func() time.Time {
		return time.Date(2024, 3, 1, 21, 30, 0, 0, time.UTC)
	}
	s.SetPolicy(guardian.Policy{
		Revision:     1,
		BedtimeStart: "20:00",
		BedtimeEnd:   "07:00",
	})

	if reason, allowed := s.CheckPlayback("item"); allowed || reason != DenialBedtime {
		t.Errorf("Expected bedtime denial at 21:30, got %q allowed=%v", reason, allowed)
	}

	s.now = func() time.Time {
		return time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	}
	if _, allowed := s.CheckPlayback("item"); !allowed {
		t.Error("Expected playback allowed at 15:00")
	}
}

func TestSession_ScreenTimeLimit(t *testing.T) {
	s, store := newTestSession(t)
	s.SetPolicy(guardian.Policy{
		Revision:   1,
		DailyLimit: time.Hour,
	})

	if _, allowed := s.CheckPlayback("item"); !allowed {
		t.Error("Expected playback allowed with unused budget")
	}

	// Burn the whole budget
	if err := store.StartWatch("item", "sess-1"); err != nil {
		t.Fatalf("StartWatch: %v", err)
	}
	if err := store.FinishWatch("sess-1", time.Hour); err != nil {
		t.Fatalf("FinishWatch: %v", err)
	}

	if reason, allowed := s.CheckPlayback("item"); allowed || reason != DenialScreenTime {
		t.Errorf("Expected screen time denial, got %q allowed=%v", reason, allowed)
	}

	if remaining := s.RemainingScreenTime(); remaining != 0 {
		t.Errorf("Expected 0 remaining, got %v", remaining)
	}
}

func TestSession_RemainingScreenTime_NoLimit(t *testing.T) {
	s, _ := newTestSession(t)

	if remaining := s.RemainingScreenTime(); remaining != -1 {
		t.Errorf("Expected -1 without a policy, got %v", remaining)
	}

	s.SetPolicy(guardian.Policy{Revision: 1})
	if remaining := s.RemainingScreenTime(); remaining != -1 {
		t.Errorf("Expected -1 with no daily limit, got %v", remaining)
	}
}

func TestSession_Revoke(t *testing.T) {
	s, _ := newTestSession(t)
	s.Revoke("manual pause")

	if reason, allowed := s.CheckPlayback("item"); allowed || reason != DenialRevoked {
		t.Errorf("Expected revoked denial, got %q allowed=%v", reason, allowed)
	}

	// A fresh policy clears the revocation
	s.SetPolicy(guardian.Policy{Revision: 2})
	if _, allowed := s.CheckPlayback("item"); !allowed {
		t.Error("Expected new policy to clear revocation")
	}
}

func TestSession_UnlockOverridesPolicy(t *testing.T) {
	s, _ := newTestSession(t)
	s.SetPolicy(guardian.Policy{
		Revision:     1,
		BlockedItems: []string{"scary-movie"},
	})
	s.Revoke("paused")

	s.Unlock(15 * time.Minute)

	if !s.Unlocked() {
		t.Error("Expected session to report unlocked")
	}
	if _, allowed := s.CheckPlayback("scary-movie"); !allowed {
		t.Error("Expected unlock to override the block list")
	}

	// Expired unlock falls back to enforcement
	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, allowed := s.CheckPlayback("scary-movie"); allowed {
		t.Error("Expected enforcement to resume after unlock expires")
	}
}

func TestSession_StalePolicyIgnored(t *testing.T) {
	s, _ := newTestSession(t)
	s.SetPolicy(guardian.Policy{Revision: 5, BlockedItems: []string{"a"}})
	s.SetPolicy(guardian.Policy{Revision: 3})

	policy, ok := s.Policy()
	if !ok {
		t.Fatal("Expected a policy to be present")
	}
	if policy.Revision != 5 {
		t.Errorf("Expected revision 5 to be kept, got %d", policy.Revision)
	}
}

func TestDenialMessage(t *testing.T) {
	reasons := []DenialReason{DenialBlocked, DenialBedtime, DenialScreenTime, DenialRevoked, "other"}
	for _, reason := range reasons {
		if DenialMessage(reason, "item") == "" {
			t.Errorf("Expected non-empty message for %q", reason)
		}
	}
}
