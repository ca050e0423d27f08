package daemon

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/squeakbox/squeakbox/internal/guardian"
	"github.com/squeakbox/squeakbox/internal/library"
)

// DenialReason explains why playback was refused.
type DenialReason string

const (
	DenialBlocked    DenialReason = "blocked"
	DenialBedtime    DenialReason = "bedtime"
	DenialScreenTime DenialReason = "screen_time"
	DenialRevoked    DenialReason = "revoked"
)

// Session tracks the active parental policy and enforces it against
// playback requests. The guardian pushes policy updates and revocations
// here; a parent PIN unlock suspends enforcement for a limited window.
type Session struct {
	store  *library.Store
	logger *slog.Logger
	now    func() time.Time

	mu            sync.Mutex
	policy        guardian.Policy
	hasPolicy     bool
	revoked       bool
	revokedReason string
	unlockUntil   time.Time
}

func NewSession(store *library.Store, logger *slog.Logger) *Session {
	return &Session{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// SetPolicy installs a new policy. Stale revisions are ignored so an
// out-of-order delivery can never roll back a newer policy.
func (s *Session) SetPolicy(p guardian.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasPolicy && p.Revision < s.policy.Revision {
		s.logger.Debug("Ignoring stale policy", "revision", p.Revision, "current", s.policy.Revision)
		return
	}
	s.policy = p
	s.hasPolicy = true
	s.revoked = false
	s.revokedReason = ""
	s.logger.Info("Policy updated", "revision", p.Revision,
		"daily_limit", p.DailyLimit, "blocked_items", len(p.BlockedItems))
}

// Revoke marks the session as revoked by the guardian. All playback is
// refused until a new policy arrives or a parent unlocks.
func (s *Session) Revoke(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked = true
	s.revokedReason = reason
	s.logger.Warn("Session revoked by guardian", "reason", reason)
}

// Unlock suspends policy enforcement until the given duration elapses.
func (s *Session) Unlock(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlockUntil = s.now().Add(d)
	s.logger.Info("Parental controls unlocked", "until", s.unlockUntil.Format(time.RFC3339))
}

// Unlocked reports whether a parent unlock window is active.
func (s *Session) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.unlockUntil)
}

// Policy returns the current policy and whether one has been received.
func (s *Session) Policy() (guardian.Policy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy, s.hasPolicy
}

// CheckPlayback decides whether the given item may be played right now.
// Returns the denial reason and false when refused.
func (s *Session) CheckPlayback(itemID string) (DenialReason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Before(s.unlockUntil) {
		return "", true
	}

	if s.revoked {
		return DenialRevoked, false
	}

	if !s.hasPolicy {
		// No guardian policy yet means no restrictions
		return "", true
	}

	if s.policy.Blocks(itemID) {
		return DenialBlocked, false
	}

	if inBedtime, err := s.policy.InBedtime(now); err != nil {
		s.logger.Warn("Invalid bedtime window in policy", "error", err)
	} else if inBedtime {
		return DenialBedtime, false
	}

	if s.policy.DailyLimit > 0 {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		watched, err := s.store.SecondsWatchedSince(dayStart)
		if err != nil {
			s.logger.Error("Failed to query watch history", "error", err)
			// Fail open on storage errors rather than bricking playback
			return "", true
		}
		if time.Duration(watched)*time.Second >= s.policy.DailyLimit {
			return DenialScreenTime, false
		}
	}

	return "", true
}

// RemainingScreenTime returns how much of today's limit is left, or -1
// when no limit applies.
func (s *Session) RemainingScreenTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasPolicy || s.policy.DailyLimit <= 0 {
		return -1
	}
	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	watched, err := s.store.SecondsWatchedSince(dayStart)
	if err != nil {
		return -1
	}
	remaining := s.policy.DailyLimit - time.Duration(watched)*time.Second
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// DenialMessage renders a denial reason as a child-friendly message.
func DenialMessage(reason DenialReason, itemID string) string {
	switch reason {
	case DenialBlocked:
		return fmt.Sprintf("'%s' is not available right now", itemID)
	case DenialBedtime:
		return "It's bedtime! No more shows today."
	case DenialScreenTime:
		return "Screen time is used up for today."
	case DenialRevoked:
		return "A grown-up has paused screen time."
	default:
		return "Playback is not allowed right now"
	}
}
