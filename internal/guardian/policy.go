package guardian

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Policy is the parental policy published by the guardian app. The values
// are owned by the guardian side; squeakbox only enforces them.
type Policy struct {
	Revision     int64         // Monotonic revision, bumped on every change
	DailyLimit   time.Duration // Total allowed playback per day (0 = unlimited)
	BedtimeStart string        // "HH:MM", empty = no bedtime
	BedtimeEnd   string        // "HH:MM"
	BlockedItems []string      // Library item IDs blocked by a parent
	IssuedAt     time.Time
}

// Blocks reports whether the policy blocks the given library item.
func (p Policy) Blocks(itemID string) bool {
	for _, id := range p.BlockedItems {
		if id == itemID {
			return true
		}
	}
	return false
}

// HasBedtime reports whether the policy carries a bedtime window.
func (p Policy) HasBedtime() bool {
	return p.BedtimeStart != "" && p.BedtimeEnd != ""
}

// InBedtime reports whether now falls inside the bedtime window. Windows
// that cross midnight (e.g. 21:00 to 07:00) are handled.
func (p Policy) InBedtime(now time.Time) (bool, error) {
	if !p.HasBedtime() {
		return false, nil
	}

	start, err := parseClock(p.BedtimeStart)
	if err != nil {
		return false, fmt.Errorf("invalid bedtime start: %w", err)
	}
	end, err := parseClock(p.BedtimeEnd)
	if err != nil {
		return false, fmt.Errorf("invalid bedtime end: %w", err)
	}

	minute := now.Hour()*60 + now.Minute()

	if start == end {
		return false, nil
	}
	if start < end {
		return minute >= start && minute < end, nil
	}
	// Window crosses midnight
	return minute >= start || minute < end, nil
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}
