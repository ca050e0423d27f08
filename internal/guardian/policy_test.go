package guardian

import (
	"testing"
	"time"
)

func clock(t *testing.T, hhmm string) time.Time {
	t.Helper()
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		t.Fatalf("bad test clock %q: %v", hhmm, err)
	}
	return time.Date(2026, 3, 14, parsed.Hour(), parsed.Minute(), 0, 0, time.Local)
}

func TestPolicy_Blocks(t *testing.T) {
	p := Policy{BlockedItems: []string{"a1", "b2"}}

	if !p.Blocks("a1") {
		t.Error("expected a1 to be blocked")
	}
	if p.Blocks("c3") {
		t.Error("expected c3 not to be blocked")
	}
	if (Policy{}).Blocks("a1") {
		t.Error("empty policy must not block anything")
	}
}

func TestPolicy_InBedtime_SameDayWindow(t *testing.T) {
	p := Policy{BedtimeStart: "13:00", BedtimeEnd: "15:00"}

	cases := []struct {
		now  string
		want bool
	}{
		{"12:59", false},
		{"13:00", true},
		{"14:30", true},
		{"15:00", false},
		{"20:00", false},
	}
	for _, c := range cases {
		got, err := p.InBedtime(clock(t, c.now))
		if err != nil {
			t.Fatalf("InBedtime(%s): %v", c.now, err)
		}
		if got != c.want {
			t.Errorf("InBedtime(%s) = %v, want %v", c.now, got, c.want)
		}
	}
}

func TestPolicy_InBedtime_CrossesMidnight(t *testing.T) {
	p := Policy{BedtimeStart: "21:00", BedtimeEnd: "07:00"}

	cases := []struct {
		now  string
		want bool
	}{
		{"20:59", false},
		{"21:00", true},
		{"23:59", true},
		{"00:00", true},
		{"06:59", true},
		{"07:00", false},
		{"12:00", false},
	}
	for _, c := range cases {
		got, err := p.InBedtime(clock(t, c.now))
		if err != nil {
			t.Fatalf("InBedtime(%s): %v", c.now, err)
		}
		if got != c.want {
			t.Errorf("InBedtime(%s) = %v, want %v", c.now, got, c.want)
		}
	}
}

func TestPolicy_InBedtime_NoWindow(t *testing.T) {
	got, err := (Policy{}).InBedtime(clock(t, "23:00"))
	if err != nil {
		t.Fatalf("InBedtime: %v", err)
	}
	if got {
		t.Error("policy without bedtime must never report bedtime")
	}
}

func TestPolicy_InBedtime_InvalidClock(t *testing.T) {
	p := Policy{BedtimeStart: "25:00", BedtimeEnd: "07:00"}
	if _, err := p.InBedtime(clock(t, "23:00")); err == nil {
		t.Error("expected error for invalid bedtime start")
	}

	p = Policy{BedtimeStart: "21:00", BedtimeEnd: "7pm"}
	if _, err := p.InBedtime(clock(t, "23:00")); err == nil {
		t.Error("expected error for invalid bedtime end")
	}
}

func TestParseClock(t *testing.T) {
	got, err := parseClock("08:45")
	if err != nil {
		t.Fatalf("parseClock: %v", err)
	}
	if got != 8*60+45 {
		t.Errorf("parseClock(08:45) = %d, want %d", got, 8*60+45)
	}

	for _, bad := range []string{"", "8", "08:60", "24:00", "ab:cd"} {
		if _, err := parseClock(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
