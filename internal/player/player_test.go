package player

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(99),
	}))
}

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line string
		pos  time.Duration
		dur  time.Duration
		ok   bool
	}{
		{"POS 12.5/300", 12500 * time.Millisecond, 300 * time.Second, true},
		{"POS 0/0", 0, 0, true},
		{"  POS 60/120  ", 60 * time.Second, 120 * time.Second, true},
		{"POS 1.0/", 0, 0, false},
		{"POS abc/120", 0, 0, false},
		{"Playing: /media/file.mp4", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tc := range tests {
		pos, dur, ok := parseProgress(tc.line)
		if ok != tc.ok {
			t.Errorf("parseProgress(%q) ok = %v, want %v", tc.line, ok, tc.ok)
			continue
		}
		if !ok {
			continue
		}
		if pos != tc.pos || dur != tc.dur {
			t.Errorf("parseProgress(%q) = %v/%v, want %v/%v", tc.line, pos, dur, tc.pos, tc.dur)
		}
	}
}

func TestScanStatusLines(t *testing.T) {
	// Terminal status output mixes \r redraws with \n lines
	input := "Playing: file.mp4\nPOS 1/10\rPOS 2/10\rPOS 3/10\n"
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(scanStatusLines)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	want := []string{"Playing: file.mp4", "POS 1/10", "POS 2/10", "POS 3/10"}
	if len(lines) != len(want) {
		t.Fatalf("Expected %d tokens, got %d: %v", len(want), len(lines), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("Token %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestPlayer_InitialState(t *testing.T) {
	p := New("mpv", nil, quietLogger())

	status, item := p.State()
	if status != StatusIdle {
		t.Errorf("Expected idle status, got %q", status)
	}
	if item != "" {
		t.Errorf("Expected no item, got %q", item)
	}
	if p.EnginePID() != 0 {
		t.Errorf("Expected pid 0, got %d", p.EnginePID())
	}
}

func TestPlayer_PauseWhenIdle(t *testing.T) {
	p := New("mpv", nil, quietLogger())

	if err := p.Pause(); err == nil {
		t.Error("Expected pause to fail when idle")
	}
	if err := p.Resume(); err == nil {
		t.Error("Expected resume to fail when idle")
	}
}

func TestPlayer_StopWhenIdle(t *testing.T) {
	p := New("mpv", nil, quietLogger())
	// Must not panic or block
	p.Stop()
	p.Stop()
}

func TestPlayer_ConcurrentPlayLeavesOneEngine(t *testing.T) {
	// Each engine records its pid, then blocks. Racing Play calls must not
	// leave extra engines behind: an untracked engine keeps playing and
	// Stop can never reach it.
	pidFile := filepath.Join(t.TempDir(), "pids")
	p := New("sh", []string{"-c", `echo $$ >> "$0"; exec sleep 30`}, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := p.Play(fmt.Sprintf("item-%d", n), pidFile); err != nil {
				t.Errorf("Play: %v", err)
			}
		}(i)
	}
	wg.Wait()

	alive := waitForEngines(t, pidFile, 1)
	if pid := p.EnginePID(); len(alive) != 1 || alive[0] != pid {
		t.Fatalf("Expected only the tracked engine (pid %d) alive, got %v", pid, alive)
	}

	p.Stop()
	if alive := waitForEngines(t, pidFile, 0); len(alive) != 0 {
		t.Errorf("Engines still running after Stop: %v", alive)
	}
}

// waitForEngines polls the pids the test engines recorded until the count
// still alive reaches want or a timeout passes, then returns the live pids.
func waitForEngines(t *testing.T, pidFile string, want int) []int {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		var alive []int
		data, _ := os.ReadFile(pidFile)
		for _, field := range strings.Fields(string(data)) {
			pid, err := strconv.Atoi(field)
			if err != nil {
				continue
			}
			if syscall.Kill(pid, 0) == nil {
				alive = append(alive, pid)
			}
		}
		if len(alive) == want || time.Now().After(deadline) {
			return alive
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestPlayer_PlaybackLifecycle(t *testing.T) {
	// Use cat as a stand-in engine: it blocks on the PTY until closed
	p := New("cat", nil, quietLogger())

	exited := make(chan string, 1)
	p.SetExitHandler(func(itemID string, watched time.Duration) {
		exited <- itemID
	})

	if err := p.Play("item-1", "/dev/null"); err != nil {
		t.Fatalf("Play: %v", err)
	}

	status, item := p.State()
	if status != StatusPlaying || item != "item-1" {
		t.Errorf("Expected playing item-1, got %s %q", status, item)
	}
	if p.EnginePID() == 0 {
		t.Error("Expected a live engine pid")
	}

	if err := p.Pause(); err != nil {
		t.Errorf("Pause: %v", err)
	}
	if status, _ := p.State(); status != StatusPaused {
		t.Errorf("Expected paused, got %q", status)
	}
	if err := p.Resume(); err != nil {
		t.Errorf("Resume: %v", err)
	}

	p.Stop()

	select {
	case itemID := <-exited:
		if itemID != "item-1" {
			t.Errorf("Exit handler got item %q", itemID)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Timed out waiting for exit handler")
	}

	if status, _ := p.State(); status != StatusStopped {
		t.Errorf("Expected stopped, got %q", status)
	}
}
