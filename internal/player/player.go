package player

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
)

// Status of the playback engine.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// Progress is a snapshot of the current playback position.
type Progress struct {
	Position time.Duration
	Duration time.Duration
}

// Player runs a media engine process under a PTY and tracks its state.
// The PTY gives us terminal keypress delivery for pause/resume and quit,
// and merges the engine's status output into a single stream we can parse.
type Player struct {
	engineCmd  string
	engineArgs []string
	logger     *slog.Logger

	// startMu serializes the stop-and-replace sequence in Play and Stop.
	// Without it, concurrent Play calls each pass the stop phase and spawn
	// an engine, with every spawn but the last leaking as an untracked
	// process that Stop can never reach.
	startMu sync.Mutex

	mu       sync.Mutex
	cmd      *exec.Cmd
	ptmx     *os.File
	status   Status
	itemID   string
	progress Progress
	onExit   func(itemID string, watched time.Duration)
}

// New creates a player for the given engine command line.
func New(engineCmd string, engineArgs []string, logger *slog.Logger) *Player {
	return &Player{
		engineCmd:  engineCmd,
		engineArgs: engineArgs,
		logger:     logger,
		status:     StatusIdle,
	}
}

// SetExitHandler registers a callback invoked when the engine process
// exits, with the item that was playing and the seconds watched.
func (p *Player) SetExitHandler(fn func(itemID string, watched time.Duration)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onExit = fn
}

// Play starts playback of the given media file. Any current playback is
// stopped first.
func (p *Player) Play(itemID, path string) error {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	p.stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	args := append(append([]string{}, p.engineArgs...), path)
	cmd := exec.Command(p.engineCmd, args...)
	cmd.Env = os.Environ()
	setPdeathsig(cmd)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	p.cmd = cmd
	p.ptmx = ptmx
	p.status = StatusPlaying
	p.itemID = itemID
	p.progress = Progress{}

	p.logger.Info("Playback started", "item", itemID, "path", path, "engine", p.engineCmd)

	go p.readEngineOutput(ptmx)
	go p.waitForExit(cmd, itemID)

	return nil
}

// Pause pauses playback by sending the engine's pause toggle keypress.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != StatusPlaying {
		return fmt.Errorf("nothing is playing")
	}
	if _, err := p.ptmx.Write([]byte("p")); err != nil {
		return fmt.Errorf("failed to pause: %w", err)
	}
	p.status = StatusPaused
	p.logger.Info("Playback paused", "item", p.itemID)
	return nil
}

// Resume resumes paused playback.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != StatusPaused {
		return fmt.Errorf("playback is not paused")
	}
	if _, err := p.ptmx.Write([]byte("p")); err != nil {
		return fmt.Errorf("failed to resume: %w", err)
	}
	p.status = StatusPlaying
	p.logger.Info("Playback resumed", "item", p.itemID)
	return nil
}

// Stop ends playback. It asks the engine to quit, then kills it if it
// does not exit within a grace period. Safe to call when idle.
func (p *Player) Stop() {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	p.stop()
}

func (p *Player) stop() {
	p.mu.Lock()
	cmd := p.cmd
	ptmx := p.ptmx
	p.mu.Unlock()

	if cmd == nil {
		return
	}

	// Ask nicely first: "q" quits mpv, Ctrl+C covers other engines
	if ptmx != nil {
		ptmx.Write([]byte("q"))
		ptmx.Write([]byte{0x03})
	}
	if p.waitStopped(cmd, 5*time.Second) {
		return
	}

	// Engine ignored the quit request, force kill; the exit goroutine
	// reaps it
	if ptmx != nil {
		ptmx.Close()
	}
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
	p.waitStopped(cmd, 5*time.Second)
}

// waitStopped polls until waitForExit has reaped the given command or
// the timeout passes.
func (p *Player) waitStopped(cmd *exec.Cmd, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		done := p.cmd != cmd
		p.mu.Unlock()
		if done {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

// State returns the current status and the item being played, if any.
func (p *Player) State() (Status, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.itemID
}

// CurrentProgress returns the last reported playback position.
func (p *Player) CurrentProgress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// EnginePID returns the pid of the running engine process, or 0.
func (p *Player) EnginePID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// readEngineOutput parses the engine's status stream from the PTY master.
// The engine is configured to print "POS <time-pos>/<duration>" status
// lines, terminated by carriage returns rather than newlines.
func (p *Player) readEngineOutput(ptmx *os.File) {
	scanner := bufio.NewScanner(ptmx)
	scanner.Split(scanStatusLines)
	for scanner.Scan() {
		line := scanner.Text()
		pos, dur, ok := parseProgress(line)
		if !ok {
			continue
		}
		p.mu.Lock()
		if p.ptmx == ptmx {
			p.progress = Progress{Position: pos, Duration: dur}
		}
		p.mu.Unlock()
	}
}

// waitForExit reaps the engine process and resets state. The exit
// handler runs before the player is marked stopped, so Stop returning
// means the handler has finished too.
func (p *Player) waitForExit(cmd *exec.Cmd, itemID string) {
	err := cmd.Wait()

	p.mu.Lock()
	if p.cmd != cmd {
		// A newer playback already replaced this one
		p.mu.Unlock()
		return
	}
	watched := p.progress.Position
	onExit := p.onExit
	p.mu.Unlock()

	if onExit != nil {
		onExit(itemID, watched)
	}

	p.mu.Lock()
	if p.cmd == cmd {
		if p.ptmx != nil {
			p.ptmx.Close()
		}
		p.cmd = nil
		p.ptmx = nil
		p.status = StatusStopped
		p.itemID = ""
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Debug("Engine exited", "item", itemID, "error", err)
	} else {
		p.logger.Info("Playback finished", "item", itemID, "watched", watched)
	}
}

// scanStatusLines splits on both \n and \r so terminal status lines that
// redraw in place still come through as separate tokens.
func scanStatusLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// parseProgress extracts position and duration from a "POS x/y" status
// line, where x and y are seconds as printed by the engine.
func parseProgress(line string) (pos, dur time.Duration, ok bool) {
	line = strings.TrimSpace(line)
	rest, found := strings.CutPrefix(line, "POS ")
	if !found {
		return 0, 0, false
	}
	posStr, durStr, found := strings.Cut(rest, "/")
	if !found {
		return 0, 0, false
	}
	posSec, err := strconv.ParseFloat(strings.TrimSpace(posStr), 64)
	if err != nil {
		return 0, 0, false
	}
	durSec, err := strconv.ParseFloat(strings.TrimSpace(durStr), 64)
	if err != nil {
		return 0, 0, false
	}
	return time.Duration(posSec * float64(time.Second)),
		time.Duration(durSec * float64(time.Second)), true
}
