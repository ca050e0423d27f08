package daemon

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// LogBroadcaster fans daemon log lines out to every connected `squeakbox
// logs` client and keeps a bounded history so a client joining late still
// sees recent context.
type LogBroadcaster struct {
	clients map[chan string]bool
	history []string
	maxHist int
	mu      sync.RWMutex
}

// NewLogBroadcaster creates a broadcaster retaining up to historySize lines.
func NewLogBroadcaster(historySize int) *LogBroadcaster {
	if historySize <= 0 {
		historySize = 1000
	}
	return &LogBroadcaster{
		clients: make(map[chan string]bool),
		history: make([]string, 0, historySize),
		maxHist: historySize,
	}
}

// Subscribe registers a client channel for future log lines.
func (lb *LogBroadcaster) Subscribe() chan string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	ch := make(chan string, 100)
	lb.clients[ch] = true
	return ch
}

// SubscribeWithHistory registers a client channel and returns up to
// historyLines of retained log lines. The history comes back as a slice
// rather than through the channel so the subscription starts with a clean
// live stream.
func (lb *LogBroadcaster) SubscribeWithHistory(historyLines int) (chan string, []string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	ch := make(chan string, 100)
	lb.clients[ch] = true

	var history []string
	if historyLines > 0 && len(lb.history) > 0 {
		start := len(lb.history) - historyLines
		if start < 0 {
			start = 0
		}
		history = make([]string, len(lb.history)-start)
		copy(history, lb.history[start:])
	}

	return ch, history
}

// Unsubscribe drops a client channel and closes it.
func (lb *LogBroadcaster) Unsubscribe(ch chan string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	delete(lb.clients, ch)
	close(ch)
}

// Broadcast records a line in the history ring and delivers it to every
// subscriber. A subscriber with a full buffer loses the line; log
// streaming must never stall the daemon.
func (lb *LogBroadcaster) Broadcast(message string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if len(lb.history) >= lb.maxHist {
		lb.history = lb.history[1:]
	}
	lb.history = append(lb.history, message)

	for ch := range lb.clients {
		select {
		case ch <- message:
		default:
		}
	}
}

// LogWriter adapts the broadcaster to io.Writer so it can sit inside the
// slog handler's output chain.
type LogWriter struct {
	broadcaster *LogBroadcaster
}

func (lw *LogWriter) Write(p []byte) (n int, err error) {
	lw.broadcaster.Broadcast(string(p))
	return len(p), nil
}

// setupLogging routes the daemon's slog output to stderr and to the
// broadcaster at the same time, through a single tint handler.
func (d *Daemon) setupLogging() {
	logWriter := &LogWriter{broadcaster: d.logBroadcast}
	multiWriter := io.MultiWriter(os.Stderr, logWriter)

	handler := tint.NewHandler(multiWriter, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.DateTime,
	})
	slog.SetDefault(slog.New(handler))
}

// handleLogs streams daemon logs to the client until they disconnect.
func (d *Daemon) handleLogs(conn net.Conn) {
	d.handleLogsWithHistory(conn, true, 20)
}

func (d *Daemon) handleLogsWithHistory(conn net.Conn, showHistory bool, historyLines int) {
	defer conn.Close()

	var logChan chan string
	var history []string
	if showHistory {
		logChan, history = d.logBroadcast.SubscribeWithHistory(historyLines)
	} else {
		logChan = d.logBroadcast.Subscribe()
	}
	defer d.logBroadcast.Unsubscribe(logChan)

	initialMsg := "Connected to squeakbox daemon logs. Press Ctrl+C to exit.\n"
	if _, err := conn.Write([]byte(initialMsg)); err != nil {
		slog.Warn(fmt.Sprintf("Failed to send initial message to logs client: %v", err))
		return
	}

	// History before live lines, so output reads chronologically
	for _, msg := range history {
		if _, err := conn.Write([]byte(msg)); err != nil {
			return
		}
	}

	// Watch for the client hanging up while we block on the channel
	done := make(chan bool)
	go func() {
		reader := bufio.NewReader(conn)
		io.Copy(io.Discard, reader)
		done <- true
	}()

	for {
		select {
		case logMsg, ok := <-logChan:
			if !ok {
				return
			}
			if _, err := conn.Write([]byte(logMsg)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
