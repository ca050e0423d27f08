package daemon

import (
	"testing"
	"time"
)

func TestLogBroadcasterSubscribe(t *testing.T) {
	lb := NewLogBroadcaster(100)

	ch := lb.Subscribe()
	defer lb.Unsubscribe(ch)

	lb.Broadcast("hello\n")

	select {
	case msg := <-ch:
		if msg != "hello\n" {
			t.Errorf("Expected 'hello\\n', got %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for broadcast")
	}
}

func TestLogBroadcasterHistory(t *testing.T) {
	lb := NewLogBroadcaster(100)

	lb.Broadcast("one\n")
	lb.Broadcast("two\n")
	lb.Broadcast("three\n")

	_, history := lb.SubscribeWithHistory(2)
	if len(history) != 2 {
		t.Fatalf("Expected 2 history lines, got %d", len(history))
	}
	if history[0] != "two\n" || history[1] != "three\n" {
		t.Errorf("Unexpected history: %v", history)
	}
}

func TestLogBroadcasterHistoryLimit(t *testing.T) {
	lb := NewLogBroadcaster(3)

	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		lb.Broadcast(msg)
	}

	_, history := lb.SubscribeWithHistory(10)
	if len(history) != 3 {
		t.Fatalf("Expected ring buffer capped at 3, got %d", len(history))
	}
	if history[0] != "c" || history[2] != "e" {
		t.Errorf("Unexpected history: %v", history)
	}
}

func TestLogBroadcasterSlowClient(t *testing.T) {
	lb := NewLogBroadcaster(10)

	ch := lb.Subscribe()
	defer lb.Unsubscribe(ch)

	// Fill the client's channel buffer and keep going; the broadcaster
	// must not block
	for i := 0; i < 500; i++ {
		lb.Broadcast("spam\n")
	}
}

func TestLogBroadcasterDefaultSize(t *testing.T) {
	lb := NewLogBroadcaster(0)
	if lb.maxHist != 1000 {
		t.Errorf("Expected default history size 1000, got %d", lb.maxHist)
	}
}

func TestLogWriter(t *testing.T) {
	lb := NewLogBroadcaster(10)
	lw := &LogWriter{broadcaster: lb}

	n, err := lw.Write([]byte("log line\n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len("log line\n") {
		t.Errorf("Expected %d bytes written, got %d", len("log line\n"), n)
	}

	_, history := lb.SubscribeWithHistory(1)
	if len(history) != 1 || history[0] != "log line\n" {
		t.Errorf("Expected the written line in history, got %v", history)
	}
}
