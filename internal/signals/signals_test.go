package signals

import (
	"sync"
	"testing"
)

func TestSendAndDetectCancel(t *testing.T) {
	dir := t.TempDir()

	sender, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager(sender) error = %v", err)
	}
	defer sender.Close()

	receiver, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager(receiver) error = %v", err)
	}
	defer receiver.Close()

	if receiver.IsCancelled("sess1") {
		t.Fatal("IsCancelled() = true before any signal")
	}
	if err := sender.SendCancel("sess1"); err != nil {
		t.Fatalf("SendCancel() error = %v", err)
	}
	// The stat fallback must see the file even if the watcher misses it.
	if !receiver.IsCancelled("sess1") {
		t.Error("IsCancelled() = false after signal was sent")
	}
	if receiver.IsCancelled("other") {
		t.Error("IsCancelled() = true for a session without a signal")
	}
}

func TestCancelCallbackFiresOnce(t *testing.T) {
	dir := t.TempDir()

	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	// The watcher may deliver the event concurrently with polling.
	var mu sync.Mutex
	var got []string
	m.SetOnCancel(func(id string) {
		mu.Lock()
		got = append(got, id)
		mu.Unlock()
	})

	if err := m.SendCancel("sess1"); err != nil {
		t.Fatalf("SendCancel() error = %v", err)
	}
	// Repeated polling records the signal once.
	m.IsCancelled("sess1")
	m.IsCancelled("sess1")
	m.IsCancelled("sess1")

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "sess1" {
		t.Errorf("callback fired %d times with %v, want once with sess1", len(got), got)
	}
}

func TestClearRemovesSignal(t *testing.T) {
	dir := t.TempDir()

	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	if err := m.SendCancel("sess1"); err != nil {
		t.Fatalf("SendCancel() error = %v", err)
	}
	if !m.IsCancelled("sess1") {
		t.Fatal("IsCancelled() = false after SendCancel")
	}

	m.Clear("sess1")
	if m.IsCancelled("sess1") {
		t.Error("IsCancelled() = true after Clear")
	}
}
