// Package signals implements cross-process cancellation via signal files
// in the .cascade directory. A status --cancel invocation in one process
// drops a file that the process running the session picks up through a
// filesystem watch (with a stat fallback in case the watcher misses it).
package signals

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const cancelPrefix = "cancel-"

// Manager watches and writes session cancel signals.
type Manager struct {
	signalsDir string

	mu        sync.RWMutex
	cancelled map[string]bool
	onCancel  func(sessionID string)

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewManager creates a signal manager rooted at dir (typically the
// directory holding the state database). The watcher is best-effort;
// callers polling IsCancelled still see signals if it could not start.
func NewManager(dir string) (*Manager, error) {
	signalsDir := filepath.Join(dir, "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	m := &Manager{
		signalsDir: signalsDir,
		cancelled:  make(map[string]bool),
		done:       make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return m, nil
	}
	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		return m, nil
	}
	m.watcher = watcher
	go m.watch()

	return m, nil
}

// SetOnCancel registers a callback invoked once per newly observed
// cancel signal.
func (m *Manager) SetOnCancel(fn func(sessionID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCancel = fn
}

// watch consumes filesystem events for the signals directory.
func (m *Manager) watch() {
	for {
		select {
		case <-m.done:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 && event.Op&fsnotify.Write == 0 {
				continue
			}
			base := filepath.Base(event.Name)
			if !strings.HasPrefix(base, cancelPrefix) {
				continue
			}
			m.record(strings.TrimPrefix(base, cancelPrefix))
		case <-m.watcher.Errors:
			// Keep watching.
		}
	}
}

// record marks a session cancelled and fires the callback once.
func (m *Manager) record(sessionID string) {
	m.mu.Lock()
	already := m.cancelled[sessionID]
	m.cancelled[sessionID] = true
	fn := m.onCancel
	m.mu.Unlock()

	if !already && fn != nil {
		fn(sessionID)
	}
}

// SendCancel drops a cancel signal file for the session.
func (m *Manager) SendCancel(sessionID string) error {
	path := filepath.Join(m.signalsDir, cancelPrefix+sessionID)
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// IsCancelled reports whether a cancel signal exists for the session.
// The file is statted directly in case the watcher missed the event.
func (m *Manager) IsCancelled(sessionID string) bool {
	path := filepath.Join(m.signalsDir, cancelPrefix+sessionID)
	if _, err := os.Stat(path); err == nil {
		m.record(sessionID)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cancelled[sessionID]
}

// Clear removes the cancel signal for a session, typically after the
// session reached its terminal state.
func (m *Manager) Clear(sessionID string) {
	m.mu.Lock()
	delete(m.cancelled, sessionID)
	m.mu.Unlock()
	os.Remove(filepath.Join(m.signalsDir, cancelPrefix+sessionID))
}

// Close shuts the watcher down.
func (m *Manager) Close() {
	close(m.done)
	if m.watcher != nil {
		m.watcher.Close()
	}
}
