package agent

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Codex writes a TUI log as it works. Lines mentioning turn or stream
// processing mean the agent is busy; span-close lines mean a unit of
// work finished. No stable prompt string exists, so this log is the
// best readiness source for codex.
var (
	logActiveMarkers = []string{
		"run_turn",
		"receiving_stream",
		"ToolCall",
		"stream_events_utils",
	}
	logIdleMarkers = []string{
		"close time.busy",
		"close time.idle",
	}
)

const (
	logPollInterval = 200 * time.Millisecond
	// logIdleAfter marks the agent idle when the log goes quiet after
	// activity, covering turns whose close line never appears.
	logIdleAfter = 2 * time.Second
)

// LogWatcher tails an agent's activity log and classifies the agent as
// idle or active from marker lines. Starts at the current end of file;
// a shrinking file means rotation or truncation and resets the tail to
// the beginning.
type LogWatcher struct {
	path   string
	events chan StateEvent

	mu           sync.Mutex
	idle         bool
	position     int64
	lastActivity time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewLogWatcher creates a tailer for the given log path. A leading ~ is
// expanded; a missing file is fine, tailing starts when it appears.
func NewLogWatcher(path string) *LogWatcher {
	return &LogWatcher{
		path:   expandHome(path),
		events: make(chan StateEvent, 8),
		idle:   true,
		done:   make(chan struct{}),
	}
}

// Events implements StateWatcher.
func (w *LogWatcher) Events() <-chan StateEvent {
	return w.events
}

// Start implements StateWatcher.
func (w *LogWatcher) Start(ctx context.Context) error {
	w.prime(time.Now())
	go w.loop(ctx)
	return nil
}

// prime positions the tail at the current end of file so history does
// not count as activity.
func (w *LogWatcher) prime(now time.Time) {
	if info, err := os.Stat(w.path); err == nil {
		w.position = info.Size()
	}
	w.lastActivity = now
}

// Close implements StateWatcher.
func (w *LogWatcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
	})
	return nil
}

func (w *LogWatcher) loop(ctx context.Context) {
	ticker := time.NewTicker(logPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.poll(time.Now())
		}
	}
}

// poll reads whatever the log gained since last time and updates state.
// Split out from the loop so tests can drive it with their own clock.
func (w *LogWatcher) poll(now time.Time) {
	lines, err := w.readNewLines()
	if err != nil {
		return
	}

	activeSeen := false
	idleSeen := false
	for _, line := range lines {
		if containsAny(line, logActiveMarkers) {
			activeSeen = true
			continue
		}
		if containsAny(line, logIdleMarkers) {
			idleSeen = true
		}
	}

	w.mu.Lock()
	if activeSeen {
		w.lastActivity = now
		w.setIdleLocked(false, now)
	} else if idleSeen {
		// Close lines without fresh activity in the same batch
		w.setIdleLocked(true, now)
	}
	if !w.idle && now.Sub(w.lastActivity) >= logIdleAfter {
		w.setIdleLocked(true, now)
	}
	w.mu.Unlock()
}

// readNewLines returns complete lines appended since the last read.
func (w *LogWatcher) readNewLines() ([]string, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, err
	}

	size := info.Size()
	if size < w.position {
		// Rotated or truncated: start over from the top
		agentLog.Debug("log_truncated_resetting", slog.String("path", w.path))
		w.position = 0
	}
	if size == w.position {
		return nil, nil
	}

	f, err := os.Open(w.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(w.position, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	w.position += int64(len(data))

	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

// setIdleLocked flips the state and emits an event on a real change.
// Caller holds w.mu.
func (w *LogWatcher) setIdleLocked(idle bool, at time.Time) {
	if idle == w.idle {
		return
	}
	w.idle = idle

	agentLog.Debug("log_state_changed",
		slog.String("path", filepath.Base(w.path)),
		slog.Bool("idle", idle))

	select {
	case w.events <- StateEvent{Idle: idle, At: at}:
	default:
	}
}

func containsAny(line string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
