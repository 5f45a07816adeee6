package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// hookDebounce coalesces the burst of writes a hook command produces
// (create, write, chmod) into one read.
const hookDebounce = 100 * time.Millisecond

// HookWatcher follows a state file written by the agent's own hooks.
// Claude Code can be configured to run a command on every stop/start
// event; that command writes {"state": "idle"|"active", "ts": ...} to
// <hooks dir>/<session>.json and this watcher turns the writes into
// StateEvents. Much faster than waiting out an inactivity window.
type HookWatcher struct {
	stateFile string
	watcher   *fsnotify.Watcher
	events    chan StateEvent

	mu        sync.Mutex
	lastIdle  bool
	hasState  bool
	closeOnce sync.Once
}

// NewHookWatcher creates a watcher for one session's hook state file
// under the default hooks directory.
func NewHookWatcher(sessionName string) (*HookWatcher, error) {
	return NewHookWatcherAt(HooksDir(), sessionName)
}

// NewHookWatcherAt creates a watcher rooted at an explicit directory.
// The directory is created if missing so the agent's hook command never
// has to.
func NewHookWatcherAt(dir, sessionName string) (*HookWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &HookWatcher{
		stateFile: filepath.Join(dir, sessionName+".json"),
		watcher:   fw,
		events:    make(chan StateEvent, 8),
	}, nil
}

// StateFile returns the path hook commands must write to.
func (w *HookWatcher) StateFile() string {
	return w.stateFile
}

// Events implements StateWatcher.
func (w *HookWatcher) Events() <-chan StateEvent {
	return w.events
}

// Start implements StateWatcher. Watches the hooks directory rather than
// the file itself so atomic rename writes are seen too.
func (w *HookWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.stateFile)); err != nil {
		return err
	}

	// Pick up a state file left over from before we started
	w.processStateFile()

	go w.loop(ctx)
	return nil
}

func (w *HookWatcher) loop(ctx context.Context) {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.stateFile {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(hookDebounce, w.processStateFile)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			agentLog.Warn("hook_watcher_error", slog.String("error", err.Error()))
		}
	}
}

// Close implements StateWatcher.
func (w *HookWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
	})
	return err
}

// processStateFile reads the state file and emits an event when the
// idle/active state actually changed. Malformed files are ignored; the
// next hook write will fix them.
func (w *HookWatcher) processStateFile() {
	data, err := os.ReadFile(w.stateFile)
	if err != nil {
		return
	}

	var state struct {
		State string  `json:"state"`
		Ts    float64 `json:"ts"`
	}
	if err := json.Unmarshal(data, &state); err != nil {
		agentLog.Debug("hook_state_malformed", slog.String("file", w.stateFile), slog.String("error", err.Error()))
		return
	}
	if state.State == "" {
		return
	}

	idle := state.State == "idle"

	w.mu.Lock()
	changed := !w.hasState || idle != w.lastIdle
	w.lastIdle = idle
	w.hasState = true
	w.mu.Unlock()

	if !changed {
		return
	}

	agentLog.Debug("hook_state_changed",
		slog.String("file", filepath.Base(w.stateFile)),
		slog.Bool("idle", idle))

	select {
	case w.events <- StateEvent{Idle: idle, At: time.Now()}:
	default:
		// Nobody is reading fast enough; the latest write wins anyway
	}
}

// HooksDir returns the directory hook commands write state files to.
func HooksDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".agent-arcade", "hooks")
	}
	return filepath.Join(home, ".agent-arcade", "hooks")
}
