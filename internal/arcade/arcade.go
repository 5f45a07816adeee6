// Package arcade runs one play session end to end: a two-window tmux
// session with the AI agent beside a game, the readiness monitor on the
// agent window, a pane watchdog, and play recording. Attach blocks
// until the user detaches or the session dies; teardown then stops and
// awaits the monitor before the session is killed.
package arcade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/asheshgoplani/agent-arcade/internal/agent"
	"github.com/asheshgoplani/agent-arcade/internal/config"
	"github.com/asheshgoplani/agent-arcade/internal/logging"
	"github.com/asheshgoplani/agent-arcade/internal/monitor"
	"github.com/asheshgoplani/agent-arcade/internal/platform"
	"github.com/asheshgoplani/agent-arcade/internal/statedb"
	"github.com/asheshgoplani/agent-arcade/internal/tmux"
)

var arcadeLog = logging.ForComponent(logging.CompArcade)

// Session is the slice of the tmux session the orchestrator drives.
type Session interface {
	Create() error
	Kill() error
	Launch(window tmux.WindowHandle, command string, args []string) error
	Attach(ctx context.Context) error
	CaptureWindow(window tmux.WindowHandle, maxLines int) ([]string, error)
	FlashMessage(window tmux.WindowHandle, message string, flash time.Duration) error
	WindowDead(window tmux.WindowHandle) (bool, error)
	RespawnWindow(window tmux.WindowHandle, command string) error
	SetStatusState(agentName, game string, ready bool)
}

// Options configures one play session.
type Options struct {
	Config *config.Config

	// DB records the play when set. Optional.
	DB *statedb.StateDB

	// AgentSelector picks the agent; empty means the configured default.
	AgentSelector string

	// GameSelector picks the game; empty falls back to the configured
	// default game, or a plain shell when there is none.
	GameSelector string

	// NoGame forces a plain shell in the game window even when a
	// default game is configured. Set when the user explicitly picked
	// no game.
	NoGame bool

	// WorkDir roots both windows; empty means the current directory.
	WorkDir string
}

// Arcade is one play session from launch to teardown. Run may be called
// once.
type Arcade struct {
	cfg     *config.Config
	db      *statedb.StateDB
	profile *agent.CompiledProfile
	watcher agent.StateWatcher

	gameName string // empty when the game window runs a plain shell
	gameCmd  string
	gameArgs []string

	sess     Session
	tmuxName string

	sched       *monitor.Scheduler
	transitions chan monitor.Event
	events      chan monitor.Event

	watchdogEvery time.Duration // zero means watchdogInterval

	mu         sync.Mutex
	readyCount int
}

// New resolves the agent and game against the configuration and wires
// the monitor around a fresh session handle. Nothing touches tmux until
// Run.
func New(opts Options) (*Arcade, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("arcade: config is required")
	}

	selector := opts.AgentSelector
	if selector == "" {
		selector = cfg.GetDefaultAgent()
	}
	prof, ok := cfg.ResolveAgent(selector)
	if !ok {
		return nil, fmt.Errorf("arcade: unknown agent %q", selector)
	}

	a := &Arcade{
		cfg:         cfg,
		db:          opts.DB,
		profile:     agent.Compile(prof),
		transitions: make(chan monitor.Event, 16),
		events:      make(chan monitor.Event, 16),
	}

	gameSelector := opts.GameSelector
	if gameSelector == "" && !opts.NoGame {
		gameSelector = cfg.DefaultGame
	}
	if gameSelector != "" {
		name, def, ok := cfg.ResolveGame(gameSelector)
		if !ok {
			return nil, fmt.Errorf("arcade: unknown game %q", gameSelector)
		}
		a.gameName = name
		a.gameCmd = def.Command
		a.gameArgs = def.Args
	}

	workDir := opts.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("arcade: resolve working directory: %w", err)
		}
		workDir = wd
	}

	sess := tmux.NewSession(prof.Name, workDir)
	a.sess = sess
	a.tmuxName = sess.Name

	w, err := agent.NewStateWatcher(prof, sess.Name)
	if err != nil {
		// Terminal patterns still work without the side channel
		arcadeLog.Warn("state_watcher_unavailable",
			slog.String("agent", prof.Name),
			slog.String("error", err.Error()))
		w = nil
	}
	if w != nil && prof.Detection == agent.DetectHooks {
		// Hook detection rides on inotify; on passthrough mounts the
		// terminal monitor carries readiness alone.
		if msg := platform.CheckFsnotifySupport(agent.HooksDir()); msg != "" {
			arcadeLog.Warn("hook_events_unreliable",
				slog.String("dir", agent.HooksDir()),
				slog.String("detail", msg))
		}
	}
	a.watcher = w
	var signals <-chan agent.StateEvent
	if w != nil {
		signals = w.Events()
	}

	var sink monitor.MultiSink
	if cfg.Notifications.GetEnabled() && cfg.Notifications.GetVisual() {
		sink = append(sink, monitor.NewFlashSink(sess, cfg.Notifications.GetFlashDuration()))
	}

	a.sched = monitor.NewScheduler(sess, sink, a.profile, monitor.Options{
		Window:            tmux.AgentWindow,
		Target:            tmux.GameWindow,
		CheckInterval:     cfg.Monitoring.GetCheckInterval(),
		InactivityTimeout: cfg.Monitoring.GetInactivityTimeout(),
		BufferLines:       cfg.Monitoring.GetBufferLines(),
		ReadyMessage:      cfg.Notifications.GetMessage(),
		Signals:           signals,
		Transitions:       a.transitions,
	})

	return a, nil
}

// SessionName returns the tmux session name, known before Run.
func (a *Arcade) SessionName() string { return a.tmuxName }

// AgentName returns the resolved agent profile name.
func (a *Arcade) AgentName() string { return a.profile.Name }

// GameName returns the resolved game, or empty when the game window
// runs a plain shell.
func (a *Arcade) GameName() string { return a.gameName }

// Snapshot returns the monitor state. Safe from any goroutine.
func (a *Arcade) Snapshot() monitor.Snapshot { return a.sched.Snapshot() }

// Events streams status transitions to outside consumers. Events are
// dropped when the receiver lags; the channel closes on teardown.
func (a *Arcade) Events() <-chan monitor.Event { return a.events }

// ReadyCount reports how many READY edges the monitor has emitted so
// far this session.
func (a *Arcade) ReadyCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readyCount
}

// gameLabel names the play for the stats record.
func (a *Arcade) gameLabel() string {
	if a.gameName == "" {
		return "shell"
	}
	return a.gameName
}

// Run executes the session until the user detaches, the session dies,
// or ctx is cancelled. The agent launches in window 0 and the game in
// window 1; a profile or game without a command leaves the window on
// the user's shell. Teardown stops and awaits the monitor before the
// session is killed.
func (a *Arcade) Run(ctx context.Context) error {
	if err := a.sess.Create(); err != nil {
		return fmt.Errorf("arcade: create session: %w", err)
	}
	defer func() {
		if err := a.sess.Kill(); err != nil {
			arcadeLog.Warn("session_kill_failed",
				slog.String("session", a.tmuxName),
				slog.String("error", err.Error()))
		}
	}()

	agentCmd, agentArgs := a.profile.LaunchCommand()
	if agentCmd != "" {
		if err := a.sess.Launch(tmux.AgentWindow, agentCmd, agentArgs); err != nil {
			return fmt.Errorf("arcade: launch agent: %w", err)
		}
	}
	if a.gameCmd != "" {
		if err := a.sess.Launch(tmux.GameWindow, a.gameCmd, a.gameArgs); err != nil {
			return fmt.Errorf("arcade: launch game: %w", err)
		}
	}

	// Recording failures degrade to an unrecorded play, never a dead one
	started := time.Now()
	var playID int64
	if a.db != nil {
		id, err := a.db.StartPlay(a.profile.Name, a.gameLabel(), started)
		if err != nil {
			arcadeLog.Warn("play_record_failed", slog.String("error", err.Error()))
		} else {
			playID = id
		}
	}
	defer func() {
		if playID == 0 {
			return
		}
		if err := a.db.FinishPlay(playID, time.Since(started), a.ReadyCount()); err != nil {
			arcadeLog.Warn("play_finish_failed",
				slog.Int64("play_id", playID),
				slog.String("error", err.Error()))
		}
	}()

	a.sess.SetStatusState(a.profile.Name, a.gameName, false)

	arcadeLog.Info("play_started",
		slog.String("session", a.tmuxName),
		slog.String("agent", a.profile.Name),
		slog.String("game", a.gameLabel()))

	return a.supervise(ctx)
}

// supervise runs the monitor, the watchdog, and the blocking attach,
// then tears them down in order.
func (a *Arcade) supervise(ctx context.Context) error {
	monCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()

	if a.watcher != nil {
		if err := a.watcher.Start(monCtx); err != nil {
			arcadeLog.Warn("state_watcher_start_failed",
				slog.String("agent", a.profile.Name),
				slog.String("error", err.Error()))
			_ = a.watcher.Close()
			a.watcher = nil
		} else {
			defer func() { _ = a.watcher.Close() }()
		}
	}

	monDone := make(chan struct{})
	go func() {
		defer close(monDone)
		a.sched.Run(monCtx)
	}()

	consumed := make(chan struct{})
	go a.consumeTransitions(consumed)

	agentCmd, agentArgs := a.profile.LaunchCommand()
	wd := newWatchdog(a.sess, respawnLine(agentCmd, agentArgs), respawnLine(a.gameCmd, a.gameArgs))
	if a.watchdogEvery > 0 {
		wd.interval = a.watchdogEvery
	}
	wdErr := make(chan error, 1)
	go func() {
		err := wd.Run(monCtx)
		if err != nil {
			// Killing the session is what unblocks Attach
			arcadeLog.Error("watchdog_abort", slog.String("error", err.Error()))
			_ = a.sess.Kill()
		}
		wdErr <- err
	}()

	attachErr := a.sess.Attach(ctx)

	stopMonitor()
	<-monDone
	close(a.transitions)
	<-consumed

	if err := <-wdErr; err != nil {
		return err
	}

	if attachErr != nil {
		return fmt.Errorf("arcade: attach: %w", attachErr)
	}
	return nil
}

// consumeTransitions applies each transition to the status line, counts
// READY edges for the play record, and fans events out to Events
// subscribers without blocking. Exits when the transitions channel
// closes during teardown.
func (a *Arcade) consumeTransitions(done chan<- struct{}) {
	defer close(done)
	defer close(a.events)

	for ev := range a.transitions {
		ready := ev.Status == monitor.StatusReady
		if ready {
			a.mu.Lock()
			a.readyCount++
			a.mu.Unlock()
		}
		a.sess.SetStatusState(a.profile.Name, a.gameName, ready)

		select {
		case a.events <- ev:
		default:
		}
	}
}

// respawnLine renders the command the watchdog respawns a window with.
// Empty means respawn-pane falls back to the default shell.
func respawnLine(command string, args []string) string {
	if command == "" {
		return ""
	}
	return tmux.CommandLine(command, args)
}
