package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/asheshgoplani/agent-arcade/internal/agent"
	"github.com/asheshgoplani/agent-arcade/internal/logging"
	"github.com/asheshgoplani/agent-arcade/internal/tmux"
)

// Event is one status transition, emitted exactly once per edge.
// Message is set on READY edges only; BUSY edges are state fanout with
// nothing to display.
type Event struct {
	Timestamp      time.Time         `json:"timestamp"`
	Status         Status            `json:"status"`
	Message        string            `json:"message,omitempty"`
	TargetWindow   tmux.WindowHandle `json:"target_window"`
	MatchedPattern string            `json:"matched_pattern,omitempty"`
}

// Sink receives transition events. Implementations are fire-and-forget:
// they log their own failures and never return them into the loop.
type Sink interface {
	Notify(ev Event)
}

// Capturer is the slice of the tmux session the scheduler needs.
type Capturer interface {
	CaptureWindow(window tmux.WindowHandle, maxLines int) ([]string, error)
}

// Snapshot is a consistent read of the monitor state for status bars,
// HTTP handlers, and the watchdog.
type Snapshot struct {
	Status              Status    `json:"status"`
	LastChange          time.Time `json:"last_change"`
	LastTransition      time.Time `json:"last_transition"`
	MatchedPattern      string    `json:"matched_pattern,omitempty"`
	Ticks               uint64    `json:"ticks"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Options configures a Scheduler.
type Options struct {
	// Window is the agent window being watched.
	Window tmux.WindowHandle
	// Target is where READY notifications are displayed.
	Target tmux.WindowHandle

	CheckInterval     time.Duration
	InactivityTimeout time.Duration
	BufferLines       int

	// ReadyMessage is the text flashed on READY edges.
	ReadyMessage string

	// Signals carries idle/active observations from an auxiliary agent
	// watcher. Optional; nil means terminal output is the only source.
	Signals <-chan agent.StateEvent

	// Transitions receives a copy of every emitted Event without ever
	// blocking the loop. Optional.
	Transitions chan<- Event
}

// Scheduler polls the agent window on a fixed interval, feeds the
// detector, and emits exactly one notification per status edge. The
// loop is the only writer of the monitor state; everyone else reads
// through Snapshot.
type Scheduler struct {
	capture  Capturer
	sink     Sink
	detector *Detector
	opts     Options

	// lastNotified dedupes edges across UNKNOWN gaps: a window blip
	// while READY must not produce a second READY notification on
	// recovery.
	lastNotified Status

	mu   sync.RWMutex
	snap Snapshot
}

// NewScheduler wires a scheduler around an existing detector.
func NewScheduler(capture Capturer, sink Sink, profile *agent.CompiledProfile, opts Options) *Scheduler {
	now := time.Now()
	return &Scheduler{
		capture:      capture,
		sink:         sink,
		detector:     NewDetector(profile, opts.InactivityTimeout, now),
		opts:         opts,
		lastNotified: StatusBusy,
		snap: Snapshot{
			Status:     StatusBusy,
			LastChange: now,
		},
	}
}

// Snapshot returns the current monitor state. Safe from any goroutine.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Run executes the polling loop until ctx is cancelled. Cancellation is
// honored within one check interval. Callers that need the teardown
// ordering guarantee run this in a goroutine and wait for it to return
// before killing the session.
func (s *Scheduler) Run(ctx context.Context) {
	monitorLog.Info("monitor_started",
		slog.Int("window", int(s.opts.Window)),
		slog.Duration("check_interval", s.opts.CheckInterval),
		slog.Duration("inactivity_timeout", s.opts.InactivityTimeout),
		slog.Int("buffer_lines", s.opts.BufferLines))

	ticker := time.NewTicker(s.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			monitorLog.Info("monitor_stopped", slog.Uint64("ticks", s.Snapshot().Ticks))
			return

		case sig, ok := <-s.opts.Signals:
			if !ok {
				s.opts.Signals = nil
				continue
			}
			s.applySignal(sig)

		case <-ticker.C:
			s.tick(time.Now())
		}
	}
}

// tick runs one capture-evaluate-notify cycle.
func (s *Scheduler) tick(now time.Time) {
	lines, err := s.capture.CaptureWindow(s.opts.Window, s.opts.BufferLines)

	var ev Evaluation
	switch {
	case err == nil:
		ev = s.detector.Observe(lines, now)
		logging.Aggregate(logging.CompMonitor, "poll_tick", slog.String("status", string(ev.Status)))

	case errors.Is(err, tmux.ErrWindowUnavailable):
		// No notification for entering UNKNOWN; keep polling in case
		// the window comes back.
		ev = s.detector.ObserveUnavailable()
		if ev.Transitioned {
			monitorLog.Warn("window_unavailable", slog.Int("window", int(s.opts.Window)))
		} else {
			logging.Aggregate(logging.CompMonitor, "window_still_unavailable")
		}
		s.recordFailure(now, ev)
		return

	default:
		// Transient capture failure: keep the current status, try
		// again next tick. No retry inside the tick.
		monitorLog.Warn("capture_failed", slog.Int("window", int(s.opts.Window)), slog.String("error", err.Error()))
		s.recordFailure(now, Evaluation{Status: s.detector.Status(), Previous: s.detector.Status()})
		return
	}

	s.finishTick(now, ev, 0)
}

// applySignal merges an auxiliary watcher observation into the state
// machine, on the loop goroutine so the single-writer rule holds.
func (s *Scheduler) applySignal(sig agent.StateEvent) {
	target := StatusBusy
	source := "agent_signal"
	if sig.Idle {
		target = StatusReady
	}

	now := time.Now()
	ev := s.detector.Apply(target, source, now)
	monitorLog.Debug("agent_signal",
		slog.Bool("idle", sig.Idle),
		slog.Bool("transitioned", ev.Transitioned))

	s.finishTick(now, ev, s.Snapshot().ConsecutiveFailures)
}

// finishTick emits the notification for a transition edge and publishes
// the new snapshot.
func (s *Scheduler) finishTick(now time.Time, ev Evaluation, failures int) {
	notified := false
	if ev.Transitioned && ev.Status != StatusUnknown && ev.Status != s.lastNotified {
		event := Event{
			Timestamp:      now,
			Status:         ev.Status,
			TargetWindow:   s.opts.Target,
			MatchedPattern: ev.MatchedPattern,
		}
		if ev.Status == StatusReady {
			event.Message = s.opts.ReadyMessage
		}

		s.sink.Notify(event)
		s.lastNotified = ev.Status
		notified = true

		monitorLog.Info("status_transition",
			slog.String("from", string(ev.Previous)),
			slog.String("to", string(ev.Status)),
			slog.String("matched", ev.MatchedPattern))

		if s.opts.Transitions != nil {
			select {
			case s.opts.Transitions <- event:
			default:
			}
		}
	}

	s.mu.Lock()
	s.snap.Status = ev.Status
	s.snap.LastChange = s.detector.LastChange()
	s.snap.Ticks++
	s.snap.ConsecutiveFailures = failures
	if notified || ev.Transitioned {
		s.snap.LastTransition = now
		s.snap.MatchedPattern = ev.MatchedPattern
	}
	s.mu.Unlock()
}

// recordFailure publishes a failed tick's snapshot.
func (s *Scheduler) recordFailure(now time.Time, ev Evaluation) {
	s.mu.Lock()
	s.snap.Status = ev.Status
	s.snap.Ticks++
	s.snap.ConsecutiveFailures++
	if ev.Transitioned {
		s.snap.LastTransition = now
		s.snap.MatchedPattern = ""
	}
	s.mu.Unlock()
}
