package arcade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/asheshgoplani/agent-arcade/internal/tmux"
)

const (
	// watchdogInterval is how often both panes are checked for death.
	watchdogInterval = time.Second

	// respawnBudget is how many consecutive dead checks a window gets
	// before the watchdog gives up on the session.
	respawnBudget = 3
)

// watchdog restarts dead panes in place. remain-on-exit keeps a crashed
// pane visible, so the original command can be respawned into it. A
// window found dead respawnBudget checks in a row means restarts are
// not helping and the watchdog reports a fatal error.
type watchdog struct {
	sess      Session
	agentLine string // shell-quoted respawn command, empty for the default shell
	gameLine  string

	interval time.Duration

	agentFailures int
	gameFailures  int
}

func newWatchdog(sess Session, agentLine, gameLine string) *watchdog {
	return &watchdog{
		sess:      sess,
		agentLine: agentLine,
		gameLine:  gameLine,
		interval:  watchdogInterval,
	}
}

// Run polls until ctx is cancelled or a window is beyond saving. A
// session that disappeared entirely returns nil: there is nothing left
// to guard and Attach observes the end on its own.
func (w *watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.check(); err != nil {
				if errors.Is(err, tmux.ErrWindowUnavailable) {
					return nil
				}
				return err
			}
		}
	}
}

// check inspects both windows once. A window's failure count tracks
// consecutive checks that found it dead or unreachable; only observing
// it alive resets the count.
func (w *watchdog) check() error {
	if err := w.checkWindow(tmux.AgentWindow, w.agentLine, &w.agentFailures); err != nil {
		return err
	}
	return w.checkWindow(tmux.GameWindow, w.gameLine, &w.gameFailures)
}

func (w *watchdog) checkWindow(window tmux.WindowHandle, line string, failures *int) error {
	dead, err := w.sess.WindowDead(window)
	if err != nil {
		if errors.Is(err, tmux.ErrWindowUnavailable) {
			return err
		}
		*failures++
		arcadeLog.Warn("pane_check_failed",
			slog.Int("window", int(window)),
			slog.Int("failures", *failures),
			slog.String("error", err.Error()))
		if *failures >= respawnBudget {
			return fmt.Errorf("arcade: window %d unreachable after %d checks: %w", window, *failures, err)
		}
		return nil
	}

	if !dead {
		*failures = 0
		return nil
	}

	*failures++
	if *failures >= respawnBudget {
		return fmt.Errorf("arcade: window %d died %d checks in a row, giving up", window, *failures)
	}

	arcadeLog.Info("pane_respawn",
		slog.Int("window", int(window)),
		slog.Int("attempt", *failures))
	if err := w.sess.RespawnWindow(window, line); err != nil {
		if errors.Is(err, tmux.ErrWindowUnavailable) {
			return err
		}
		// Counted already; the next check decides whether it helped
		arcadeLog.Warn("pane_respawn_failed",
			slog.Int("window", int(window)),
			slog.String("error", err.Error()))
	}
	return nil
}
