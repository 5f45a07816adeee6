// Package tmux manages arcade sessions: tmux session lifecycle, window
// capture, keystroke injection, and in-window flash notifications.
//
// Every arcade session has exactly two windows: window 0 runs the AI agent,
// window 1 runs the game (or any activity the agent drives). Capture and
// display subprocess calls carry a 3 second timeout so a hung tmux server
// cannot wedge the monitor loop.
package tmux

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/agent-arcade/internal/logging"
)

var tmuxLog = logging.ForComponent(logging.CompTmux)

// SessionPrefix namespaces all sessions created by this tool so that
// ListSessions never picks up the user's own tmux sessions.
const SessionPrefix = "arcade_"

// WindowHandle identifies a window inside an arcade session by index.
type WindowHandle int

const (
	// AgentWindow (index 0) runs the AI agent process.
	AgentWindow WindowHandle = 0
	// GameWindow (index 1) runs the game the agent plays.
	GameWindow WindowHandle = 1
)

// AgentWindowName and GameWindowName are the tmux window names assigned
// at session creation.
const (
	AgentWindowName = "agent"
	GameWindowName  = "game"
)

const commandTimeout = 3 * time.Second

var (
	// ErrTmuxNotFound means the tmux binary is missing or not runnable.
	ErrTmuxNotFound = errors.New("tmux not found in PATH")
	// ErrWindowUnavailable means the target window or its session no
	// longer exists (killed externally, server gone).
	ErrWindowUnavailable = errors.New("window unavailable")
	// ErrCaptureTimeout means capture-pane did not return within the
	// subprocess timeout. The window may still be fine.
	ErrCaptureTimeout = errors.New("capture-pane timed out")
)

// IsTmuxAvailable verifies the tmux binary works. Called once at startup;
// a failure here is fatal for the whole program.
func IsTmuxAvailable() error {
	cmd := exec.Command("tmux", "-V")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %v (output: %s)", ErrTmuxNotFound, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Session is a handle to one arcade tmux session and its two windows.
// Safe for concurrent use: capture results are cached per window and
// concurrent captures of the same window are deduplicated.
type Session struct {
	Name        string // full tmux session name (prefix + sanitized + suffix)
	DisplayName string
	WorkDir     string
	Created     time.Time

	captureState
}

// NewSession prepares a session handle. Nothing is created until Create.
func NewSession(name, workDir string) *Session {
	// Unique suffix prevents name collisions across runs
	return &Session{
		Name:        SessionPrefix + sanitizeName(name) + "_" + generateShortID(),
		DisplayName: name,
		WorkDir:     workDir,
		Created:     time.Now(),
	}
}

// ReconnectSession wraps an already-running tmux session, e.g. when the
// status or attach commands resolve a session by name.
func ReconnectSession(tmuxName, displayName, workDir string) *Session {
	return &Session{
		Name:        tmuxName,
		DisplayName: displayName,
		WorkDir:     workDir,
		Created:     time.Now(), // approximate, tmux does not expose this cheaply
	}
}

// Create starts the detached tmux session with the agent window (index 0)
// and the game window (index 1), both rooted at WorkDir.
func (s *Session) Create() error {
	// Regenerate the suffix on the unlikely collision
	if s.Exists() {
		s.Name = SessionPrefix + sanitizeName(s.DisplayName) + "_" + generateShortID()
	}

	workDir := s.WorkDir
	if workDir == "" {
		workDir = os.Getenv("HOME")
	}

	cmd := exec.Command("tmux", "new-session", "-d", "-s", s.Name, "-c", workDir, "-n", AgentWindowName)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to create tmux session: %w (output: %s)", err, string(output))
	}

	// -d keeps the agent window active
	cmd = exec.Command("tmux", "new-window", "-d", "-t", s.Name+":", "-n", GameWindowName, "-c", workDir)
	if output, err := cmd.CombinedOutput(); err != nil {
		killErr := exec.Command("tmux", "kill-session", "-t", s.Name).Run()
		if killErr != nil {
			tmuxLog.Warn("partial_session_cleanup_failed", slog.String("session", s.Name), slog.String("error", killErr.Error()))
		}
		return fmt.Errorf("failed to create game window: %w (output: %s)", err, string(output))
	}

	// Batch session options into a single subprocess call.
	// - mouse on: wheel scrolling and pane selection while attached
	// - history-limit 10000: agents and games scroll fast
	// - escape-time 10: responsive keys inside vim-like games
	// - remain-on-exit on: a crashed pane stays visible so the watchdog
	//   can inspect it and RespawnWindow can restart it in place
	// - allow-passthrough/set-clipboard: OSC 52 clipboard for modern terminals
	_ = exec.Command("tmux",
		"set-option", "-t", s.Name, "mouse", "on", ";",
		"set-option", "-t", s.Name, "history-limit", "10000", ";",
		"set-option", "-t", s.Name, "escape-time", "10", ";",
		"set-option", "-t", s.Name, "remain-on-exit", "on", ";",
		"set-option", "-t", s.Name, "-q", "allow-passthrough", "on", ";",
		"set-option", "-t", s.Name, "set-clipboard", "on").Run()

	s.SetStatusLine()

	tmuxLog.Info("session_created",
		slog.String("session", s.Name),
		slog.String("workdir", workDir))
	return nil
}

// Exists reports whether the tmux session is currently running.
func (s *Session) Exists() bool {
	cmd := exec.Command("tmux", "has-session", "-t", s.Name)
	return cmd.Run() == nil
}

// Kill tears the session down. Idempotent: killing a session that is
// already gone returns nil. After kill-session it verifies the pane
// process trees actually died, escalating SIGTERM to SIGKILL, because
// some agent CLIs ignore the SIGHUP tmux sends.
func (s *Session) Kill() error {
	_, oldPIDs := s.processTree(s.Name + ":")
	if len(oldPIDs) > 0 {
		tmuxLog.Debug("pre_kill_process_tree", slog.String("session", s.Name), slog.Any("pids", oldPIDs))
	}

	cmd := exec.Command("tmux", "kill-session", "-t", s.Name)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if isMissingTarget(string(output)) {
			return nil
		}
		return fmt.Errorf("failed to kill session: %w (output: %s)", err, string(output))
	}

	if len(oldPIDs) > 0 {
		go s.ensureProcessesDead(oldPIDs, 0)
	}

	tmuxLog.Info("session_killed", slog.String("session", s.Name))
	return nil
}

// CommandLine renders a command and its arguments as a single
// shell-quoted line, the form Launch types into a window and
// RespawnWindow hands to the shell.
func CommandLine(command string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(command))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

// Launch types a command line into the window and presses Enter, the
// same way a person at the keyboard would. Arguments are shell-quoted so
// paths with spaces survive. A failure here is fatal for whatever that
// window was meant to run; the caller decides whether to abort the
// whole session.
func (s *Session) Launch(window WindowHandle, command string, args []string) error {
	line := CommandLine(command, args)

	if err := s.SendKeysAndEnter(window, line); err != nil {
		return fmt.Errorf("failed to launch %q in window %d: %w", command, window, err)
	}

	tmuxLog.Info("launched",
		slog.String("session", s.Name),
		slog.Int("window", int(window)),
		slog.String("command", command))
	return nil
}

// SendKeys sends literal text to the window. The -l flag stops tmux from
// interpreting key names, so a game prompt containing "Enter" is typed,
// not pressed.
func (s *Session) SendKeys(window WindowHandle, text string) error {
	s.invalidateCapture(window)
	cmd := exec.Command("tmux", "send-keys", "-l", "-t", s.target(window), "--", text)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return classifyTargetError(err, string(output))
	}
	return nil
}

// SendEnter presses Enter in the window.
func (s *Session) SendEnter(window WindowHandle) error {
	s.invalidateCapture(window)
	cmd := exec.Command("tmux", "send-keys", "-t", s.target(window), "Enter")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return classifyTargetError(err, string(output))
	}
	return nil
}

// SendKeysAndEnter sends literal text then Enter as two tmux calls with a
// short delay. tmux 3.2+ wraps send-keys -l in bracketed paste markers;
// without the delay the Enter lands in the same PTY buffer as the
// paste-end marker and TUI agents (Ink, curses) swallow it.
func (s *Session) SendKeysAndEnter(window WindowHandle, text string) error {
	if err := s.SendKeys(window, text); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return s.SendEnter(window)
}

// FlashMessage shows a transient message overlaid on the window for the
// given duration. This is the delivery mechanism for readiness
// notifications: visible to a human watching the game window, gone by
// itself, and never touches the pane content the monitor fingerprints.
func (s *Session) FlashMessage(window WindowHandle, message string, flash time.Duration) error {
	ms := int(flash.Milliseconds())
	if ms <= 0 {
		ms = 1500
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "tmux", "display-message", "-d", fmt.Sprintf("%d", ms), "-t", s.target(window), message)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return classifyTargetError(err, string(output))
	}
	return nil
}

// SetStatusLine configures the session status bar: detach hint on the
// right with the display name and working folder. Batched into one
// subprocess call.
func (s *Session) SetStatusLine() {
	folderName := filepath.Base(s.WorkDir)
	if folderName == "" || folderName == "." {
		folderName = "~"
	}

	rightStatus := fmt.Sprintf("#[fg=#565f89]ctrl+q detach#[default] | %s | %s ", s.DisplayName, folderName)

	cmd := exec.Command("tmux",
		"set-option", "-t", s.Name, "status", "on", ";",
		"set-option", "-t", s.Name, "status-style", "bg=#1a1b26,fg=#a9b1d6", ";",
		"set-option", "-t", s.Name, "status-left-length", "60", ";",
		"set-option", "-t", s.Name, "status-right", rightStatus, ";",
		"set-option", "-t", s.Name, "status-right-length", "80")
	_ = cmd.Run()
}

// SetStatusState rewrites the left status segment on agent state
// transitions: the agent name with a green marker when it is ready for
// input, yellow while it works, plus the game being played. Best
// effort, like SetStatusLine.
func (s *Session) SetStatusState(agentName, game string, ready bool) {
	marker, state := "#[fg=#e0af68]", "working"
	if ready {
		marker, state = "#[fg=#9ece6a]", "ready"
	}

	left := fmt.Sprintf(" %s●#[default] %s %s ", marker, agentName, state)
	if game != "" {
		left += fmt.Sprintf("#[fg=#565f89]|#[default] %s ", runewidth.Truncate(game, 24, "…"))
	}

	cmd := exec.Command("tmux",
		"set-option", "-t", s.Name, "status-left", left, ";",
		"set-option", "-t", s.Name, "status-left-length", "60")
	_ = cmd.Run()
}

// ListSessions returns the names of all running arcade sessions. A tmux
// server that is not running means no sessions, not an error.
func ListSessions() ([]string, error) {
	cmd := exec.Command("tmux", "list-sessions", "-F", "#{session_name}")
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && isMissingTarget(string(exitErr.Stderr)) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var names []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if strings.HasPrefix(line, SessionPrefix) {
			names = append(names, line)
		}
	}
	return names, nil
}

// target formats the tmux target for a window, e.g. "arcade_zork_a1b2:1".
func (s *Session) target(window WindowHandle) string {
	return fmt.Sprintf("%s:%d", s.Name, int(window))
}

// classifyTargetError maps tmux stderr to sentinel errors so callers can
// distinguish "window is gone" from transient failures.
func classifyTargetError(err error, output string) error {
	if isMissingTarget(output) {
		return fmt.Errorf("%w: %s", ErrWindowUnavailable, strings.TrimSpace(output))
	}
	return fmt.Errorf("tmux command failed: %w (output: %s)", err, strings.TrimSpace(output))
}

// isMissingTarget recognizes the stderr tmux prints when a session,
// window, or the whole server is gone. Message wording varies across
// tmux versions.
func isMissingTarget(output string) bool {
	msg := strings.ToLower(output)
	for _, marker := range []string{
		"can't find session",
		"can't find window",
		"can't find pane",
		"session not found",
		"no such window",
		"no server running",
		"error connecting to",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func generateShortID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp
		return fmt.Sprintf("%d", time.Now().UnixNano()%100000)
	}
	return hex.EncodeToString(b)
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

// sanitizeName makes a display name safe for use in a tmux session name.
func sanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "-")
}

var safeShellArg = regexp.MustCompile(`^[a-zA-Z0-9_@%+=:,./-]+$`)

// shellQuote single-quotes an argument unless it is obviously safe.
func shellQuote(arg string) string {
	if arg == "" {
		return "''"
	}
	if safeShellArg.MatchString(arg) {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'"'"'`) + "'"
}
