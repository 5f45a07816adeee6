package tmux

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultBufferLines is how much scrollback a capture includes when the
// caller does not say otherwise.
const DefaultBufferLines = 50

// captureCacheTTL is deliberately shorter than half the minimum sensible
// poll interval so the monitor never reads the same snapshot twice, while
// a status handler polling at the same moment still reuses it.
const captureCacheTTL = 200 * time.Millisecond

type captureEntry struct {
	lines    []string
	maxLines int
	at       time.Time
}

// serves reports whether a cached capture can answer a request for up to
// maxLines lines, and returns the trimmed view if so.
func (e captureEntry) serves(maxLines int) ([]string, bool) {
	if e.maxLines < maxLines {
		return nil, false
	}
	lines := e.lines
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines, true
}

type captureState struct {
	captureSf singleflight.Group
	cacheMu   sync.RWMutex
	captures  map[WindowHandle]captureEntry
}

// CaptureWindow returns the most recent maxLines lines of a window,
// point in time, wrapped lines joined. Concurrent callers for the same
// window share one capture-pane subprocess.
//
// Error contract: ErrWindowUnavailable when the window or session is
// gone, ErrCaptureTimeout when tmux does not answer in time. Both leave
// the window's cached snapshot untouched.
func (s *Session) CaptureWindow(window WindowHandle, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		maxLines = DefaultBufferLines
	}

	s.cacheMu.RLock()
	if entry, ok := s.captures[window]; ok && time.Since(entry.at) < captureCacheTTL {
		if lines, ok := entry.serves(maxLines); ok {
			s.cacheMu.RUnlock()
			return lines, nil
		}
	}
	s.cacheMu.RUnlock()

	key := fmt.Sprintf("capture:%d:%d", window, maxLines)
	v, err, _ := s.captureSf.Do(key, func() (interface{}, error) {
		// Double-check inside singleflight
		s.cacheMu.RLock()
		if entry, ok := s.captures[window]; ok && time.Since(entry.at) < captureCacheTTL {
			if lines, ok := entry.serves(maxLines); ok {
				s.cacheMu.RUnlock()
				return lines, nil
			}
		}
		s.cacheMu.RUnlock()

		lines, err := s.captureOnce(window, maxLines)
		if err != nil {
			return nil, err
		}

		s.cacheMu.Lock()
		if s.captures == nil {
			s.captures = make(map[WindowHandle]captureEntry)
		}
		s.captures[window] = captureEntry{lines: lines, maxLines: maxLines, at: time.Now()}
		s.cacheMu.Unlock()

		return lines, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// captureOnce runs one capture-pane subprocess. -p prints to stdout, -J
// joins wrapped lines so a resize does not change the fingerprint, and
// -S reaches back into scrollback so a fast-scrolling game still shows
// its prompt.
func (s *Session) captureOnce(window WindowHandle, maxLines int) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tmux", "capture-pane",
		"-p", "-J",
		"-t", s.target(window),
		"-S", fmt.Sprintf("-%d", maxLines))
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrCaptureTimeout
		}
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}
		return nil, classifyTargetError(err, stderr)
	}

	lines := strings.Split(strings.TrimRight(string(output), "\n"), "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines, nil
}

// invalidateCapture drops the cached snapshot for a window, called after
// anything that writes to it.
func (s *Session) invalidateCapture(window WindowHandle) {
	s.cacheMu.Lock()
	delete(s.captures, window)
	s.cacheMu.Unlock()
}

// WindowDead reports whether the pane process in a window has exited.
// Only meaningful because Create sets remain-on-exit, which keeps dead
// panes around instead of closing the window.
func (s *Session) WindowDead(window WindowHandle) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tmux", "list-panes", "-t", s.target(window), "-F", "#{pane_dead}")
	output, err := cmd.Output()
	if err != nil {
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}
		return false, classifyTargetError(err, stderr)
	}

	flag := strings.TrimSpace(string(output))
	if idx := strings.IndexByte(flag, '\n'); idx >= 0 {
		flag = flag[:idx]
	}
	return flag == "1", nil
}

// RespawnWindow kills whatever runs in the window and starts command in
// its place. Scrollback is cleared first so the monitor does not
// fingerprint the dead run's output, and the old process tree is
// verified dead afterwards.
func (s *Session) RespawnWindow(window WindowHandle, command string) error {
	if !s.Exists() {
		return fmt.Errorf("%w: session %s", ErrWindowUnavailable, s.Name)
	}
	s.invalidateCapture(window)

	target := s.target(window)
	_, oldPIDs := s.processTree(target)
	if len(oldPIDs) > 0 {
		tmuxLog.Debug("pre_respawn_process_tree", slog.String("target", target), slog.Any("pids", oldPIDs))
	}

	if clearOut, clearErr := exec.Command("tmux", "clear-history", "-t", target).CombinedOutput(); clearErr != nil {
		tmuxLog.Debug("clear_history_failed", slog.String("error", clearErr.Error()), slog.String("output", string(clearOut)))
	}

	args := []string{"respawn-pane", "-k", "-t", target}
	if command != "" {
		// Interactive shell so user aliases still resolve. respawn-pane
		// runs its command directly, without loading rc files.
		shell := os.Getenv("SHELL")
		if shell == "" || strings.Contains(command, "$(") {
			shell = "/bin/bash"
		}
		args = append(args, fmt.Sprintf("%s -ic %q", shell, command))
	}

	output, err := exec.Command("tmux", args...).CombinedOutput()
	if err != nil {
		return classifyTargetError(err, string(output))
	}

	// Respawn sometimes reuses the pane PID slot; never kill the fresh one
	newPanePID, _ := s.processTree(target)
	if len(oldPIDs) > 0 {
		go s.ensureProcessesDead(oldPIDs, newPanePID)
	}

	tmuxLog.Info("window_respawned", slog.String("target", target), slog.String("command", command))
	return nil
}

// processTree returns the pane PID for a target plus all of its
// descendants, walked breadth-first with pgrep.
func (s *Session) processTree(target string) (panePID int, allPIDs []int) {
	out, err := exec.Command("tmux", "list-panes", "-t", target, "-F", "#{pane_pid}").Output()
	if err != nil {
		return 0, nil
	}
	pidStr := strings.TrimSpace(string(out))
	if idx := strings.IndexByte(pidStr, '\n'); idx >= 0 {
		pidStr = pidStr[:idx]
	}
	panePID, err = strconv.Atoi(pidStr)
	if err != nil {
		return 0, nil
	}

	allPIDs = []int{panePID}
	queue := []int{panePID}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		pgrepOut, err := exec.Command("pgrep", "-P", strconv.Itoa(parent)).Output()
		if err != nil {
			continue
		}
		for _, line := range strings.Split(strings.TrimSpace(string(pgrepOut)), "\n") {
			if pid, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && pid > 0 {
				allPIDs = append(allPIDs, pid)
				queue = append(queue, pid)
			}
		}
	}
	return panePID, allPIDs
}

// isKnownProcess guards against PID reuse before we escalate signals:
// only processes that look like something we spawned get killed.
func isKnownProcess(pid int) bool {
	out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "comm=").Output()
	if err != nil {
		return false // already gone
	}
	name := strings.ToLower(strings.TrimSpace(string(out)))
	for _, known := range []string{"claude", "codex", "aider", "node", "npm", "python", "zsh", "bash", "sh"} {
		if strings.Contains(name, known) {
			return true
		}
	}
	return false
}

// ensureProcessesDead escalates SIGTERM to SIGKILL for pane processes
// that survived kill-session or respawn-pane. Some agent CLIs ignore the
// SIGHUP tmux sends and keep burning CPU as orphans.
func (s *Session) ensureProcessesDead(oldPIDs []int, newPanePID int) {
	if len(oldPIDs) == 0 {
		return
	}

	// Give SIGHUP a moment to land
	time.Sleep(500 * time.Millisecond)

	var survivors []int
	for _, pid := range oldPIDs {
		if pid == newPanePID {
			continue
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			continue
		}
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			continue // already dead
		}
		if !isKnownProcess(pid) {
			tmuxLog.Debug("pid_not_ours_skipping", slog.Int("pid", pid))
			continue
		}
		survivors = append(survivors, pid)
	}
	if len(survivors) == 0 {
		return
	}

	tmuxLog.Info("survivors_sending_sigterm", slog.Int("count", len(survivors)), slog.Any("pids", survivors))
	for _, pid := range survivors {
		if proc, err := os.FindProcess(pid); err == nil {
			_ = proc.Signal(syscall.SIGTERM)
		}
	}

	time.Sleep(1 * time.Second)

	var stubborn []int
	for _, pid := range survivors {
		proc, err := os.FindProcess(pid)
		if err != nil {
			continue
		}
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			continue
		}
		stubborn = append(stubborn, pid)
	}
	if len(stubborn) == 0 {
		return
	}

	tmuxLog.Info("stubborn_sending_sigkill", slog.Int("count", len(stubborn)), slog.Any("pids", stubborn))
	for _, pid := range stubborn {
		if proc, err := os.FindProcess(pid); err == nil {
			_ = proc.Signal(syscall.SIGKILL)
		}
	}
}
