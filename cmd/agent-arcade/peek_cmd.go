package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/asheshgoplani/agent-arcade/internal/clipboard"
	"github.com/asheshgoplani/agent-arcade/internal/tmux"
)

// handlePeek prints the recent output of a running session's agent
// window without attaching. With -copy the capture also lands on the
// clipboard.
func handlePeek(args []string) {
	fs := flag.NewFlagSet("peek", flag.ExitOnError)
	lines := fs.Int("lines", tmux.DefaultBufferLines, "How many lines of scrollback to capture")
	gameWindow := fs.Bool("game", false, "Capture the game window instead of the agent")
	copyFlag := fs.Bool("copy", false, "Also copy the capture to the clipboard")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	quiet := fs.Bool("quiet", false, "Minimal output")

	fs.Usage = func() {
		fmt.Println("Usage: agent-arcade peek <session> [options]")
		fmt.Println()
		fmt.Println("Show the last lines of a running session's agent window without")
		fmt.Println("attaching to it. The session name may be abbreviated as long as")
		fmt.Println("it is unambiguous.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  agent-arcade peek claude")
		fmt.Println("  agent-arcade peek claude -lines 200")
		fmt.Println("  agent-arcade peek claude -game     # The game window instead")
		fmt.Println("  agent-arcade peek claude -copy     # Put the capture on the clipboard")
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, *quiet)
	requireTmux(out)

	names, err := tmux.ListSessions()
	if err != nil {
		out.Error(err.Error(), ErrCodeTmuxUnavailable)
		os.Exit(1)
	}

	name, errMsg, code := resolveSessionName(fs.Arg(0), names)
	if errMsg != "" {
		out.Error(errMsg, code)
		os.Exit(1)
	}

	window := tmux.AgentWindow
	windowName := "agent"
	if *gameWindow {
		window = tmux.GameWindow
		windowName = "game"
	}

	sess := tmux.ReconnectSession(name, sessionDisplayName(name), "")
	captured, err := sess.CaptureWindow(window, *lines)
	if err != nil {
		out.Error(err.Error(), ErrCodeTmuxUnavailable)
		os.Exit(1)
	}

	// capture-pane already drops colors; StripANSI catches the cursor
	// and OSC sequences full-screen agents leave behind.
	content := tmux.StripANSI(strings.Join(captured, "\n"))

	var copied *clipboard.CopyResult
	if *copyFlag {
		res, copyErr := clipboard.Copy(content, supportsOSC52())
		if copyErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: copy failed: %v\n", copyErr)
		} else {
			copied = res
		}
	}

	data := map[string]interface{}{
		"session": name,
		"window":  windowName,
		"lines":   len(captured),
		"content": content,
	}
	if copied != nil {
		data["copied"] = map[string]interface{}{
			"method": copied.Method,
			"bytes":  copied.ByteSize,
		}
	}

	human := content
	if human != "" && !strings.HasSuffix(human, "\n") {
		human += "\n"
	}
	out.Print(human, data)

	if copied != nil && !*jsonOutput && !*quiet {
		fmt.Fprintf(os.Stderr, "%s Copied %d line(s), %d bytes (%s)\n",
			successSymbol, copied.LineCount, copied.ByteSize, copied.Method)
	}
}

// supportsOSC52 guesses whether the terminal honors the OSC 52 clipboard
// escape. There is no way to ask, so this goes by terminal identity.
func supportsOSC52() bool {
	if os.Getenv("ITERM_SESSION_ID") != "" || os.Getenv("WT_SESSION") != "" {
		return true
	}
	term := os.Getenv("TERM")
	for _, known := range []string{"xterm", "tmux", "screen", "kitty", "alacritty", "wezterm", "foot"} {
		if strings.HasPrefix(term, known) {
			return true
		}
	}
	return false
}
