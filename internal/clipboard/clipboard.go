// Package clipboard copies text to the system clipboard. It shells out
// to the platform's native tool when one exists and falls back to the
// OSC 52 escape sequence for terminals that support it, which covers
// SSH sessions with no clipboard binary on the remote side.
package clipboard

import (
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/asheshgoplani/agent-arcade/internal/platform"
)

// CopyResult describes a completed copy.
type CopyResult struct {
	Method    string // tool or mechanism used: "pbcopy", "xclip", "osc52", ...
	ByteSize  int
	LineCount int
}

// Copy puts text on the system clipboard. The fallback chain is native
// tool first, then OSC 52 when allowOSC52 says the terminal handles it.
func Copy(text string, allowOSC52 bool) (*CopyResult, error) {
	if text == "" {
		return nil, fmt.Errorf("no content to copy")
	}

	result := &CopyResult{
		ByteSize:  len(text),
		LineCount: countLines(text),
	}

	method, err := nativeCopy(text)
	if err == nil {
		result.Method = method
		return result, nil
	}

	if allowOSC52 {
		if err := oscCopy(text); err != nil {
			return nil, fmt.Errorf("OSC 52 clipboard failed: %w", err)
		}
		result.Method = "osc52"
		return result, nil
	}

	return nil, fmt.Errorf("no clipboard method available (install pbcopy, xclip, xsel, or wl-copy)")
}

// nativeCopy pipes text into the platform's clipboard tool and returns
// the tool's name.
func nativeCopy(text string) (string, error) {
	switch platform.Detect() {
	case platform.MacOS:
		return "pbcopy", pipeTo(text, "pbcopy")

	case platform.WSL1, platform.WSL2:
		return "clip.exe", pipeTo(text, "clip.exe")

	case platform.Linux:
		// Wayland before X11
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			if path, err := exec.LookPath("wl-copy"); err == nil {
				return "wl-copy", pipeTo(text, path)
			}
		}
		if path, err := exec.LookPath("xclip"); err == nil {
			return "xclip", pipeTo(text, path, "-selection", "clipboard")
		}
		if path, err := exec.LookPath("xsel"); err == nil {
			return "xsel", pipeTo(text, path, "--clipboard", "--input")
		}
		return "", fmt.Errorf("no clipboard command found on Linux")

	default:
		return "", fmt.Errorf("unsupported platform: %s", platform.Detect())
	}
}

func pipeTo(text, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}

// oscCopy writes the OSC 52 escape sequence straight to the terminal.
func oscCopy(text string) error {
	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	seq := generateOSC52(encoded, os.Getenv("TMUX") != "")

	// /dev/tty, not stdout: the caller may be piping output elsewhere
	tty, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("cannot open /dev/tty: %w", err)
	}
	defer tty.Close()

	_, err = tty.WriteString(seq)
	return err
}

// generateOSC52 builds the OSC 52 sequence, wrapped in a DCS passthrough
// when running inside tmux so tmux forwards it to the outer terminal.
func generateOSC52(base64Content string, inTmux bool) string {
	osc := "\x1b]52;c;" + base64Content + "\x07"
	if inTmux {
		return "\x1bPtmux;\x1b" + osc + "\x1b\\"
	}
	return osc
}

// countLines counts lines in text. A trailing newline does not add an
// extra line.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
