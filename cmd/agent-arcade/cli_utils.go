package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/asheshgoplani/agent-arcade/internal/config"
	"github.com/asheshgoplani/agent-arcade/internal/logging"
	"github.com/asheshgoplani/agent-arcade/internal/tmux"
)

// normalizeArgs reorders args so flags come before positional arguments.
// Go's flag package stops parsing at the first non-flag argument, which
// means "attach my-session -json" silently ignores -json. This function
// moves all flags to the front so they get parsed correctly.
func normalizeArgs(fs *flag.FlagSet, args []string) []string {
	// Build set of known boolean flags (don't need a value argument)
	boolFlags := make(map[string]bool)
	fs.VisitAll(func(f *flag.Flag) {
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			boolFlags[f.Name] = true
		}
	})

	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		// "--" terminates flag processing
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}

		if strings.HasPrefix(arg, "-") && arg != "-" {
			flags = append(flags, arg)

			name := strings.TrimLeft(arg, "-")

			// --flag=value carries its value, nothing to move
			if strings.Contains(name, "=") {
				continue
			}

			// Non-bool flags consume the next arg as their value
			if !boolFlags[name] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, arg)
		}
	}
	return append(flags, positional...)
}

// CLIOutput handles consistent output formatting across all CLI commands
type CLIOutput struct {
	jsonMode  bool
	quietMode bool
}

// NewCLIOutput creates a new CLI output handler
func NewCLIOutput(jsonMode, quietMode bool) *CLIOutput {
	return &CLIOutput{
		jsonMode:  jsonMode,
		quietMode: quietMode,
	}
}

// Success prints a success message or JSON response
func (c *CLIOutput) Success(message string, data interface{}) {
	if c.quietMode {
		return
	}
	if c.jsonMode {
		c.printJSON(data)
		return
	}
	fmt.Printf("%s %s\n", successSymbol, message)
}

// Error prints an error message or JSON error response
func (c *CLIOutput) Error(message string, code string) {
	if c.jsonMode {
		c.printJSON(map[string]interface{}{
			"success": false,
			"error":   message,
			"code":    code,
		})
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}

// Print prints data (human-readable or JSON)
func (c *CLIOutput) Print(humanOutput string, jsonData interface{}) {
	if c.quietMode {
		return
	}
	if c.jsonMode {
		c.printJSON(jsonData)
		return
	}
	fmt.Print(humanOutput)
}

// printJSON marshals and prints JSON data
func (c *CLIOutput) printJSON(data interface{}) {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to format JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))
}

// Symbols for human-readable output
const (
	successSymbol = "✓"
	bulletSymbol  = "•"
)

// Error codes
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAmbiguous        = "AMBIGUOUS"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeTmuxUnavailable  = "TMUX_UNAVAILABLE"
	ErrCodeLaunchFailed     = "LAUNCH_FAILED"
	ErrCodeStorage          = "STORAGE_ERROR"
)

// setupLogging initializes the debug log under the arcade data directory.
// Callers must defer logging.Shutdown(). Without AGENT_ARCADE_DEBUG the
// log output is discarded so it cannot interfere with the attached
// terminal.
func setupLogging(cfg *config.Config) {
	debug := os.Getenv("AGENT_ARCADE_DEBUG") != ""
	dir, err := config.Dir()
	if err != nil {
		dir = ""
	}
	logging.Init(cfg.Logs.LoggingConfig(dir, debug))
}

// requireTmux exits with a friendly message when tmux is missing.
// Everything this tool does needs a working tmux binary.
func requireTmux(out *CLIOutput) {
	if err := tmux.IsTmuxAvailable(); err != nil {
		out.Error(err.Error(), ErrCodeTmuxUnavailable)
		if !out.jsonMode {
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, "Agent Arcade requires tmux. Install with:")
			fmt.Fprintln(os.Stderr, "  brew install tmux        # macOS")
			fmt.Fprintln(os.Stderr, "  apt install tmux         # Debian/Ubuntu")
		}
		os.Exit(1)
	}
}

// insideTmux reports whether this process already runs under tmux.
// Attaching from inside tmux nests sessions, which tmux rejects.
func insideTmux() bool {
	return os.Getenv("TMUX") != ""
}

// resolveSessionName matches an identifier against running session names.
// Exact match wins; otherwise a unique substring match is accepted.
func resolveSessionName(identifier string, names []string) (string, string, string) {
	if identifier == "" {
		return "", "session name is required", ErrCodeNotFound
	}

	for _, name := range names {
		if name == identifier {
			return name, "", ""
		}
	}

	var matches []string
	for _, name := range names {
		if strings.Contains(name, identifier) {
			matches = append(matches, name)
		}
	}

	if len(matches) == 1 {
		return matches[0], "", ""
	}
	if len(matches) > 1 {
		return "", fmt.Sprintf("'%s' matches multiple sessions:\n  - %s\nUse the full name.",
			identifier, strings.Join(matches, "\n  - ")), ErrCodeAmbiguous
	}

	return "", fmt.Sprintf("session '%s' not found", identifier), ErrCodeNotFound
}

// sessionDisplayName strips the arcade prefix and the random suffix from
// a tmux session name, e.g. "arcade_claude_0a1b2c3d" -> "claude".
func sessionDisplayName(tmuxName string) string {
	name := strings.TrimPrefix(tmuxName, tmux.SessionPrefix)
	if idx := strings.LastIndex(name, "_"); idx > 0 {
		name = name[:idx]
	}
	return name
}

// formatDuration renders a duration as "1h 2m", "5m 10s", or "42s".
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)

	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// formatAgo renders how long ago a timestamp was, coarsely.
func formatAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// truncateCell fits a table cell to width, ellipsizing long values.
func truncateCell(s string, width int) string {
	if len(s) <= width {
		return s
	}
	if width <= 1 {
		return s[:width]
	}
	return s[:width-1] + "…"
}
