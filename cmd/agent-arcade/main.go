package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const Version = "0.3.0"

// init sets up color profile for consistent terminal colors across environments
func init() {
	initColorProfile()
}

// initColorProfile configures lipgloss color profile based on terminal capabilities.
// Prefers TrueColor for best visuals, falls back to ANSI256 for compatibility.
func initColorProfile() {
	// Allow user override via environment variable
	// AGENT_ARCADE_COLOR: truecolor, 256, 16, none
	if colorEnv := os.Getenv("AGENT_ARCADE_COLOR"); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		case "256", "ansi256":
			lipgloss.SetColorProfile(termenv.ANSI256)
			return
		case "16", "ansi", "basic":
			lipgloss.SetColorProfile(termenv.ANSI)
			return
		case "none", "off", "ascii":
			lipgloss.SetColorProfile(termenv.Ascii)
			return
		}
	}

	// Explicit TrueColor support
	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	// Known TrueColor-capable terminals
	term := os.Getenv("TERM")
	trueColorTerms := []string{
		"xterm-256color",
		"screen-256color",
		"tmux-256color",
		"xterm-direct",
		"alacritty",
		"kitty",
		"wezterm",
	}
	for _, t := range trueColorTerms {
		if strings.Contains(term, t) || term == t {
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		}
	}

	// Common terminal emulators that support TrueColor without saying so
	if os.Getenv("WT_SESSION") != "" || // Windows Terminal
		os.Getenv("ITERM_SESSION_ID") != "" || // iTerm2
		os.Getenv("TERMINAL_EMULATOR") != "" || // JetBrains terminals
		os.Getenv("KONSOLE_VERSION") != "" { // Konsole
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	// Fallback: ANSI256 works in SSH, basic terminals, and older emulators
	lipgloss.SetColorProfile(termenv.ANSI256)
}

func main() {
	args := os.Args[1:]

	if len(args) == 0 {
		printHelp()
		return
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Printf("Agent Arcade v%s\n", Version)
	case "help", "--help", "-h":
		printHelp()
	case "play":
		handlePlay(args[1:])
	case "try":
		handleTry(args[1:])
	case "peek":
		handlePeek(args[1:])
	case "agents":
		handleAgents(args[1:])
	case "games":
		handleGames(args[1:])
	case "status":
		handleStatus(args[1:])
	case "stats":
		handleStats(args[1:])
	case "attach":
		handleAttach(args[1:])
	case "kill":
		handleKill(args[1:])
	case "config":
		handleConfig(args[1:])
	case "web":
		handleWeb(args[1:])
	case "logs":
		handleLogs(args[1:])
	case "update":
		handleUpdate(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("Agent Arcade - run an AI agent and a terminal game side by side")
	fmt.Println()
	fmt.Println("Usage: agent-arcade <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  play      Start a play session (agent in window 0, game in window 1)")
	fmt.Println("  try       Start a play in a scratch playground folder")
	fmt.Println("  agents    List available agent profiles")
	fmt.Println("  games     List configured games")
	fmt.Println("  status    Show running arcade sessions")
	fmt.Println("  stats     Show play history and per-game totals")
	fmt.Println("  peek      Show a running session's output without attaching")
	fmt.Println("  attach    Reattach to a running session")
	fmt.Println("  kill      Kill a running session")
	fmt.Println("  config    Show or initialize the configuration file")
	fmt.Println("  web       Run the status server standalone")
	fmt.Println("  logs      Show recent debug log lines")
	fmt.Println("  update    Check for and install a newer release")
	fmt.Println("  version   Print the version")
	fmt.Println("  help      Show this help")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  agent-arcade play                       # Pick agent and game interactively")
	fmt.Println("  agent-arcade play -agent claude -game nethack")
	fmt.Println("  agent-arcade try redis-cache            # Same, in a dated scratch folder")
	fmt.Println("  agent-arcade peek claude -copy          # Capture agent output to clipboard")
	fmt.Println("  agent-arcade stats -json")
	fmt.Println("  agent-arcade attach arcade_claude_0a1b2c3d")
	fmt.Println()
	fmt.Println("While attached: Ctrl+Q detaches and ends the play.")
	fmt.Println("Run 'agent-arcade <command> -h' for command-specific options.")
}
