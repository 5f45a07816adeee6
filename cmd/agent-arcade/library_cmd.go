package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/asheshgoplani/agent-arcade/internal/config"
	"github.com/asheshgoplani/agent-arcade/internal/tmux"
)

// Table column widths for listing output
const (
	tableColName    = 14
	tableColCommand = 28
)

type agentListJSON struct {
	Name          string   `json:"name"`
	Command       string   `json:"command"`
	Args          []string `json:"args,omitempty"`
	Detection     string   `json:"detection"`
	ReadyPatterns []string `json:"readyPatterns,omitempty"`
	Default       bool     `json:"default,omitempty"`
}

// handleAgents lists every agent profile: built-ins plus [agents.*]
// config entries, with the default marked.
func handleAgents(args []string) {
	fs := flag.NewFlagSet("agents", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Println("Usage: agent-arcade agents [options]")
		fmt.Println()
		fmt.Println("List available agent profiles.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}

	defaultAgent := cfg.GetDefaultAgent()
	profiles := cfg.AgentProfiles()

	var rows []agentListJSON
	for _, p := range profiles {
		rows = append(rows, agentListJSON{
			Name:          p.Name,
			Command:       p.Command,
			Args:          p.Args,
			Detection:     string(p.Detection),
			ReadyPatterns: p.ReadyPatterns,
			Default:       strings.EqualFold(p.Name, defaultAgent),
		})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-*s %-9s %-*s %s\n", tableColName, "AGENT", "DETECTION", tableColCommand, "COMMAND", "PATTERNS")
	for _, row := range rows {
		name := row.Name
		if row.Default {
			name += " *"
		}
		command := row.Command
		if len(row.Args) > 0 {
			command += " " + strings.Join(row.Args, " ")
		}
		if command == "" {
			command = "(shell)"
		}
		fmt.Fprintf(&b, "%-*s %-9s %-*s %d\n",
			tableColName, truncateCell(name, tableColName),
			row.Detection,
			tableColCommand, truncateCell(command, tableColCommand),
			len(row.ReadyPatterns))
	}
	b.WriteString("\n* default agent (set default_agent in config.toml to change)\n")

	out.Print(b.String(), map[string]interface{}{"agents": rows})
}

type gameListJSON struct {
	Name        string   `json:"name"`
	Command     string   `json:"command"`
	Args        []string `json:"args,omitempty"`
	Description string   `json:"description,omitempty"`
	Default     bool     `json:"default,omitempty"`
}

// handleGames lists the [games.*] config entries.
func handleGames(args []string) {
	fs := flag.NewFlagSet("games", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Println("Usage: agent-arcade games [options]")
		fmt.Println()
		fmt.Println("List games configured for the game window.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}

	names := cfg.GameNames()
	if len(names) == 0 {
		if *jsonOutput {
			out.Print("", map[string]interface{}{"games": []gameListJSON{}})
			return
		}
		configPath, _ := config.Path()
		fmt.Println("No games configured.")
		fmt.Println()
		fmt.Printf("Add [games.<name>] sections to %s, for example:\n", configPath)
		fmt.Println()
		fmt.Println("  [games.nethack]")
		fmt.Println("  command = \"nethack\"")
		fmt.Println("  description = \"the dungeon crawl\"")
		return
	}

	var rows []gameListJSON
	for _, name := range names {
		def := cfg.Games[name]
		rows = append(rows, gameListJSON{
			Name:        name,
			Command:     def.Command,
			Args:        def.Args,
			Description: def.Description,
			Default:     name == cfg.DefaultGame,
		})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-*s %-*s %s\n", tableColName, "GAME", tableColCommand, "COMMAND", "DESCRIPTION")
	for _, row := range rows {
		name := row.Name
		if row.Default {
			name += " *"
		}
		fmt.Fprintf(&b, "%-*s %-*s %s\n",
			tableColName, truncateCell(name, tableColName),
			tableColCommand, truncateCell(tmux.CommandLine(row.Command, row.Args), tableColCommand),
			row.Description)
	}

	out.Print(b.String(), map[string]interface{}{"games": rows})
}
