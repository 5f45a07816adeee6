package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asheshgoplani/agent-arcade/internal/config"
	"github.com/asheshgoplani/agent-arcade/internal/statedb"
)

type playStatJSON struct {
	ID           int64  `json:"id"`
	Agent        string `json:"agent"`
	Game         string `json:"game"`
	StartedAt    string `json:"startedAt"`
	DurationSecs int64  `json:"durationSecs"`
	ReadyCount   int    `json:"readyCount"`
}

type gameStatJSON struct {
	Game          string `json:"game"`
	PlayCount     int    `json:"playCount"`
	TotalPlaySecs int64  `json:"totalPlaySecs"`
	LastPlayed    string `json:"lastPlayed"`
}

type agentStatJSON struct {
	Agent         string `json:"agent"`
	PlayCount     int    `json:"playCount"`
	TotalPlaySecs int64  `json:"totalPlaySecs"`
	ReadyCount    int    `json:"readyCount"`
	LastPlayed    string `json:"lastPlayed"`
}

// handleStats prints the play history: recent plays plus per-game and
// per-agent totals.
func handleStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	limit := fs.Int("limit", 10, "Recent plays to show")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Println("Usage: agent-arcade stats [options]")
		fmt.Println()
		fmt.Println("Show play history and totals recorded by past plays.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}
	if *limit < 1 {
		fmt.Fprintln(os.Stderr, "Error: -limit must be a positive integer")
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)

	dir, err := config.Dir()
	if err != nil {
		out.Error(err.Error(), ErrCodeStorage)
		os.Exit(1)
	}
	dbPath := filepath.Join(dir, statedb.DBFileName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		out.Print("No plays recorded yet. Run 'agent-arcade play' first.\n", map[string]interface{}{
			"plays": []playStatJSON{}, "games": []gameStatJSON{}, "agents": []agentStatJSON{},
		})
		return
	}

	db, err := statedb.Open(dbPath)
	if err != nil {
		out.Error(fmt.Sprintf("open play history: %v", err), ErrCodeStorage)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		out.Error(fmt.Sprintf("open play history: %v", err), ErrCodeStorage)
		os.Exit(1)
	}

	plays, err := db.RecentPlays(*limit)
	if err != nil {
		out.Error(fmt.Sprintf("read plays: %v", err), ErrCodeStorage)
		os.Exit(1)
	}
	gameStats, err := db.GameStats()
	if err != nil {
		out.Error(fmt.Sprintf("read game stats: %v", err), ErrCodeStorage)
		os.Exit(1)
	}
	agentStats, err := db.AgentStats()
	if err != nil {
		out.Error(fmt.Sprintf("read agent stats: %v", err), ErrCodeStorage)
		os.Exit(1)
	}

	playRows := make([]playStatJSON, 0, len(plays))
	for _, p := range plays {
		playRows = append(playRows, playStatJSON{
			ID:           p.ID,
			Agent:        p.Agent,
			Game:         p.Game,
			StartedAt:    p.StartedAt.UTC().Format(time.RFC3339),
			DurationSecs: p.DurationSecs,
			ReadyCount:   p.ReadyCount,
		})
	}
	gameRows := make([]gameStatJSON, 0, len(gameStats))
	for _, g := range gameStats {
		gameRows = append(gameRows, gameStatJSON{
			Game:          g.Game,
			PlayCount:     g.PlayCount,
			TotalPlaySecs: g.TotalPlaySecs,
			LastPlayed:    g.LastPlayed.UTC().Format(time.RFC3339),
		})
	}
	agentRows := make([]agentStatJSON, 0, len(agentStats))
	for _, a := range agentStats {
		agentRows = append(agentRows, agentStatJSON{
			Agent:         a.Agent,
			PlayCount:     a.PlayCount,
			TotalPlaySecs: a.TotalPlaySecs,
			ReadyCount:    a.ReadyCount,
			LastPlayed:    a.LastPlayed.UTC().Format(time.RFC3339),
		})
	}

	out.Print(renderStats(playRows, gameRows, agentRows), map[string]interface{}{
		"plays":  playRows,
		"games":  gameRows,
		"agents": agentRows,
	})
}

func renderStats(plays []playStatJSON, games []gameStatJSON, agents []agentStatJSON) string {
	var b strings.Builder

	if len(plays) == 0 {
		b.WriteString("No plays recorded yet. Run 'agent-arcade play' first.\n")
		return b.String()
	}

	b.WriteString("Recent plays\n")
	fmt.Fprintf(&b, "  %-*s %-*s %-10s %-9s %s\n",
		tableColName, "AGENT", tableColName, "GAME", "WHEN", "DURATION", "READY")
	for _, p := range plays {
		started, _ := time.Parse(time.RFC3339, p.StartedAt)
		fmt.Fprintf(&b, "  %-*s %-*s %-10s %-9s %d\n",
			tableColName, truncateCell(p.Agent, tableColName),
			tableColName, truncateCell(p.Game, tableColName),
			formatAgo(started),
			formatDuration(time.Duration(p.DurationSecs)*time.Second),
			p.ReadyCount)
	}

	if len(games) > 0 {
		b.WriteString("\nBy game\n")
		fmt.Fprintf(&b, "  %-*s %-6s %-10s %s\n", tableColName, "GAME", "PLAYS", "TOTAL", "LAST")
		for _, g := range games {
			last, _ := time.Parse(time.RFC3339, g.LastPlayed)
			fmt.Fprintf(&b, "  %-*s %-6d %-10s %s\n",
				tableColName, truncateCell(g.Game, tableColName),
				g.PlayCount,
				formatDuration(time.Duration(g.TotalPlaySecs)*time.Second),
				formatAgo(last))
		}
	}

	if len(agents) > 0 {
		b.WriteString("\nBy agent\n")
		fmt.Fprintf(&b, "  %-*s %-6s %-10s %-6s %s\n", tableColName, "AGENT", "PLAYS", "TOTAL", "READY", "LAST")
		for _, a := range agents {
			last, _ := time.Parse(time.RFC3339, a.LastPlayed)
			fmt.Fprintf(&b, "  %-*s %-6d %-10s %-6d %s\n",
				tableColName, truncateCell(a.Agent, tableColName),
				a.PlayCount,
				formatDuration(time.Duration(a.TotalPlaySecs)*time.Second),
				a.ReadyCount,
				formatAgo(last))
		}
	}

	return b.String()
}
