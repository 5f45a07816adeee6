package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/asheshgoplani/agent-arcade/internal/config"
	"github.com/asheshgoplani/agent-arcade/internal/playground"
)

// handleTry starts a play in a playground area: a dated scratch folder
// under the playground directory, found by fuzzy match or created on the
// spot. The same short query lands in the same folder tomorrow.
func handleTry(args []string) {
	fs := flag.NewFlagSet("try", flag.ExitOnError)
	agentFlag := fs.String("agent", "", "Agent profile to launch (e.g. claude, aider)")
	agentShort := fs.String("a", "", "Agent profile (short)")
	gameFlag := fs.String("game", "", "Game for the second window (a [games.*] name)")
	gameShort := fs.String("g", "", "Game (short)")
	noGame := fs.Bool("no-game", false, "Keep a plain shell in the game window")
	webFlag := fs.Bool("web", false, "Serve play status over HTTP while playing")
	listFlag := fs.Bool("list", false, "List playground areas instead of playing")
	listShort := fs.Bool("l", false, "List playground areas (short)")
	noPlay := fs.Bool("no-play", false, "Find or create the area but do not start a play")
	jsonOutput := fs.Bool("json", false, "Output as JSON (with -list or -no-play)")
	quiet := fs.Bool("quiet", false, "Minimal output")

	fs.Usage = func() {
		fmt.Println("Usage: agent-arcade try <name> [options]")
		fmt.Println()
		fmt.Println("Play in a scratch folder. Finds an existing playground area by")
		fmt.Println("fuzzy match or creates a fresh dated one, then starts a play there.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  agent-arcade try redis-cache        # Create or reuse an area, start a play")
		fmt.Println("  agent-arcade try rds                # Fuzzy match finds redis-cache")
		fmt.Println("  agent-arcade try parser -a aider    # Aider in the parser area")
		fmt.Println("  agent-arcade try -list              # Show all areas")
		fmt.Println("  agent-arcade try -list redis        # Filter areas")
		fmt.Println("  agent-arcade try notes -no-play     # Just make the folder")
		fmt.Println()
		fmt.Println("Config (config.toml):")
		fmt.Println("  [playground]")
		fmt.Println("  dir = \"~/arcade-playground\"    # Where areas live")
		fmt.Println("  date_prefix = true             # Prefix new areas with YYYY-MM-DD-")
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, *quiet)

	agentSel := firstNonEmpty(*agentFlag, *agentShort)
	gameSel := firstNonEmpty(*gameFlag, *gameShort)
	if *noGame && gameSel != "" {
		out.Error("-no-game and -game are mutually exclusive", ErrCodeInvalidOperation)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}

	baseDir, err := cfg.Playground.GetDir()
	if err != nil {
		out.Error(err.Error(), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	if *listFlag || *listShort {
		listAreas(out, baseDir, fs.Arg(0))
		return
	}

	name := fs.Arg(0)
	if name == "" {
		fs.Usage()
		os.Exit(1)
	}

	area, created, err := playground.FindOrCreate(baseDir, name, cfg.Playground.GetDatePrefix())
	if err != nil {
		out.Error(err.Error(), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	action := "Found"
	if created {
		action = "Created"
	}

	if *noPlay {
		out.Print(fmt.Sprintf("%s %s\n", action, area.Path), map[string]interface{}{
			"action": strings.ToLower(action),
			"name":   area.Name,
			"path":   area.Path,
		})
		return
	}

	// Plays are interactive from here on; JSON mode only covers the
	// -list and -no-play answers.
	if !*quiet {
		fmt.Printf("%s %s\n", action, area.Path)
	}

	code := runPlay(NewCLIOutput(false, *quiet), cfg, playSpec{
		agent:   agentSel,
		game:    gameSel,
		noGame:  *noGame,
		workDir: area.Path,
		web:     *webFlag,
		quiet:   *quiet,
	})
	if code != 0 {
		os.Exit(code)
	}
}

// listAreas prints the playground areas, newest first, optionally
// filtered by a fuzzy query.
func listAreas(out *CLIOutput, baseDir, query string) {
	areas, err := playground.List(baseDir)
	if err != nil {
		out.Error(err.Error(), ErrCodeStorage)
		os.Exit(1)
	}
	if query != "" {
		areas = playground.FuzzyFind(areas, query)
	}

	type areaRow struct {
		Name     string `json:"name"`
		Date     string `json:"date,omitempty"`
		Path     string `json:"path"`
		Modified string `json:"modified"`
	}
	rows := make([]areaRow, 0, len(areas))
	for _, a := range areas {
		row := areaRow{
			Name:     a.Name,
			Path:     a.Path,
			Modified: a.ModTime.Format("2006-01-02 15:04"),
		}
		if a.HasDate {
			row.Date = a.Date.Format("2006-01-02")
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		msg := fmt.Sprintf("No playground areas in %s\n", baseDir)
		if query != "" {
			msg = fmt.Sprintf("No playground areas match %q\n", query)
		}
		out.Print(msg, map[string]interface{}{"areas": rows})
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Playground areas in %s:\n\n", baseDir)
	fmt.Fprintf(&b, "%-28s %-12s %s\n", "NAME", "DATE", "PATH")
	for _, row := range rows {
		date := row.Date
		if date == "" {
			date = "-"
		}
		fmt.Fprintf(&b, "%-28s %-12s %s\n", truncateCell(row.Name, 28), date, row.Path)
	}
	fmt.Fprintf(&b, "\n%d area(s).\n", len(rows))

	out.Print(b.String(), map[string]interface{}{"areas": rows})
}
