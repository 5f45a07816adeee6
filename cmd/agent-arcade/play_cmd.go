package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/asheshgoplani/agent-arcade/internal/arcade"
	"github.com/asheshgoplani/agent-arcade/internal/config"
	"github.com/asheshgoplani/agent-arcade/internal/logging"
	"github.com/asheshgoplani/agent-arcade/internal/statedb"
	"github.com/asheshgoplani/agent-arcade/internal/ui"
	"github.com/asheshgoplani/agent-arcade/internal/web"
)

// playSpec carries the resolved inputs for one play. Both the play and
// try commands build one of these and hand it to runPlay.
type playSpec struct {
	agent   string
	game    string
	noGame  bool
	workDir string
	web     bool
	quiet   bool
}

// handlePlay runs one play session: agent in window 0, game in window 1,
// the readiness monitor in between. Blocks until detach (Ctrl+Q) or
// signal, then tears the session down.
func handlePlay(args []string) {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	agentFlag := fs.String("agent", "", "Agent profile to launch (e.g. claude, aider)")
	agentShort := fs.String("a", "", "Agent profile (short)")
	gameFlag := fs.String("game", "", "Game for the second window (a [games.*] name)")
	gameShort := fs.String("g", "", "Game (short)")
	noGame := fs.Bool("no-game", false, "Keep a plain shell in the game window")
	dirFlag := fs.String("dir", "", "Working directory for both windows (defaults to current)")
	webFlag := fs.Bool("web", false, "Serve play status over HTTP while playing")
	quiet := fs.Bool("quiet", false, "Minimal output")

	fs.Usage = func() {
		fmt.Println("Usage: agent-arcade play [options]")
		fmt.Println()
		fmt.Println("Start an agent and a game in a two-window tmux session and watch")
		fmt.Println("the agent for readiness. Detach with Ctrl+Q to end the play.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  agent-arcade play                          # Pick interactively")
		fmt.Println("  agent-arcade play -agent claude -game nethack")
		fmt.Println("  agent-arcade play -a aider -no-game        # Just a shell next to aider")
		fmt.Println("  agent-arcade play -game pong -dir ~/hack")
		fmt.Println("  agent-arcade play -web                     # Status on http://127.0.0.1:8423")
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(false, *quiet)

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

	code := runPlay(out, cfg, playSpec{
		agent:   agentSel,
		game:    gameSel,
		noGame:  *noGame,
		workDir: *dirFlag,
		web:     *webFlag,
		quiet:   *quiet,
	})
	if code != 0 {
		os.Exit(code)
	}
}

// runPlay launches a play from spec and blocks until it ends. Returns a
// process exit code instead of exiting so deferred cleanup (state DB,
// web server, log flush) runs on every path.
func runPlay(out *CLIOutput, cfg *config.Config, spec playSpec) int {
	requireTmux(out)
	if insideTmux() {
		out.Error("cannot start a play inside tmux; detach first", ErrCodeInvalidOperation)
		return 1
	}

	setupLogging(cfg)
	defer logging.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.InitTheme(ui.ResolveTheme(cfg.GetTheme()))

	agentSel, gameSel := spec.agent, spec.game

	// Explicit flags and explicit config defaults both suppress the
	// picker; it appears only for genuinely unanswered choices on a TTY.
	skipGame := spec.noGame
	pickAgent := agentSel == "" && cfg.DefaultAgent == ""
	pickGame := gameSel == "" && !skipGame && cfg.DefaultGame == "" && len(cfg.Games) > 0
	if (pickAgent || pickGame) && term.IsTerminal(int(os.Stdin.Fd())) {
		sel, err := ui.RunPicker(ctx, cfg, pickAgent, pickGame)
		if err != nil {
			out.Error(err.Error(), ErrCodeLaunchFailed)
			return 1
		}
		if !sel.Accepted {
			fmt.Println("Cancelled.")
			return 0
		}
		if pickAgent {
			agentSel = sel.Agent
		}
		if pickGame {
			gameSel = sel.Game
			if gameSel == "" {
				skipGame = true
			}
		}
	}

	db := openStateDB(out)
	if db != nil {
		defer db.Close()
	}

	arc, err := arcade.New(arcade.Options{
		Config:        cfg,
		DB:            db,
		AgentSelector: agentSel,
		GameSelector:  gameSel,
		NoGame:        skipGame,
		WorkDir:       spec.workDir,
	})
	if err != nil {
		out.Error(err.Error(), ErrCodeLaunchFailed)
		return 1
	}

	if cfg.Web.Enabled || spec.web {
		srv := buildPlayWebServer(cfg, arc, db)
		go func() {
			if err := srv.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: web server failed: %v\n", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		if !spec.quiet {
			fmt.Printf("Web status on http://%s\n", srv.Addr())
		}
	}

	if !spec.quiet {
		game := arc.GameName()
		if game == "" {
			game = "a plain shell"
		}
		fmt.Printf("Starting %s with %s. Ctrl+Q detaches and ends the play.\n",
			arc.AgentName(), game)
	}

	if err := arc.Run(ctx); err != nil {
		out.Error(err.Error(), ErrCodeLaunchFailed)
		return 1
	}

	if !spec.quiet {
		fmt.Printf("\nPlay ended. %s was ready %d time(s).\n", arc.AgentName(), arc.ReadyCount())
	}
	return 0
}

// firstNonEmpty returns the first non-empty value, used to merge long and
// short flag spellings.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// openStateDB opens the play history database. Failures degrade to an
// unrecorded play, never a blocked one.
func openStateDB(out *CLIOutput) *statedb.StateDB {
	dir, err := config.Dir()
	if err != nil {
		return nil
	}
	db, err := statedb.Open(filepath.Join(dir, statedb.DBFileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: play history unavailable: %v\n", err)
		return nil
	}
	if err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: play history unavailable: %v\n", err)
		_ = db.Close()
		return nil
	}
	return db
}

// buildPlayWebServer wires the status server around a live play. Push
// keys come from config when set, otherwise from the persisted pair
// under the data directory.
func buildPlayWebServer(cfg *config.Config, arc *arcade.Arcade, db *statedb.StateDB) *web.Server {
	dataDir, err := config.Dir()
	if err != nil {
		dataDir = ""
	}

	pub, priv := cfg.Web.VAPIDPublicKey, cfg.Web.VAPIDPrivateKey
	if (pub == "" || priv == "") && dataDir != "" {
		p, k, _, err := web.EnsureVAPIDKeys(dataDir, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: push notifications unavailable: %v\n", err)
		} else {
			pub, priv = p, k
		}
	}

	return web.NewServer(web.Config{
		ListenAddr:          cfg.Web.GetListenAddr(),
		DataDir:             dataDir,
		Source:              web.NewArcadeSource(arc),
		DB:                  db,
		PushVAPIDPublicKey:  pub,
		PushVAPIDPrivateKey: priv,
		PushPerMinute:       cfg.Web.GetPushPerMinute(),
	})
}
