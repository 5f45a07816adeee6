package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asheshgoplani/agent-arcade/internal/config"
	"github.com/asheshgoplani/agent-arcade/internal/logging"
	"github.com/asheshgoplani/agent-arcade/internal/statedb"
	"github.com/asheshgoplani/agent-arcade/internal/web"
)

// buildWebServer parses web-specific flags and returns a ready-to-start
// standalone server. Without a live play it serves history and health;
// /api/status reports no active play.
func buildWebServer(cfg *config.Config, db *statedb.StateDB, dataDir string, args []string) (*web.Server, error) {
	fs := flag.NewFlagSet("web", flag.ContinueOnError)
	listenAddr := fs.String("listen", cfg.Web.GetListenAddr(), "Listen address for the status server")
	token := fs.String("token", "", "Bearer token required for API and websocket access")
	push := fs.Bool("push", false, "Enable browser push (generates VAPID keys if missing)")
	pushSubject := fs.String("push-subject", "mailto:agent-arcade@localhost", "VAPID subject for push messages")

	fs.Usage = func() {
		fmt.Println("Usage: agent-arcade web [options]")
		fmt.Println()
		fmt.Println("Run the status server standalone: play history, stats, and push")
		fmt.Println("subscriptions without an active play.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  agent-arcade web")
		fmt.Println("  agent-arcade web -listen 127.0.0.1:9000")
		fmt.Println("  agent-arcade web -token s3cret")
		fmt.Println("  agent-arcade web -push")
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		return nil, fmt.Errorf("flag parsing: %w", err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	pub, priv := "", ""
	if *push {
		pub, priv = cfg.Web.VAPIDPublicKey, cfg.Web.VAPIDPrivateKey
		if pub == "" || priv == "" {
			var generated bool
			var err error
			pub, priv, generated, err = web.EnsureVAPIDKeys(dataDir, *pushSubject)
			if err != nil {
				return nil, fmt.Errorf("failed to prepare push keys: %w", err)
			}
			if generated {
				fmt.Println("Push keys: generated new VAPID keypair")
			} else {
				fmt.Println("Push keys: using existing VAPID keypair")
			}
		}
	}

	return web.NewServer(web.Config{
		ListenAddr:          *listenAddr,
		Token:               *token,
		DataDir:             dataDir,
		DB:                  db,
		PushVAPIDPublicKey:  pub,
		PushVAPIDPrivateKey: priv,
		PushSubject:         *pushSubject,
		PushPerMinute:       cfg.Web.GetPushPerMinute(),
	}), nil
}

// handleWeb runs the standalone status server until interrupted.
func handleWeb(args []string) {
	out := NewCLIOutput(false, false)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}

	setupLogging(cfg)
	defer logging.Shutdown()

	dataDir, err := config.Dir()
	if err != nil {
		out.Error(err.Error(), ErrCodeStorage)
		os.Exit(1)
	}

	db := openStateDB(out)
	if db != nil {
		defer db.Close()
	}

	srv, err := buildWebServer(cfg, db, dataDir, args)
	if err != nil {
		out.Error(err.Error(), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	fmt.Printf("Status server on http://%s (Ctrl+C stops)\n", srv.Addr())

	select {
	case err := <-errCh:
		if err != nil {
			out.Error(err.Error(), ErrCodeLaunchFailed)
			logging.Shutdown()
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: shutdown: %v\n", err)
		}
	}
}
