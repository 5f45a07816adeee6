package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/asheshgoplani/agent-arcade/internal/config"
)

// handleConfig shows the configuration file location and the effective
// settings, or writes a commented starter file with `config init`.
func handleConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Println("Usage: agent-arcade config [init|path]")
		fmt.Println()
		fmt.Println("Show the configuration file and the effective settings.")
		fmt.Println()
		fmt.Println("Subcommands:")
		fmt.Println("  init    Write a commented example config if none exists")
		fmt.Println("  path    Print the config file path")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	configPath, err := config.Path()
	if err != nil {
		out.Error(err.Error(), ErrCodeStorage)
		os.Exit(1)
	}

	switch fs.Arg(0) {
	case "path":
		fmt.Println(configPath)
		return
	case "init":
		if _, err := os.Stat(configPath); err == nil {
			out.Success(fmt.Sprintf("config already exists: %s", configPath), map[string]interface{}{
				"success": true, "path": configPath, "created": false,
			})
			return
		}
		if err := config.CreateExampleConfig(); err != nil {
			out.Error(fmt.Sprintf("write config: %v", err), ErrCodeStorage)
			os.Exit(1)
		}
		out.Success(fmt.Sprintf("wrote %s", configPath), map[string]interface{}{
			"success": true, "path": configPath, "created": true,
		})
		return
	case "":
	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	cfg, loadErr := config.Load()
	_, statErr := os.Stat(configPath)
	exists := statErr == nil

	summary := map[string]interface{}{
		"path":         configPath,
		"exists":       exists,
		"defaultAgent": cfg.GetDefaultAgent(),
		"defaultGame":  cfg.DefaultGame,
		"theme":        cfg.GetTheme(),
		"games":        len(cfg.Games),
		"webEnabled":   cfg.Web.Enabled,
	}
	if loadErr != nil {
		summary["error"] = loadErr.Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Config file: %s", configPath)
	if !exists {
		b.WriteString(" (not created yet; run 'agent-arcade config init')")
	}
	b.WriteString("\n")
	if loadErr != nil {
		fmt.Fprintf(&b, "%s %v\n", bulletSymbol, loadErr)
	}
	fmt.Fprintf(&b, "%s default agent: %s\n", bulletSymbol, cfg.GetDefaultAgent())
	if cfg.DefaultGame != "" {
		fmt.Fprintf(&b, "%s default game:  %s\n", bulletSymbol, cfg.DefaultGame)
	} else {
		fmt.Fprintf(&b, "%s default game:  (none, game window starts as a shell)\n", bulletSymbol)
	}
	fmt.Fprintf(&b, "%s theme:         %s\n", bulletSymbol, cfg.GetTheme())
	fmt.Fprintf(&b, "%s games:         %d configured\n", bulletSymbol, len(cfg.Games))
	fmt.Fprintf(&b, "%s check every:   %s, ready after %s quiet\n", bulletSymbol,
		cfg.Monitoring.GetCheckInterval(), cfg.Monitoring.GetInactivityTimeout())
	if cfg.Web.Enabled {
		fmt.Fprintf(&b, "%s web status:    http://%s\n", bulletSymbol, cfg.Web.GetListenAddr())
	}

	out.Print(b.String(), summary)
}
