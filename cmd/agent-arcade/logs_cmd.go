package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/asheshgoplani/agent-arcade/internal/config"
)

const logFileName = "arcade.log"

// handleLogs prints the tail of the debug log. The log is only written
// while AGENT_ARCADE_DEBUG is set on a play.
func handleLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	lines := fs.Int("n", 50, "Number of trailing lines to show")
	pathOnly := fs.Bool("path", false, "Print the log file path and exit")
	fs.Usage = func() {
		fmt.Println("Usage: agent-arcade logs [options]")
		fmt.Println()
		fmt.Println("Show recent debug log lines. Logging is active while a play runs")
		fmt.Println("with AGENT_ARCADE_DEBUG=1 in the environment.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}
	if *lines < 1 {
		fmt.Fprintln(os.Stderr, "Error: -n must be a positive integer")
		os.Exit(1)
	}

	dir, err := config.Dir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logPath := filepath.Join(dir, logFileName)

	if *pathOnly {
		fmt.Println(logPath)
		return
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("No log file at %s.\n", logPath)
			fmt.Println("Run a play with AGENT_ARCADE_DEBUG=1 to produce one.")
			return
		}
		fmt.Fprintf(os.Stderr, "Error: read log: %v\n", err)
		os.Exit(1)
	}

	for _, line := range tailLines(string(data), *lines) {
		fmt.Println(line)
	}
}

// tailLines returns the last n non-empty-terminated lines of text.
func tailLines(text string, n int) []string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	all := strings.Split(text, "\n")
	if len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}
