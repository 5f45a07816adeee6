package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/asheshgoplani/agent-arcade/internal/config"
	"github.com/asheshgoplani/agent-arcade/internal/update"
)

// handleUpdate checks GitHub for a newer release and installs it in
// place after confirmation.
func handleUpdate(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	checkOnly := fs.Bool("check", false, "Only check for updates, don't install")

	fs.Usage = func() {
		fmt.Println("Usage: agent-arcade update [options]")
		fmt.Println()
		fmt.Println("Check for and install updates (always checks GitHub for the latest).")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  agent-arcade update          # Check and install if available")
		fmt.Println("  agent-arcade update -check   # Only check, don't install")
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	fmt.Printf("Agent Arcade v%s\n", Version)
	fmt.Println("Checking for updates...")

	// An explicit update command always asks GitHub; the cache only
	// serves background notices.
	info, err := update.CheckForUpdate(Version, true)
	if err != nil {
		fmt.Printf("Error checking for updates: %v\n", err)
		os.Exit(1)
	}

	if !info.Available {
		fmt.Printf("%s You're running the latest version!\n", successSymbol)
		return
	}

	fmt.Printf("\nUpdate available: v%s → v%s\n", info.CurrentVersion, info.LatestVersion)
	fmt.Printf("  Release: %s\n", info.ReleaseURL)

	displayChangelog(info.CurrentVersion, info.LatestVersion)

	if *checkOnly {
		fmt.Println("\nRun 'agent-arcade update' to install.")
		return
	}

	drainStdin()
	fmt.Print("\nInstall update? [Y/n] ")
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(response)
	if response != "" && response != "y" && response != "Y" {
		fmt.Println("Update cancelled.")
		return
	}

	fmt.Println()
	if err := update.PerformUpdate(info.DownloadURL); err != nil {
		fmt.Printf("Error installing update: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n%s Updated to v%s\n", successSymbol, info.LatestVersion)
	fmt.Println("  Restart agent-arcade to use the new version.")
}

// displayChangelog prints what changed between the two versions, when
// the changelog can be fetched.
func displayChangelog(currentVersion, latestVersion string) {
	changelog, err := update.FetchChangelog()
	if err != nil {
		fmt.Println("\n  (Could not fetch changelog. See release notes at the URL above.)")
		return
	}

	entries := update.ParseChangelog(changelog)
	changes := update.GetChangesBetweenVersions(entries, currentVersion, latestVersion)
	if len(changes) > 0 {
		fmt.Print(update.FormatChangelogForDisplay(changes))
	}
}

// printUpdateNotice appends a one-line notice to status output when a
// newer release is known. The check cache keeps this off the network
// for all but one run per check interval.
func printUpdateNotice() {
	cfg, _ := config.Load()
	if !cfg.Updates.GetCheckEnabled() || !cfg.Updates.GetNotifyInCLI() {
		return
	}
	update.SetCheckInterval(cfg.Updates.GetCheckIntervalHours())

	info, err := update.CheckForUpdate(Version, false)
	if err != nil || info == nil || !info.Available {
		return
	}

	// Stderr keeps the notice out of piped output.
	fmt.Fprintf(os.Stderr, "\nUpdate available: v%s → v%s (run: agent-arcade update)\n",
		info.CurrentVersion, info.LatestVersion)
}

// drainStdin flushes pending terminal input. Escape sequences or held
// keys buffered during the changelog display would otherwise be read as
// the prompt answer.
func drainStdin() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}

	// ioctl(fd, TCFLSH, TCIFLUSH). The TCFLSH request number differs
	// between Darwin and Linux; try both.
	const (
		tcflshDarwin = 0x80047410
		tcflshLinux  = 0x540B
		tciflush     = 0
	)
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), tcflshDarwin, tciflush)
	if errno != 0 {
		_, _, _ = syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), tcflshLinux, tciflush)
	}
}
