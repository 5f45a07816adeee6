package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/asheshgoplani/agent-arcade/internal/tmux"
)

type sessionJSON struct {
	Name  string `json:"name"`
	Agent string `json:"agent"`
}

// handleStatus lists running arcade sessions. These are sessions whose
// play process died or detached without teardown; attach or kill them.
func handleStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Println("Usage: agent-arcade status [options]")
		fmt.Println()
		fmt.Println("Show running arcade tmux sessions.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	requireTmux(out)

	names, err := tmux.ListSessions()
	if err != nil {
		out.Error(err.Error(), ErrCodeTmuxUnavailable)
		os.Exit(1)
	}

	rows := make([]sessionJSON, 0, len(names))
	for _, name := range names {
		rows = append(rows, sessionJSON{Name: name, Agent: sessionDisplayName(name)})
	}

	if len(rows) == 0 {
		out.Print("No arcade sessions running.\n", map[string]interface{}{"sessions": rows})
		printUpdateNotice()
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-40s %s\n", "SESSION", "AGENT")
	for _, row := range rows {
		fmt.Fprintf(&b, "%-40s %s\n", row.Name, row.Agent)
	}
	b.WriteString(fmt.Sprintf("\n%d session(s). Use 'agent-arcade attach <name>' or 'agent-arcade kill <name>'.\n", len(rows)))

	out.Print(b.String(), map[string]interface{}{"sessions": rows})
	printUpdateNotice()
}

// handleAttach reattaches the terminal to a running arcade session.
func handleAttach(args []string) {
	fs := flag.NewFlagSet("attach", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println("Usage: agent-arcade attach <session>")
		fmt.Println()
		fmt.Println("Reattach to a running arcade session. The session name may be")
		fmt.Println("abbreviated as long as it is unambiguous.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  agent-arcade attach arcade_claude_0a1b2c3d")
		fmt.Println("  agent-arcade attach claude")
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(false, false)
	requireTmux(out)
	if insideTmux() {
		out.Error("cannot attach from inside tmux; detach first", ErrCodeInvalidOperation)
		os.Exit(1)
	}

	names, err := tmux.ListSessions()
	if err != nil {
		out.Error(err.Error(), ErrCodeTmuxUnavailable)
		os.Exit(1)
	}

	name, errMsg, code := resolveSessionName(fs.Arg(0), names)
	if errMsg != "" {
		out.Error(errMsg, code)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := tmux.ReconnectSession(name, sessionDisplayName(name), "")
	if err := sess.Attach(ctx); err != nil {
		out.Error(err.Error(), ErrCodeTmuxUnavailable)
		os.Exit(1)
	}
}

// handleKill kills one arcade session, or all of them with -all.
func handleKill(args []string) {
	fs := flag.NewFlagSet("kill", flag.ExitOnError)
	all := fs.Bool("all", false, "Kill every arcade session")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Println("Usage: agent-arcade kill <session>")
		fmt.Println("       agent-arcade kill -all")
		fmt.Println()
		fmt.Println("Kill a running arcade session. Only sessions created by this tool")
		fmt.Println("are touched; your own tmux sessions are never listed or killed.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	requireTmux(out)

	names, err := tmux.ListSessions()
	if err != nil {
		out.Error(err.Error(), ErrCodeTmuxUnavailable)
		os.Exit(1)
	}

	if *all {
		if len(names) == 0 {
			out.Success("no arcade sessions to kill", map[string]interface{}{
				"success": true, "killed": []string{},
			})
			return
		}
		var killed []string
		for _, name := range names {
			if err := tmux.ReconnectSession(name, sessionDisplayName(name), "").Kill(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to kill %s: %v\n", name, err)
				continue
			}
			killed = append(killed, name)
		}
		out.Success(fmt.Sprintf("killed %d session(s)", len(killed)), map[string]interface{}{
			"success": true, "killed": killed,
		})
		return
	}

	name, errMsg, code := resolveSessionName(fs.Arg(0), names)
	if errMsg != "" {
		out.Error(errMsg, code)
		os.Exit(1)
	}

	if err := tmux.ReconnectSession(name, sessionDisplayName(name), "").Kill(); err != nil {
		out.Error(err.Error(), ErrCodeTmuxUnavailable)
		os.Exit(1)
	}

	out.Success(fmt.Sprintf("killed %s", name), map[string]interface{}{
		"success": true, "killed": []string{name},
	})
}
