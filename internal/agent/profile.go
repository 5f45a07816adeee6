// Package agent defines agent profiles: how to launch an AI coding agent
// and how to tell when it is ready for input. Readiness patterns feed the
// monitor's detector; some agents additionally ship a side channel (hook
// state files, activity logs) that gives faster or more reliable signals
// than watching the terminal.
package agent

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/asheshgoplani/agent-arcade/internal/logging"
)

var agentLog = logging.ForComponent(logging.CompAgent)

// Detection selects the auxiliary state strategy for an agent.
type Detection string

const (
	// DetectPatterns relies on terminal output alone.
	DetectPatterns Detection = "patterns"
	// DetectHooks watches a state file written by the agent's hooks.
	DetectHooks Detection = "hooks"
	// DetectLogTail follows the agent's own activity log.
	DetectLogTail Detection = "logtail"
)

// Profile describes one agent: its launch command and how readiness is
// recognized. Immutable once loaded from config.
type Profile struct {
	Name          string
	Command       string
	Args          []string
	ReadyPatterns []string // ordered, first match wins
	Detection     Detection
	LogFile       string // logtail only, ~ expanded at use
}

// Builtins returns the agents known out of the box. Config entries with
// the same name override these.
func Builtins() []Profile {
	return []Profile{
		{
			Name:    "claude",
			Command: "claude",
			ReadyPatterns: []string{
				`What would you like to do\?`,
				`^> `,
			},
			Detection: DetectHooks,
		},
		{
			Name:      "codex",
			Command:   "codex",
			Detection: DetectLogTail,
			LogFile:   "~/.codex/log/codex-tui.log",
		},
		{
			Name:          "aider",
			Command:       "aider",
			ReadyPatterns: []string{`^> `},
			Detection:     DetectPatterns,
		},
		{
			Name:          "generic",
			Command:       "",
			ReadyPatterns: []string{`^> $`, `\$ $`},
			Detection:     DetectPatterns,
		},
	}
}

// FindProfile resolves a name against a profile list, case-insensitive.
func FindProfile(profiles []Profile, name string) (Profile, bool) {
	for _, p := range profiles {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Profile{}, false
}

// CompiledProfile is a Profile with its ready patterns compiled. Invalid
// patterns are dropped at compile time, never at match time.
type CompiledProfile struct {
	Profile
	patterns []*regexp.Regexp
	sources  []string
}

// Compile builds the matcher for a profile. A pattern that fails to
// compile is skipped with a warning and detection proceeds with the
// rest, so one typo in config does not take the whole agent down.
func Compile(p Profile) *CompiledProfile {
	cp := &CompiledProfile{Profile: p}
	for _, src := range p.ReadyPatterns {
		// ^ and $ must match line boundaries inside a multi-line capture
		re, err := regexp.Compile("(?m)" + src)
		if err != nil {
			agentLog.Warn("invalid_pattern_skipped",
				slog.String("agent", p.Name),
				slog.String("pattern", src),
				slog.String("error", err.Error()))
			continue
		}
		cp.patterns = append(cp.patterns, re)
		cp.sources = append(cp.sources, src)
	}
	return cp
}

// PatternCount reports how many patterns survived compilation.
func (cp *CompiledProfile) PatternCount() int {
	return len(cp.patterns)
}

// FirstMatch scans captured content against the ready patterns in
// configured order and returns the source text of the first one that
// matches. Content is the joined capture tail, one line per row.
func (cp *CompiledProfile) FirstMatch(content string) (string, bool) {
	for i, re := range cp.patterns {
		if re.MatchString(content) {
			return cp.sources[i], true
		}
	}
	return "", false
}

// LaunchCommand returns the command and args to start this agent.
func (cp *CompiledProfile) LaunchCommand() (string, []string) {
	return cp.Command, cp.Args
}

// String implements fmt.Stringer for log output.
func (p Profile) String() string {
	return fmt.Sprintf("%s (%s, %d patterns)", p.Name, p.Detection, len(p.ReadyPatterns))
}
