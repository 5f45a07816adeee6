package main

import (
	"os/exec"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/asheshgoplani/agent-arcade/internal/config"
)

func TestTmuxAvailable(t *testing.T) {
	_, err := exec.LookPath("tmux")
	if err != nil {
		t.Skip("tmux not available - skipping test")
	}
}

func TestInitColorProfileEnvOverride(t *testing.T) {
	orig := lipgloss.ColorProfile()
	t.Cleanup(func() { lipgloss.SetColorProfile(orig) })

	t.Setenv("AGENT_ARCADE_COLOR", "none")
	initColorProfile()
	if got := lipgloss.ColorProfile(); got != termenv.Ascii {
		t.Errorf("expected Ascii profile, got %v", got)
	}

	t.Setenv("AGENT_ARCADE_COLOR", "truecolor")
	initColorProfile()
	if got := lipgloss.ColorProfile(); got != termenv.TrueColor {
		t.Errorf("expected TrueColor profile, got %v", got)
	}

	t.Setenv("AGENT_ARCADE_COLOR", "256")
	initColorProfile()
	if got := lipgloss.ColorProfile(); got != termenv.ANSI256 {
		t.Errorf("expected ANSI256 profile, got %v", got)
	}
}

func TestBuildWebServerFlags(t *testing.T) {
	cfg := &config.Config{}

	srv, err := buildWebServer(cfg, nil, t.TempDir(), []string{"-listen", "127.0.0.1:9999"})
	if err != nil {
		t.Fatalf("buildWebServer: %v", err)
	}
	if srv.Addr() != "127.0.0.1:9999" {
		t.Errorf("expected listen override, got %q", srv.Addr())
	}
}

func TestBuildWebServerDefaultsToConfigAddr(t *testing.T) {
	cfg := &config.Config{}

	srv, err := buildWebServer(cfg, nil, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("buildWebServer: %v", err)
	}
	if srv.Addr() != config.DefaultListenAddr {
		t.Errorf("expected %q, got %q", config.DefaultListenAddr, srv.Addr())
	}
}

func TestBuildWebServerRejectsPositionalArgs(t *testing.T) {
	_, err := buildWebServer(&config.Config{}, nil, t.TempDir(), []string{"surprise"})
	if err == nil {
		t.Fatal("expected an error for unexpected arguments")
	}
	if !strings.Contains(err.Error(), "unexpected arguments") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuildWebServerGeneratesPushKeys(t *testing.T) {
	dir := t.TempDir()

	srv, err := buildWebServer(&config.Config{}, nil, dir, []string{"-push"})
	if err != nil {
		t.Fatalf("buildWebServer: %v", err)
	}
	if srv == nil {
		t.Fatal("expected a server")
	}

	// A second build must reuse the persisted pair, not regenerate.
	if _, err := buildWebServer(&config.Config{}, nil, dir, []string{"-push"}); err != nil {
		t.Fatalf("rebuild with persisted keys: %v", err)
	}
}

func TestTailLines(t *testing.T) {
	text := "one\ntwo\nthree\nfour\n"

	got := tailLines(text, 2)
	if len(got) != 2 || got[0] != "three" || got[1] != "four" {
		t.Errorf("tailLines(2) = %v", got)
	}

	got = tailLines(text, 10)
	if len(got) != 4 {
		t.Errorf("expected all 4 lines, got %v", got)
	}

	if got := tailLines("", 5); got != nil {
		t.Errorf("empty input should yield nil, got %v", got)
	}
}

func TestRenderStatsEmpty(t *testing.T) {
	out := renderStats(nil, nil, nil)
	if !strings.Contains(out, "No plays recorded yet") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestRenderStatsTables(t *testing.T) {
	plays := []playStatJSON{
		{ID: 1, Agent: "aider", Game: "pong", StartedAt: "2026-08-23T10:00:00Z", DurationSecs: 90, ReadyCount: 3},
	}
	games := []gameStatJSON{
		{Game: "pong", PlayCount: 2, TotalPlaySecs: 180, LastPlayed: "2026-08-23T10:00:00Z"},
	}
	agents := []agentStatJSON{
		{Agent: "aider", PlayCount: 2, TotalPlaySecs: 180, ReadyCount: 5, LastPlayed: "2026-08-23T10:00:00Z"},
	}

	out := renderStats(plays, games, agents)
	for _, want := range []string{"Recent plays", "By game", "By agent", "aider", "pong", "1m 30s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
