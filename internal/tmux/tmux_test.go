package tmux

import (
	"errors"
	"strings"
	"testing"
)

func TestNewSessionName(t *testing.T) {
	s := NewSession("zork adventure", "/tmp/games")

	if !strings.HasPrefix(s.Name, SessionPrefix) {
		t.Errorf("session name %q missing prefix %q", s.Name, SessionPrefix)
	}
	if !strings.Contains(s.Name, "zork-adventure") {
		t.Errorf("session name %q should contain sanitized display name", s.Name)
	}
	if s.DisplayName != "zork adventure" {
		t.Errorf("display name = %q, want original", s.DisplayName)
	}

	// Suffix must make two sessions with the same name distinct
	other := NewSession("zork adventure", "/tmp/games")
	if s.Name == other.Name {
		t.Errorf("two sessions got identical name %q", s.Name)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "nethack", "nethack"},
		{"spaces", "dwarf fortress", "dwarf-fortress"},
		{"specials", "rogue: like!", "rogue-like-"},
		{"dots", "v2.1", "v2-1"},
		{"unicode", "café", "caf-"},
		{"keeps hyphens", "my-game", "my-game"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeName(tt.in); got != tt.want {
				t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain word", "nethack", "nethack"},
		{"path", "/usr/games/rogue", "/usr/games/rogue"},
		{"flag", "--color=auto", "--color=auto"},
		{"empty", "", "''"},
		{"space", "two words", "'two words'"},
		{"single quote", "it's", `'it'"'"'s'`},
		{"shell meta", "a;rm -rf", "'a;rm -rf'"},
		{"dollar", "$HOME", "'$HOME'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shellQuote(tt.in); got != tt.want {
				t.Errorf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCommandLine(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    []string
		want    string
	}{
		{"bare command", "aider", nil, "aider"},
		{"with flags", "claude", []string{"--continue"}, "claude --continue"},
		{"arg with spaces", "play", []string{"two words"}, "play 'two words'"},
		{"meta chars stay literal", "sh", []string{"-c", "echo $HOME"}, "sh -c 'echo $HOME'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CommandLine(tt.command, tt.args); got != tt.want {
				t.Errorf("CommandLine(%q, %v) = %q, want %q", tt.command, tt.args, got, tt.want)
			}
		})
	}
}

func TestGenerateShortID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := generateShortID()
		if len(id) != 8 {
			t.Fatalf("id %q has length %d, want 8 hex chars", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %q after %d draws", id, i)
		}
		seen[id] = true
	}
}

func TestWindowTarget(t *testing.T) {
	s := &Session{Name: "arcade_zork_a1b2c3d4"}

	if got := s.target(AgentWindow); got != "arcade_zork_a1b2c3d4:0" {
		t.Errorf("agent target = %q", got)
	}
	if got := s.target(GameWindow); got != "arcade_zork_a1b2c3d4:1" {
		t.Errorf("game target = %q", got)
	}
}

func TestIsMissingTarget(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   bool
	}{
		{"session gone", "can't find session: arcade_x", true},
		{"window gone", "can't find window: 1", true},
		{"pane gone", "can't find pane: 0", true},
		{"old wording", "session not found: arcade_x", true},
		{"no server", "no server running on /tmp/tmux-1000/default", true},
		{"server socket", "error connecting to /tmp/tmux-1000/default (No such file or directory)", true},
		{"uppercase", "Can't find session: arcade_x", true},
		{"unrelated error", "invalid option: -Z", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isMissingTarget(tt.output); got != tt.want {
				t.Errorf("isMissingTarget(%q) = %v, want %v", tt.output, got, tt.want)
			}
		})
	}
}

func TestClassifyTargetError(t *testing.T) {
	base := errors.New("exit status 1")

	err := classifyTargetError(base, "can't find window: 1")
	if !errors.Is(err, ErrWindowUnavailable) {
		t.Errorf("missing window should classify as ErrWindowUnavailable, got %v", err)
	}

	err = classifyTargetError(base, "usage: send-keys")
	if errors.Is(err, ErrWindowUnavailable) {
		t.Errorf("unrelated tmux error should not classify as unavailable, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Errorf("original error should stay wrapped, got %v", err)
	}
}

func TestCaptureEntryServes(t *testing.T) {
	entry := captureEntry{
		lines:    []string{"a", "b", "c", "d"},
		maxLines: 50,
	}

	lines, ok := entry.serves(50)
	if !ok || len(lines) != 4 {
		t.Fatalf("same-size request: ok=%v lines=%v", ok, lines)
	}

	lines, ok = entry.serves(2)
	if !ok {
		t.Fatal("smaller request should be served from cache")
	}
	if len(lines) != 2 || lines[0] != "c" || lines[1] != "d" {
		t.Errorf("smaller request should get the tail, got %v", lines)
	}

	if _, ok := entry.serves(100); ok {
		t.Error("larger request must miss the cache")
	}
}
