package main

import (
	"flag"
	"reflect"
	"testing"
	"time"
)

func TestNormalizeArgs(t *testing.T) {
	newFS := func() *flag.FlagSet {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.String("agent", "", "")
		fs.String("game", "", "")
		fs.Bool("json", false, "")
		return fs
	}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "already ordered",
			args: []string{"-agent", "claude", "nethack"},
			want: []string{"-agent", "claude", "nethack"},
		},
		{
			name: "flag after positional",
			args: []string{"nethack", "-json"},
			want: []string{"-json", "nethack"},
		},
		{
			name: "value flag after positional",
			args: []string{"nethack", "-agent", "claude"},
			want: []string{"-agent", "claude", "nethack"},
		},
		{
			name: "equals form",
			args: []string{"nethack", "-agent=claude"},
			want: []string{"-agent=claude", "nethack"},
		},
		{
			name: "double dash stops parsing",
			args: []string{"-json", "--", "-agent"},
			want: []string{"-json", "-agent"},
		},
		{
			name: "empty",
			args: nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeArgs(newFS(), tt.args)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("normalizeArgs(%v) = %v, want %v", tt.args, got, tt.want)
			}
		})
	}
}

func TestResolveSessionName(t *testing.T) {
	names := []string{
		"arcade_claude_0a1b2c3d",
		"arcade_claude_9f8e7d6c",
		"arcade_aider_11223344",
	}

	t.Run("exact match", func(t *testing.T) {
		name, errMsg, _ := resolveSessionName("arcade_claude_0a1b2c3d", names)
		if errMsg != "" {
			t.Fatalf("unexpected error: %s", errMsg)
		}
		if name != "arcade_claude_0a1b2c3d" {
			t.Errorf("got %q", name)
		}
	})

	t.Run("unique substring", func(t *testing.T) {
		name, errMsg, _ := resolveSessionName("aider", names)
		if errMsg != "" {
			t.Fatalf("unexpected error: %s", errMsg)
		}
		if name != "arcade_aider_11223344" {
			t.Errorf("got %q", name)
		}
	})

	t.Run("ambiguous substring", func(t *testing.T) {
		_, errMsg, code := resolveSessionName("claude", names)
		if errMsg == "" {
			t.Fatal("expected an ambiguity error")
		}
		if code != ErrCodeAmbiguous {
			t.Errorf("expected code %s, got %s", ErrCodeAmbiguous, code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, errMsg, code := resolveSessionName("zork", names)
		if errMsg == "" {
			t.Fatal("expected a not-found error")
		}
		if code != ErrCodeNotFound {
			t.Errorf("expected code %s, got %s", ErrCodeNotFound, code)
		}
	})

	t.Run("empty identifier", func(t *testing.T) {
		_, errMsg, code := resolveSessionName("", names)
		if errMsg == "" || code != ErrCodeNotFound {
			t.Errorf("expected not-found for empty identifier, got %q %q", errMsg, code)
		}
	})
}

func TestSessionDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"arcade_claude_0a1b2c3d", "claude"},
		{"arcade_my-agent_11223344", "my-agent"},
		{"arcade_x", "x"}, // no random suffix to strip
	}

	for _, tt := range tests {
		if got := sessionDisplayName(tt.in); got != tt.want {
			t.Errorf("sessionDisplayName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{5*time.Minute + 10*time.Second, "5m 10s"},
		{time.Hour + 2*time.Minute, "1h 2m"},
		{0, "0s"},
		{-time.Second, "0s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatAgo(t *testing.T) {
	now := time.Now()
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-49 * time.Hour), "2d ago"},
	}
	for _, tt := range tests {
		if got := formatAgo(tt.t); got != tt.want {
			t.Errorf("formatAgo(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestTruncateCell(t *testing.T) {
	if got := truncateCell("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncateCell("a-very-long-name", 8); got != "a-very-…" {
		t.Errorf("got %q", got)
	}
	if len(truncateCell("abcdef", 3)) > 5 {
		t.Error("truncated cell should stay near the requested width")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "b", "c"); got != "b" {
		t.Errorf("got %q", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Errorf("got %q", got)
	}
}
