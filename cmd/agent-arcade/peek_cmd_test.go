package main

import "testing"

func TestSupportsOSC52(t *testing.T) {
	clearEnv := func(t *testing.T) {
		t.Setenv("ITERM_SESSION_ID", "")
		t.Setenv("WT_SESSION", "")
		t.Setenv("TERM", "")
	}

	t.Run("known terminals", func(t *testing.T) {
		clearEnv(t)
		for _, term := range []string{"xterm-256color", "tmux-256color", "screen", "kitty", "alacritty", "wezterm", "foot"} {
			t.Setenv("TERM", term)
			if !supportsOSC52() {
				t.Errorf("TERM=%s should report OSC 52 support", term)
			}
		}
	})

	t.Run("unknown terminal", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TERM", "vt100")
		if supportsOSC52() {
			t.Error("vt100 should not claim OSC 52 support")
		}
	})

	t.Run("iterm without TERM hint", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TERM", "dumb")
		t.Setenv("ITERM_SESSION_ID", "w0t0p0:AABB")
		if !supportsOSC52() {
			t.Error("an iTerm session supports OSC 52 regardless of TERM")
		}
	})
}
