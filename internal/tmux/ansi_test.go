package tmux

import "testing"

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text untouched",
			in:   "What would you like to do?",
			want: "What would you like to do?",
		},
		{
			name: "color codes",
			in:   "\x1b[32mREADY\x1b[0m waiting",
			want: "READY waiting",
		},
		{
			name: "bold and reset",
			in:   "\x1b[1mScore:\x1b[0m 42",
			want: "Score: 42",
		},
		{
			name: "cursor movement",
			in:   "\x1b[2J\x1b[Hboard",
			want: "board",
		},
		{
			name: "osc title with bel",
			in:   "\x1b]0;nethack\x07> ",
			want: "> ",
		},
		{
			name: "osc with st terminator",
			in:   "\x1b]8;;http://example.com\x1b\\link",
			want: "link",
		},
		{
			name: "eight bit csi",
			in:   "\x9b32mgreen",
			want: "green",
		},
		{
			name: "bare escape pair",
			in:   "\x1b=keypad",
			want: "keypad",
		},
		{
			name: "trailing escape",
			in:   "prompt\x1b",
			want: "prompt",
		},
		{
			name: "multiline capture",
			in:   "\x1b[33mdungeon level 3\x1b[0m\n> ",
			want: "dungeon level 3\n> ",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripANSI(tt.in); got != tt.want {
				t.Errorf("StripANSI(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripANSIFastPath(t *testing.T) {
	// Content without escape bytes must come back as the same string
	in := "no escapes here, just a prompt > "
	if got := StripANSI(in); got != in {
		t.Errorf("fast path changed content: %q", got)
	}
}
