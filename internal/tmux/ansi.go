package tmux

import "strings"

// StripANSI removes terminal escape sequences from captured content.
// capture-pane without -e already omits color codes, but agents that
// write through a PTY sometimes leave cursor-movement and OSC sequences
// behind, and pattern matching has to see clean text.
//
// Single pass, no regex. Handles CSI (ESC [ ... letter), OSC
// (ESC ] ... BEL or ST), bare two-byte escapes, and 8-bit CSI (0x9B).
func StripANSI(content string) string {
	// Fast path: no escape bytes at all
	if strings.IndexByte(content, '\x1b') < 0 && strings.IndexByte(content, '\x9b') < 0 {
		return content
	}

	var b strings.Builder
	b.Grow(len(content))

	i := 0
	for i < len(content) {
		if content[i] == '\x1b' {
			// CSI sequence: ESC [ ... letter
			if i+1 < len(content) && content[i+1] == '[' {
				j := i + 2
				for j < len(content) {
					c := content[j]
					if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
						j++
						break
					}
					j++
				}
				i = j
				continue
			}
			// OSC sequence: ESC ] ... BEL, or ST (ESC \) terminated
			if i+1 < len(content) && content[i+1] == ']' {
				if bellPos := strings.Index(content[i:], "\x07"); bellPos != -1 {
					i += bellPos + 1
					continue
				}
				if stPos := strings.Index(content[i:], "\x1b\\"); stPos != -1 {
					i += stPos + 2
					continue
				}
			}
			// Other escape: ESC plus a single char
			if i+1 < len(content) {
				i += 2
				continue
			}
			// Trailing ESC at end of capture
			i++
			continue
		}
		// 8-bit CSI without ESC
		if content[i] == '\x9b' {
			j := i + 1
			for j < len(content) {
				c := content[j]
				if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
					j++
					break
				}
				j++
			}
			i = j
			continue
		}
		b.WriteByte(content[i])
		i++
	}
	return b.String()
}
