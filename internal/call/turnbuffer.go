package call

import (
	"strings"
	"time"
)

// TurnBuffer is the mutable partial transcript under assembly. It is
// owned exclusively by the Turn Assembler goroutine; the end-of-turn
// ticker reads it under the same goroutine, so no lock is needed in
// the reference wiring (both run on the Turn Assembler's single
// goroutine). Exported so tests can construct and drive it directly.
type TurnBuffer struct {
	Text          string
	IsFinal       bool
	LastSpeechAt  time.Time
	LastPartialAt time.Time
}

var terminalPunct = []string{".", "!", "?"}

func endsInTerminalPunct(s string) bool {
	s = strings.TrimRight(s, " \t\n")
	for _, p := range terminalPunct {
		if strings.HasSuffix(s, p) {
			return true
		}
	}
	return false
}

// ApplyPartial updates the buffer for a non-final STT event (spec 4.3).
func (b *TurnBuffer) ApplyPartial(text string, now time.Time) {
	b.LastPartialAt = now
	b.LastSpeechAt = now
	if b.Text == "" || !b.IsFinal {
		b.Text = text
	}
}

// ApplyFinal updates the buffer for a final STT event (spec 4.3).
func (b *TurnBuffer) ApplyFinal(text string, now time.Time) {
	if b.Text != "" && !endsInTerminalPunct(b.Text) {
		b.Text = b.Text + " " + text
	} else {
		b.Text = text
	}
	b.IsFinal = true
	b.LastSpeechAt = now
}

// Reset clears the buffer atomically at the start of every listening phase.
func (b *TurnBuffer) Reset() {
	*b = TurnBuffer{}
}
