package rag

import "strings"

// softSentenceLimit is the soft character cap spec.md 4.4 uses to
// force a sentence boundary when the LLM never emits terminal
// punctuation within a reasonable span (run-on lists, code-like
// output): ~200 chars.
const softSentenceLimit = 200

var sentenceEnders = map[byte]bool{'.': true, '!': true, '?': true}

// sentenceBuffer accumulates streamed LLM tokens and yields complete
// sentences as soon as a boundary is found, adapted from the
// teacher's internal/pipeline/sentence.go with the addition of the
// soft character limit spec.md 4.4 requires (the teacher's version
// only split on punctuation, which can stall TTS indefinitely on
// unpunctuated output).
type sentenceBuffer struct {
	buf strings.Builder
}

// Add appends a token and returns a complete sentence if a boundary
// was crossed, else "".
func (s *sentenceBuffer) Add(token string) string {
	s.buf.WriteString(token)
	text := s.buf.String()

	complete, remainder := splitAtSentence(text)
	if complete == "" && len(text) >= softSentenceLimit {
		complete, remainder = splitAtSoftLimit(text)
	}
	if complete == "" {
		return ""
	}
	s.buf.Reset()
	s.buf.WriteString(remainder)
	return complete
}

// Flush returns and clears any remaining buffered text.
func (s *sentenceBuffer) Flush() string {
	text := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	return text
}

// splitAtSentence finds the last sentence boundary in text: a
// terminal punctuation mark followed by whitespace or end of string.
func splitAtSentence(text string) (string, string) {
	lastIdx := -1
	for i := 0; i < len(text); i++ {
		if sentenceEnders[text[i]] && (i+1 == len(text) || isWordBoundary(text[i+1])) {
			lastIdx = i + 1
		}
	}
	if lastIdx < 0 {
		return "", text
	}
	return strings.TrimSpace(text[:lastIdx]), text[lastIdx:]
}

// splitAtSoftLimit breaks at the last word boundary at or before
// softSentenceLimit, so TTS can start on a long unpunctuated run
// rather than waiting for EOF.
func splitAtSoftLimit(text string) (string, string) {
	cut := softSentenceLimit
	if cut > len(text) {
		cut = len(text)
	}
	breakAt := -1
	for i := cut; i > 0; i-- {
		if isWordBoundary(text[i-1]) {
			breakAt = i
			break
		}
	}
	if breakAt <= 0 {
		breakAt = cut
	}
	return strings.TrimSpace(text[:breakAt]), text[breakAt:]
}

func isWordBoundary(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\t'
}
