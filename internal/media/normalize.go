package media

import (
	"regexp"
	"strings"

	"golang.org/x/text/transform"
	"golang.org/x/text/width"
)

// markdownPatterns strips the handful of markdown constructs an LLM
// completion realistically produces (spec.md 4.4 step 5: residual text
// is "normalised for TTS (markdown stripped)" before it is enqueued).
// Order matters: links must be unwrapped before the remaining emphasis
// markers are stripped, or the link text's own asterisks/underscores
// would be double-processed.
var markdownPatterns = []*regexp.Regexp{
	regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`),  // [text](url), ![alt](url) -> text/alt
	regexp.MustCompile("```[a-zA-Z]*\\n?"),          // fenced code block markers
	regexp.MustCompile("`([^`]*)`"),                 // `code` -> code
	regexp.MustCompile(`\*\*\*([^*]+)\*\*\*`),       // ***bold italic*** -> text
	regexp.MustCompile(`\*\*([^*]+)\*\*`),           // **bold** -> text
	regexp.MustCompile(`\*([^*]+)\*`),               // *italic* -> text
	regexp.MustCompile(`__([^_]+)__`),                // __bold__ -> text
	regexp.MustCompile(`_([^_]+)_`),                  // _italic_ -> text
	regexp.MustCompile(`(?m)^#{1,6}\s+`),             // # Heading -> ""
	regexp.MustCompile(`(?m)^\s*[-*+]\s+`),           // - bullet / * bullet -> ""
}

// StripMarkdown removes the markdown emphasis/structure markers an LLM
// commonly emits, keeping the human-readable text underneath so a
// spoken sentence never reads "asterisk asterisk" aloud.
func StripMarkdown(s string) string {
	for _, re := range markdownPatterns {
		s = re.ReplaceAllString(s, "$1")
	}
	return s
}

// NormalizeForSpeech prepares a sentence for the TTS Streamer: fullwidth/
// halfwidth Unicode forms are folded to their standard form (an LLM
// occasionally emits fullwidth punctuation when reasoning about CJK
// text), markdown is stripped, and whitespace left behind by both
// passes is collapsed.
func NormalizeForSpeech(s string) string {
	folded, _, err := transform.String(width.Fold, s)
	if err != nil {
		folded = s
	}
	stripped := StripMarkdown(folded)
	return strings.Join(strings.Fields(stripped), " ")
}
