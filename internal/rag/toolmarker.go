package rag

import (
	"regexp"
	"strings"
)

// Marker is one recognized tool-invocation marker scanned out of LLM
// output per spec.md 6's grammar: [TOOL:<name>(<k>=<v>,...)] for
// immediate execution, [CONFIRM_TOOL:...] for execution gated on the
// caller's next Confirm/Deny.
type Marker struct {
	Name      string
	Params    map[string]string
	Confirmed bool // true for CONFIRM_TOOL, false for TOOL
	Raw       string
}

// markerPattern implements the strict grammar decided in spec.md 9's
// Open Question (d): a marker must be exactly
// [TOOL:name(k=v,k=v,...)] or [CONFIRM_TOOL:name(...)] with an
// identifier name and comma-separated key=value params whose values
// may not contain '(', ')', '[', ']', or ','. Anything that doesn't
// match this exactly — an unclosed bracket, a malformed name, a
// value containing a forbidden character — is left as literal text
// rather than partially parsed, so a garbled marker is spoken to the
// caller instead of silently vanishing or half-executing.
var markerPattern = regexp.MustCompile(
	`\[(TOOL|CONFIRM_TOOL):([A-Za-z_][A-Za-z0-9_]*)\(((?:[A-Za-z_][A-Za-z0-9_]*=[^,()\[\]]*)(?:,[A-Za-z_][A-Za-z0-9_]*=[^,()\[\]]*)*)?\)\]`,
)

// ScanMarkers extracts every well-formed marker from text and returns
// the residual text with those markers removed (collapsing the
// resulting double spaces), ready to be spoken by TTS.
func ScanMarkers(text string) ([]Marker, string) {
	matches := markerPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil, text
	}

	var markers []Marker
	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		kind := text[m[2]:m[3]]
		name := text[m[4]:m[5]]
		var paramsStr string
		if m[6] != -1 {
			paramsStr = text[m[6]:m[7]]
		}
		markers = append(markers, Marker{
			Name:      name,
			Params:    parseParams(paramsStr),
			Confirmed: kind == "CONFIRM_TOOL",
			Raw:       text[start:end],
		})
		b.WriteString(text[last:start])
		last = end
	}
	b.WriteString(text[last:])

	residual := collapseSpaces(b.String())
	return markers, residual
}

func parseParams(s string) map[string]string {
	params := map[string]string{}
	if s == "" {
		return params
	}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		params[kv[0]] = kv[1]
	}
	return params
}

var multiSpace = regexp.MustCompile(`[ \t]{2,}`)

func collapseSpaces(s string) string {
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
