package media

import "testing"

func TestStripMarkdown(t *testing.T) {
	cases := map[string]string{
		"**important**":              "important",
		"*note*":                     "note",
		"this is `code`":             "this is code",
		"# Heading":                  "Heading",
		"- bullet one":               "bullet one",
		"see [our site](http://x)":   "see our site",
		"plain sentence, no markup.": "plain sentence, no markup.",
	}
	for in, want := range cases {
		if got := StripMarkdown(in); got != want {
			t.Fatalf("StripMarkdown(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeForSpeech_CollapsesWhitespaceAfterStripping(t *testing.T) {
	got := NormalizeForSpeech("  **Hello**   there,   friend  ")
	want := "Hello there, friend"
	if got != want {
		t.Fatalf("NormalizeForSpeech = %q, want %q", got, want)
	}
}

func TestNormalizeForSpeech_FoldsFullwidthForms(t *testing.T) {
	got := NormalizeForSpeech("ＡＢＣ") // fullwidth "ABC"
	if got != "ABC" {
		t.Fatalf("expected fullwidth forms folded to ABC, got %q", got)
	}
}
