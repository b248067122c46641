package rag

import "strings"

// Intent is the coarse classification spec.md 4.4 assigns to each
// utterance before retrieval, so Greeting/Goodbye turns can skip the
// knowledge-base round trip entirely; every other intent is retrieved.
type Intent string

const (
	IntentGreeting Intent = "Greeting"
	IntentGoodbye  Intent = "Goodbye"
	IntentConfirm  Intent = "Confirm"
	IntentDeny     Intent = "Deny"
	IntentQuestion Intent = "Question"
	IntentAction   Intent = "Action"
	IntentOther    Intent = "Other"
)

var greetingForms = []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening"}
var goodbyeForms = []string{"bye", "goodbye", "see you", "that's all", "thats all", "nothing else", "hang up"}

// confirmForms and denyForms are the closed sets spec.md 4.7 requires
// for lexical Confirm/Deny detection — matched case-insensitively
// against the whole trimmed utterance, not as a substring search, so
// "no problem" is never mistaken for a Deny.
var confirmForms = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "sure": true, "confirm": true,
	"confirmed": true, "go ahead": true, "do it": true, "please do": true,
	"yes please": true, "that's right": true, "thats right": true,
	"correct": true, "ok": true, "okay": true,
}

var denyForms = map[string]bool{
	"no": true, "nope": true, "don't": true, "dont": true, "cancel": true,
	"stop": true, "never mind": true, "nevermind": true, "no thanks": true,
	"negative": true, "not now": true,
}

// actionVerbs are a small set of verbs that mark a request to perform
// an action rather than ask a question, used only when the utterance
// isn't already resolved as Greeting/Goodbye/Confirm/Deny.
var actionVerbs = []string{"transfer", "cancel my", "schedule", "book", "refund", "reset my", "update my", "change my"}

// Classify assigns an Intent to a finalised utterance. It is
// deliberately lexical rather than model-backed: spec.md 4.7's
// Confirm/Deny detection must be a closed set, and Greeting/Goodbye
// detection gates whether retrieval runs at all, so both need to be
// cheap and deterministic ahead of any LLM call.
func Classify(utterance string) Intent {
	norm := strings.ToLower(strings.TrimSpace(utterance))
	norm = strings.TrimRight(norm, ".!? ")

	if confirmForms[norm] {
		return IntentConfirm
	}
	if denyForms[norm] {
		return IntentDeny
	}
	for _, f := range greetingForms {
		if norm == f || strings.HasPrefix(norm, f+" ") {
			return IntentGreeting
		}
	}
	for _, f := range goodbyeForms {
		if strings.Contains(norm, f) {
			return IntentGoodbye
		}
	}
	for _, v := range actionVerbs {
		if strings.Contains(norm, v) {
			return IntentAction
		}
	}
	if strings.HasSuffix(norm, "?") || strings.HasPrefix(norm, "what") || strings.HasPrefix(norm, "how") ||
		strings.HasPrefix(norm, "when") || strings.HasPrefix(norm, "where") || strings.HasPrefix(norm, "why") ||
		strings.HasPrefix(norm, "can you") || strings.HasPrefix(norm, "do you") {
		return IntentQuestion
	}
	return IntentOther
}

// IsConfirm reports whether utterance is a lexical Confirm per the
// closed set of spec.md 4.7 — exported separately from Classify so
// the AwaitingConfirmation handler doesn't need to re-derive it from
// the Intent enum.
func IsConfirm(utterance string) bool {
	return confirmForms[normalizeForm(utterance)]
}

// IsDeny reports whether utterance is a lexical Deny.
func IsDeny(utterance string) bool {
	return denyForms[normalizeForm(utterance)]
}

func normalizeForm(s string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(s)), ".!? ")
}
