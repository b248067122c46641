package rag

import "testing"

func TestClassify(t *testing.T) {
	cases := map[string]Intent{
		"hello there":                   IntentGreeting,
		"hi":                            IntentGreeting,
		"that's all, goodbye":           IntentGoodbye,
		"yes":                           IntentConfirm,
		"no thanks":                     IntentDeny,
		"what are your hours?":          IntentQuestion,
		"can you check my balance":      IntentQuestion,
		"cancel my subscription please": IntentAction,
		"pineapple":                     IntentOther,
	}
	for utterance, want := range cases {
		if got := Classify(utterance); got != want {
			t.Errorf("Classify(%q) = %v, want %v", utterance, got, want)
		}
	}
}

func TestIsConfirmIsDenyClosedSet(t *testing.T) {
	if !IsConfirm("Yes") {
		t.Fatalf("expected Yes to be a confirm form")
	}
	if !IsDeny("No.") {
		t.Fatalf("expected No. to be a deny form")
	}
	if IsConfirm("no problem") {
		t.Fatalf("expected 'no problem' to not be a lexical confirm")
	}
	if IsDeny("yes") {
		t.Fatalf("expected 'yes' to not be a lexical deny")
	}
}
