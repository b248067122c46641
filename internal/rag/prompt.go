package rag

import (
	"strings"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/prompts"
)

// StopSequences are the role prefixes that mark an LLM starting to
// role-play the other side of the conversation (spec.md 4.4). None of
// the LLM clients in this package sends them with a request; they are
// read only by TrimAtStopSequence.
var StopSequences = []string{"User:", "Assistant:"}

// BuildPrompt assembles the system prompt and user-turn prompt for one
// Generation task: system instructions, up to the last historyWindow
// turns rendered as a User:/Assistant: transcript, the retrieved
// context (if any) as a knowledge-base system note, and the new
// utterance. Grounded on the teacher's internal/pipeline/llm.go chat
// message assembly (system + optional RAG-context system message +
// user message), generalized to also fold in conversation history
// since spec.md's prompt must carry the last six turns.
func BuildPrompt(systemPrompt string, history []call.Turn, context string, utterance string) (system string, user string) {
	system = prompts.ForSession(systemPrompt)
	if context != "" {
		system += "\n\n" + prompts.RAGContext(context)
	}

	var b strings.Builder
	for _, t := range history {
		b.WriteString("User: ")
		b.WriteString(t.User)
		b.WriteString("\nAssistant: ")
		b.WriteString(t.Assistant)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(utterance)
	b.WriteString("\nAssistant:")

	return system, b.String()
}

// ConcatContext joins up to contextTop hit texts with the separator
// spec.md 4.4 specifies, after filtering by relevanceThreshold.
func ConcatContext(hits []call.VectorHit, relevanceThreshold float64, contextTop int) string {
	var kept []string
	for _, h := range hits {
		if h.Distance > relevanceThreshold {
			continue
		}
		kept = append(kept, h.Text)
		if len(kept) >= contextTop {
			break
		}
	}
	return strings.Join(kept, "\n\n---\n\n")
}

// TrimAtStopSequence truncates text at the first occurrence of any
// configured stop sequence, defending against a backend that doesn't
// honor the stop-sequence request natively.
func TrimAtStopSequence(text string) string {
	cut := len(text)
	for _, s := range StopSequences {
		if i := strings.Index(text, s); i >= 0 && i < cut {
			cut = i
		}
	}
	return text[:cut]
}
