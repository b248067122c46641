package rag

import (
	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/router"
)

// LLMRouter dispatches to the configured backend by agent_config's
// llm_engine field, falling back to a default engine when the agent
// doesn't name one or names one that isn't registered. This is the
// consistent Router[T]-based abstraction the teacher's own main.go
// gestures at (it references a non-existent pipeline.ASRRouter /
// pipeline.TTSRouter pairing) built from the generic Router[T] that
// actually exists in the teacher's codebase.
type LLMRouter struct {
	r *router.Router[call.LLM]
}

// NewLLMRouter creates a router over the given named LLM backends.
func NewLLMRouter(backends map[string]call.LLM, fallback string) *LLMRouter {
	return &LLMRouter{r: router.New(backends, fallback)}
}

// Engine resolves the named backend, or the router's fallback if
// engine is unregistered. Callers bind this once per Generation task
// and use the returned call.LLM directly, since call.LLM.Stream takes
// no engine argument of its own.
func (r *LLMRouter) Engine(engine string) (call.LLM, error) {
	return r.r.Route(engine)
}

// Engines lists all registered backend names.
func (r *LLMRouter) Engines() []string {
	return r.r.Engines()
}
