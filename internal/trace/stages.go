package trace

// Stage names recorded as Span.Name, one per phase of the call
// pipeline spec.md 4 describes. A trace viewer groups spans by these
// names to reconstruct how one utterance moved through intake,
// interruption checking, turn assembly, retrieval, generation and
// synthesis.
const (
	StageMediaIntake    = "media_intake"
	StageInterruptCheck = "interrupt_check"
	StageTurnAssemble   = "turn_assemble"
	StageRAGRetrieve    = "rag_retrieve"
	StageLLMStream      = "llm_stream"
	StageTTSSynthesize  = "tts_synthesize"
)
