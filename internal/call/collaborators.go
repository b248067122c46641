package call

import "context"

// STTEvent is one incremental or final recognition result.
type STTEvent struct {
	Text       string
	IsFinal    bool
	Confidence float64
	StartMs    int
	EndMs      int
}

// StreamingSTT opens one live recognition channel per call.
type StreamingSTT interface {
	// Open starts a recognition session; the returned func writes mu-law
	// frames upstream, events arrive on the returned channel until it
	// opens a final close or the context is cancelled.
	Open(ctx context.Context) (send func(frame []byte) error, events <-chan STTEvent, err error)
	Close() error
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorHit is one retrieval result; Distance is lower-is-better.
type VectorHit struct {
	Text     string
	Distance float64
}

// VectorStore performs nearest-neighbour retrieval.
type VectorStore interface {
	Query(ctx context.Context, vector []float32, k int) ([]VectorHit, error)
}

// TokenSink receives streamed LLM tokens as they arrive.
type TokenSink func(token string)

// LLM streams a completion for a prompt.
type LLM interface {
	Stream(ctx context.Context, systemPrompt, prompt string, onToken TokenSink) error
}

// PCMSink receives synthesized linear PCM frames (16kHz mono 16-bit).
type PCMSink func(samples []int16) error

// StreamingTTS opens one synthesis channel per sentence.
type StreamingTTS interface {
	Synthesize(ctx context.Context, text, voiceID string, onPCM PCMSink) error
}

// MediaTransport is the per-call bidirectional carrier media channel.
type MediaTransport interface {
	SendMedia(ctx context.Context, payload []byte) error
	SendClear(ctx context.Context) error
}

// ToolExecutor performs a named tool call and returns a textual result.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, params map[string]string) (string, error)
}

// HistoryStore appends the persisted conversation record.
type HistoryStore interface {
	AppendTurn(ctx context.Context, callID, user, assistant string) error
	Finalize(ctx context.Context, callID, status string) error
}

// Webhooks is a fire-and-forget event sink.
type Webhooks interface {
	Fire(ctx context.Context, event string, payload map[string]any)
}
