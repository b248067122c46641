package rag

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/config"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type fakeStore struct {
	hits []call.VectorHit
}

func (f fakeStore) Query(ctx context.Context, vector []float32, k int) ([]call.VectorHit, error) {
	return f.hits, nil
}

type scriptedLLM struct {
	tokens []string
}

func (s scriptedLLM) Stream(ctx context.Context, systemPrompt, prompt string, onToken call.TokenSink) error {
	for _, tok := range s.tokens {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		onToken(tok)
	}
	return nil
}

type noopTransport struct{}

func (noopTransport) SendMedia(ctx context.Context, payload []byte) error { return nil }
func (noopTransport) SendClear(ctx context.Context) error                 { return nil }

func newTestSession() *call.Session {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{HistoryWindow: 6}
	return call.New(context.Background(), "c1", "s1", config.AgentConfig{SystemPrompt: "be helpful"}, cfg, noopTransport{}, logger)
}

func TestEngine_Run_PlainAnswerAppendsHistory(t *testing.T) {
	sess := newTestSession()
	e := &Engine{
		Embedder: fakeEmbedder{},
		Store:    fakeStore{hits: []call.VectorHit{{Text: "hours are 9-5", Distance: 0.2}}},
		LLM:      scriptedLLM{tokens: []string{"We're open ", "9 to 5. ", "Anything else?"}},
		Cfg:      config.RAGConfig{K: 6, RelevanceThreshold: 1.0, ContextTop: 3},
	}
	ctx, gen := sess.StartGeneration()

	var queued []string
	done := make(chan struct{})
	go func() {
		for s := range sess.Queue.Chan() {
			queued = append(queued, s)
		}
		close(done)
	}()

	if err := e.Run(ctx, sess, gen, "run1", "what are your hours", nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	sess.Queue.Close()
	<-done

	if len(queued) == 0 {
		t.Fatalf("expected at least one sentence queued")
	}
	transcript := sess.FullTranscript()
	if len(transcript) != 1 {
		t.Fatalf("expected exactly one history turn appended, got %d", len(transcript))
	}
	if transcript[0].User != "what are your hours" {
		t.Fatalf("unexpected history user turn %+v", transcript[0])
	}
}

func TestEngine_Run_ToolMarkerRoutedToSinkNotSpoken(t *testing.T) {
	sess := newTestSession()
	e := &Engine{
		Embedder: fakeEmbedder{},
		Store:    fakeStore{},
		LLM:      scriptedLLM{tokens: []string{"One moment. ", "[TOOL:transfer_call(to=sales)] ", "Connecting now."}},
		Cfg:      config.RAGConfig{K: 6, RelevanceThreshold: 1.0, ContextTop: 3},
	}
	ctx, gen := sess.StartGeneration()

	var gotMarker Marker
	sink := func(m Marker) { gotMarker = m }

	spokenCh := make(chan []string, 1)
	go func() {
		var spoken []string
		for s := range sess.Queue.Chan() {
			spoken = append(spoken, s)
		}
		spokenCh <- spoken
	}()

	if err := e.Run(ctx, sess, gen, "run1", "transfer me to sales", sink); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	sess.Queue.Close()
	spoken := <-spokenCh

	if gotMarker.Name != "transfer_call" {
		t.Fatalf("expected tool sink invoked with transfer_call, got %+v", gotMarker)
	}
	for _, s := range spoken {
		if contains(s, "[TOOL:") {
			t.Fatalf("expected marker stripped from spoken text, got %q", s)
		}
	}
}

// cancelMidStreamLLM cancels the session after its first token, then
// keeps emitting tokens so the test can confirm the engine stops
// honouring them instead of relying on timing.
type cancelMidStreamLLM struct {
	sess *call.Session
}

func (c cancelMidStreamLLM) Stream(ctx context.Context, systemPrompt, prompt string, onToken call.TokenSink) error {
	onToken("first word ")
	c.sess.Cancel(context.Background())
	for i := 0; i < 50; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		onToken("more words ")
	}
	return nil
}

func TestEngine_Run_StopsPromptlyOnStaleGeneration(t *testing.T) {
	sess := newTestSession()
	e := &Engine{
		Embedder: fakeEmbedder{},
		Store:    fakeStore{},
		LLM:      cancelMidStreamLLM{sess: sess},
		Cfg:      config.RAGConfig{K: 6, RelevanceThreshold: 1.0, ContextTop: 3},
	}
	ctx, gen := sess.StartGeneration()

	if err := e.Run(ctx, sess, gen, "run1", "ramble on", nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(sess.FullTranscript()) != 0 {
		t.Fatalf("expected no history appended for a cancelled generation, got %d turns", len(sess.FullTranscript()))
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
