package tts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/config"
)

type scriptedSynth struct {
	chunks [][]int16
}

func (s scriptedSynth) Synthesize(ctx context.Context, text, voiceID string, onPCM call.PCMSink) error {
	for _, c := range s.chunks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := onPCM(c); err != nil {
			return err
		}
	}
	return nil
}

type recordingTransport struct {
	mu     sync.Mutex
	frames []string
}

func (r *recordingTransport) SendMedia(ctx context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, string(payload))
	return nil
}
func (r *recordingTransport) SendClear(ctx context.Context) error { return nil }

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

type blockingTransport struct{}

func (blockingTransport) SendMedia(ctx context.Context, payload []byte) error {
	<-ctx.Done()
	return ctx.Err()
}
func (blockingTransport) SendClear(ctx context.Context) error { return nil }

type failingTransport struct{}

func (failingTransport) SendMedia(ctx context.Context, payload []byte) error {
	return errors.New("carrier unreachable")
}
func (failingTransport) SendClear(ctx context.Context) error { return nil }

func newSession(transport call.MediaTransport) *call.Session {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return call.New(context.Background(), "c1", "s1", config.AgentConfig{}, config.Config{}, transport, logger)
}

func TestWorker_SpeaksQueuedSentenceAsFrames(t *testing.T) {
	transport := &recordingTransport{}
	sess := newSession(transport)
	synth := scriptedSynth{chunks: [][]int16{make([]int16, 320), make([]int16, 320)}}
	w := &Worker{Synth: synth, Transport: transport}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx, sess, "fast")
		close(done)
	}()

	_ = sess.Queue.TryPush("hello there")
	time.Sleep(50 * time.Millisecond)
	sess.Queue.Close()
	cancel()
	<-done

	if transport.count() == 0 {
		t.Fatalf("expected at least one media frame sent")
	}
}

func TestWorker_AbortsOnBackpressureTimeout(t *testing.T) {
	sess := newSession(blockingTransport{})
	synth := scriptedSynth{chunks: [][]int16{make([]int16, 320)}}
	w := &Worker{Synth: synth, Transport: blockingTransport{}}

	start := time.Now()
	err := w.speak(context.Background(), sess, "hello", "fast")
	elapsed := time.Since(start)

	if err == nil {
		t.Fatalf("expected backpressure timeout error")
	}
	if elapsed > 2*time.Second {
		t.Fatalf("expected prompt abort near BackpressureTimeout, took %v", elapsed)
	}
}

func TestWorker_TransportSendErrorCancelsLikeBargeIn(t *testing.T) {
	sess := newSession(failingTransport{})
	sess.SetPhase(call.PhaseResponding)
	synth := scriptedSynth{chunks: [][]int16{make([]int16, 320)}}
	w := &Worker{Synth: synth, Transport: failingTransport{}}

	if err := w.speak(context.Background(), sess, "hello", "fast"); err == nil {
		t.Fatalf("expected transport send error")
	}

	if sess.Phase() != call.PhaseListening {
		t.Fatalf("expected phase reverted to Listening after cancel, got %s", sess.Phase())
	}
	if sess.FailureStatus() != "" {
		t.Fatalf("expected no failure escalation on a single transport error")
	}
}

func TestWorker_RepeatedTransportSendErrorEscalatesToFailed(t *testing.T) {
	sess := newSession(failingTransport{})
	synth := scriptedSynth{chunks: [][]int16{make([]int16, 320)}}
	w := &Worker{Synth: synth, Transport: failingTransport{}}

	_ = w.speak(context.Background(), sess, "hello", "fast")
	_ = w.speak(context.Background(), sess, "again", "fast")

	if sess.FailureStatus() != "failed" {
		t.Fatalf("expected session escalated to failed status after repeated transport errors, got %q", sess.FailureStatus())
	}
	select {
	case <-sess.Context().Done():
	default:
		t.Fatalf("expected session context cancelled after escalation")
	}
}
