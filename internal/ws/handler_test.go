package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/config"
	"github.com/hubenschmidt/voicecore/internal/interrupt"
	"github.com/hubenschmidt/voicecore/internal/media"
)

type noopTransport struct{}

func (noopTransport) SendMedia(ctx context.Context, payload []byte) error { return nil }
func (noopTransport) SendClear(ctx context.Context) error                 { return nil }

func newTestSession() *call.Session {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return call.New(context.Background(), "c1", "s1", config.AgentConfig{}, config.Config{}, noopTransport{}, logger)
}

func TestHandleFrame_StopReturnsStopSignal(t *testing.T) {
	h := &Handler{}
	sess := newTestSession()
	det := interrupt.NewDetector(interrupt.DefaultConfig(), 50)
	armed := false

	data, _ := json.Marshal(inboundEvent{Event: "stop"})
	if got := h.handleFrame(sess, func([]byte) error { return nil }, det, &armed, data); got != "stop" {
		t.Fatalf("expected stop signal, got %q", got)
	}
}

func TestHandleFrame_MalformedJSONIgnored(t *testing.T) {
	h := &Handler{}
	sess := newTestSession()
	det := interrupt.NewDetector(interrupt.DefaultConfig(), 50)
	armed := false

	if got := h.handleFrame(sess, func([]byte) error { return nil }, det, &armed, []byte("not json")); got != "" {
		t.Fatalf("expected no-op on malformed frame, got %q", got)
	}
}

func TestHandleMedia_ForwardsDecodedFrameToSTT(t *testing.T) {
	h := &Handler{}
	sess := newTestSession()
	det := interrupt.NewDetector(interrupt.DefaultConfig(), 50)
	armed := false

	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = 1000
	}
	ulaw := media.EncodeUlaw(samples)
	b64 := base64.StdEncoding.EncodeToString(ulaw)

	var gotFrame []byte
	sttSend := func(frame []byte) error {
		gotFrame = frame
		return nil
	}

	h.handleMedia(sess, sttSend, det, &armed, &mediaPayload{Payload: b64})

	if len(gotFrame) != len(ulaw) {
		t.Fatalf("expected %d bytes forwarded to stt, got %d", len(ulaw), len(gotFrame))
	}
}

func TestHandleMedia_ArmsDetectorOnlyWhileResponding(t *testing.T) {
	h := &Handler{}
	sess := newTestSession()
	sess.SetPhase(call.PhaseListening)
	det := interrupt.NewDetector(interrupt.DefaultConfig(), 50)
	armed := false

	ulaw := media.EncodeUlaw(make([]int16, 160))
	b64 := base64.StdEncoding.EncodeToString(ulaw)

	h.handleMedia(sess, func([]byte) error { return nil }, det, &armed, &mediaPayload{Payload: b64})
	if armed {
		t.Fatalf("detector should not be armed while Listening")
	}

	sess.SetPhase(call.PhaseResponding)
	h.handleMedia(sess, func([]byte) error { return nil }, det, &armed, &mediaPayload{Payload: b64})
	if !armed {
		t.Fatalf("detector should be armed while Responding")
	}
}
