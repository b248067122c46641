package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hubenschmidt/voicecore/internal/media"
)

func loudFrame(t *testing.T) []byte {
	t.Helper()
	samples := make([]int16, 160)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 8000
		} else {
			samples[i] = -8000
		}
	}
	return media.EncodeUlaw(samples)
}

func silentFrame() []byte {
	return media.EncodeUlaw(make([]int16, 160))
}

func TestWhisperSTT_EmitsFinalAfterSilence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hello there"})
	}))
	defer srv.Close()

	cfg := DefaultEndpointConfig()
	cfg.SilenceAfter = 20 * time.Millisecond
	cfg.MinSpeechMs = 0
	client := NewWhisperSTT(srv.URL, "", 2, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	send, events, err := client.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	loud := loudFrame(t)
	for i := 0; i < 5; i++ {
		if err := send(loud); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	time.Sleep(30 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := send(silentFrame()); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	select {
	case ev := <-events:
		if !ev.IsFinal || ev.Text != "hello there" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for final event")
	}
}
