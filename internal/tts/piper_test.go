package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hubenschmidt/voicecore/internal/media"
)

func TestPiperTTS_SynthesizeDecodesWAVIntoChunks(t *testing.T) {
	samples := make([]float32, 1600) // 100ms at 16kHz
	for i := range samples {
		samples[i] = 0.1
	}
	wav := media.SamplesToWAV(samples, 16000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text  string `json:"text"`
			Voice string `json:"voice"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Voice == "" {
			t.Errorf("expected a resolved voice model, got empty")
		}
		w.Write(wav)
	}))
	defer srv.Close()

	client := NewPiperTTS(srv.URL, 2)

	var total int
	err := client.Synthesize(context.Background(), "hello", "fast", func(chunk []int16) error {
		total += len(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if total != 1600 {
		t.Fatalf("expected 1600 total samples delivered, got %d", total)
	}
}

func TestResolveVoice_FallsBackToFast(t *testing.T) {
	if resolveVoice("unknown") != voiceModels["fast"] {
		t.Fatalf("expected fallback to fast voice")
	}
	if resolveVoice("quality") != voiceModels["quality"] {
		t.Fatalf("expected quality voice to resolve directly")
	}
}
