// Package tts implements the TTS Streamer (spec.md 4.5): a client
// against the Piper synthesis HTTP API adapted to call.StreamingTTS's
// per-sentence streaming contract, and the single TTS worker loop that
// resamples, mu-law encodes, and paces synthesized audio onto the
// carrier at 20ms-frame cadence with cancellation and backpressure
// handling.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/httpx"
	"github.com/hubenschmidt/voicecore/internal/media"
	"github.com/hubenschmidt/voicecore/internal/metrics"
)

// voiceModels maps an agent_config voice_id to a concrete Piper model,
// kept from the teacher's internal/pipeline/tts.go.
var voiceModels = map[string]string{
	"fast":    "en_US-lessac-low",
	"quality": "en_US-lessac-medium",
	"piper":   "en_US-lessac-low",
	"coqui":   "en_US-lessac-medium",
}

func resolveVoice(voiceID string) string {
	if v, ok := voiceModels[voiceID]; ok {
		return v
	}
	return voiceModels["fast"]
}

// PiperTTS implements call.StreamingTTS. Piper's HTTP API returns one
// complete WAV response per request rather than a true token stream;
// Synthesize decodes it and delivers it to onPCM in resample.go-sized
// chunks so downstream pacing code in Worker sees the same shape it
// would from a genuinely streaming backend — the teacher's one-shot
// Synthesize call, reused for the transport, wrapped in the streaming
// contract the rest of this pipeline is built around.
type PiperTTS struct {
	url    string
	client *http.Client
}

// NewPiperTTS creates a client for the Piper synthesis service.
func NewPiperTTS(url string, poolSize int) *PiperTTS {
	return &PiperTTS{url: url, client: httpx.NewPooledClient(poolSize, 30*time.Second)}
}

// chunkSamples is how many 16kHz samples (20ms) each onPCM call carries.
const chunkSamples = 320

// Synthesize implements call.StreamingTTS.
func (p *PiperTTS) Synthesize(ctx context.Context, text, voiceID string, onPCM call.PCMSink) error {
	start := time.Now()

	body, err := json.Marshal(ttsRequest{Text: text, Voice: resolveVoice(voiceID)})
	if err != nil {
		return fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.url+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("tts", "http").Inc()
		return fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("tts", "status").Inc()
		return fmt.Errorf("tts status %d", resp.StatusCode)
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return fmt.Errorf("read tts response: %w", err)
	}

	samples, rate, err := media.ParseWAV(buf.Bytes())
	if err != nil {
		metrics.Errors.WithLabelValues("tts", "decode").Inc()
		return fmt.Errorf("decode tts wav: %w", err)
	}
	if rate != 16000 {
		samples = media.Resample16(samples, rate, 16000)
	}

	metrics.StageDuration.WithLabelValues("tts_synthesize").Observe(time.Since(start).Seconds())

	for i := 0; i < len(samples); i += chunkSamples {
		end := i + chunkSamples
		if end > len(samples) {
			end = len(samples)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := onPCM(samples[i:end]); err != nil {
			return err
		}
	}
	return nil
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}
