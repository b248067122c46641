// Package stt adapts the teacher's one-shot whisper.cpp client into the
// streaming call.StreamingSTT contract via a simple energy-based
// endpointer: audio accumulates while speech is detected, and the
// buffered utterance is sent to whisper.cpp as soon as silence holds
// long enough, emitting a single final STTEvent per utterance.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/httpx"
	"github.com/hubenschmidt/voicecore/internal/media"
	"github.com/hubenschmidt/voicecore/internal/metrics"
)

// EndpointConfig tunes the in-adapter speech/silence detector.
type EndpointConfig struct {
	MinEnergy    float64
	SilenceAfter time.Duration
	MinSpeechMs  int64
}

// DefaultEndpointConfig mirrors the interrupt detector's own defaults,
// since both are deciding the same "is this frame speech" question.
func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{MinEnergy: 500, SilenceAfter: 800 * time.Millisecond, MinSpeechMs: 100}
}

// WhisperSTT implements call.StreamingSTT against a whisper.cpp server's
// one-shot /inference endpoint (teacher's internal/pipeline/asr.go).
type WhisperSTT struct {
	url    string
	prompt string
	client *http.Client
	cfg    EndpointConfig
}

// NewWhisperSTT creates a client pointing at a whisper.cpp server URL.
func NewWhisperSTT(url, prompt string, poolSize int, cfg EndpointConfig) *WhisperSTT {
	return &WhisperSTT{url: url, prompt: prompt, client: httpx.NewPooledClient(poolSize, 30*time.Second), cfg: cfg}
}

// Open starts one recognition session, returning a frame sink and the
// event channel. Both are only valid until Close or ctx cancellation.
func (w *WhisperSTT) Open(ctx context.Context) (func(frame []byte) error, <-chan call.STTEvent, error) {
	events := make(chan call.STTEvent, 4)
	buf := make([]float32, 0, 16000*10)
	var speechStart time.Time
	var lastSpeech time.Time

	send := func(frame []byte) error {
		samples16 := media.DecodeUlawPCM16(frame)
		energy := media.RMSEnergy(samples16)
		now := time.Now()

		above := energy > w.cfg.MinEnergy
		if above {
			if speechStart.IsZero() {
				speechStart = now
			}
			lastSpeech = now
			buf = append(buf, media.PCM16ToFloat32(samples16)...)
			return nil
		}

		if speechStart.IsZero() {
			return nil
		}
		if now.Sub(lastSpeech) < w.cfg.SilenceAfter {
			buf = append(buf, media.PCM16ToFloat32(samples16)...)
			return nil
		}
		if now.Sub(speechStart) < time.Duration(w.cfg.MinSpeechMs)*time.Millisecond {
			buf = buf[:0]
			speechStart = time.Time{}
			return nil
		}

		utterance := buf
		buf = make([]float32, 0, 16000*10)
		speechStart = time.Time{}

		text, err := w.transcribe(ctx, utterance)
		if err != nil {
			metrics.Errors.WithLabelValues("stt", "transcribe").Inc()
			return err
		}
		if text == "" {
			return nil
		}
		select {
		case events <- call.STTEvent{Text: text, IsFinal: true}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	go func() {
		<-ctx.Done()
		close(events)
	}()

	return send, events, nil
}

// Close is a no-op: all per-session state lives in the closures Open
// returns, and the context passed to Open owns their lifetime.
func (w *WhisperSTT) Close() error { return nil }

func (w *WhisperSTT) transcribe(ctx context.Context, samples []float32) (string, error) {
	start := time.Now()
	body, contentType, err := buildMultipartAudio(samples)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url+"/inference", body)
	if err != nil {
		return "", fmt.Errorf("stt: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt: request: %w: %w", call.ErrTransientUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("stt: status %d: %s: %w", resp.StatusCode, string(respBody), call.ErrTransientUpstream)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("stt: decode response: %w", err)
	}
	metrics.StageDuration.WithLabelValues("stt_transcribe").Observe(time.Since(start).Seconds())
	return out.Text, nil
}

func buildMultipartAudio(samples []float32) (*bytes.Buffer, string, error) {
	wavData := media.SamplesToWAV(samples, 16000)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("stt: create form file: %w", err)
	}
	if _, err = part.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("stt: write wav data: %w", err)
	}
	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("stt: close writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}
