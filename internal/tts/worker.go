package tts

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/media"
	"github.com/hubenschmidt/voicecore/internal/metrics"
)

// BackpressureTimeout is the max time Worker waits for the transport
// to accept one media frame before treating the sentence as cancelled
// (spec.md 5).
const BackpressureTimeout = 500 * time.Millisecond

// frameSamples is 20ms of 8kHz audio, the minimum chunk size spec.md
// 4.5 requires on the outbound carrier frame.
const frameSamples = 160

// sendFailureWindow is spec.md 4.8's "repeated within 1s" threshold for
// escalating a MediaTransport send failure into a terminal one.
const sendFailureWindow = 1 * time.Second

// Worker is the single per-session TTS consumer: it drains
// sess.Queue, synthesizes each sentence, resamples 16kHz->8kHz,
// mu-law encodes, and pushes carrier media frames, checking for
// cancellation between every frame.
type Worker struct {
	Synth     call.StreamingTTS
	Transport call.MediaTransport

	mu           sync.Mutex
	lastSendFail time.Time
}

// onTransportFailure implements spec.md 4.8's MediaTransport send-error
// row: cancel the current response exactly as a barge-in would, then,
// if another send failure lands within sendFailureWindow of the last
// one, give up on the call entirely.
func (w *Worker) onTransportFailure(sess *call.Session) {
	w.mu.Lock()
	now := time.Now()
	repeat := !w.lastSendFail.IsZero() && now.Sub(w.lastSendFail) <= sendFailureWindow
	w.lastSendFail = now
	w.mu.Unlock()

	sess.Cancel(sess.Context())
	if repeat {
		sess.Log.Error("repeated mediatransport send failure, ending call")
		metrics.Errors.WithLabelValues("tts", "transport_fatal").Inc()
		sess.Fail("failed")
	}
}

// Run blocks, consuming sentences from sess.Queue until it is closed
// or ctx (the whole-session context) is cancelled. A single barge-in
// cancel only needs to stop the in-flight sentence; speak does so by
// checking sess.Stale against the cancel generation it captured when
// the sentence started — Run does not itself call sess.Cancel.
func (w *Worker) Run(ctx context.Context, sess *call.Session, voiceID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case sentence, ok := <-sess.Queue.Chan():
			if !ok {
				return
			}
			if err := w.speak(ctx, sess, sentence, voiceID); err != nil {
				sess.Log.Warn("tts sentence aborted", "error", err)
			}
			sess.Queue.Done()
		}
	}
}

func (w *Worker) speak(ctx context.Context, sess *call.Session, sentence, voiceID string) error {
	start := time.Now()
	gen := sess.CancelGen()
	err := w.Synth.Synthesize(ctx, sentence, voiceID, func(samples16k []int16) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		samples8k := media.Resample16(samples16k, 16000, 8000)
		for i := 0; i < len(samples8k); i += frameSamples {
			if sess.Stale(gen) {
				return context.Canceled
			}
			end := i + frameSamples
			if end > len(samples8k) {
				end = len(samples8k)
			}
			frame := samples8k[i:end]
			ulaw := media.EncodeUlaw(frame)
			payload := []byte(base64.StdEncoding.EncodeToString(ulaw))

			sendCtx, cancel := context.WithTimeout(ctx, BackpressureTimeout)
			sendErr := w.Transport.SendMedia(sendCtx, payload)
			cancel()
			if sendErr != nil {
				metrics.Errors.WithLabelValues("tts", "backpressure").Inc()
				w.onTransportFailure(sess)
				return sendErr
			}
		}
		return nil
	})
	metrics.StageDuration.WithLabelValues("tts_sentence").Observe(time.Since(start).Seconds())
	return err
}
