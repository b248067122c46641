// Package turn implements the Turn Assembler (spec.md 4.3): it folds
// incoming STT partial/final events into a call.TurnBuffer and runs the
// end-of-turn gate ticker that decides when an utterance is complete
// and ready for Generation. The ticker loop is grounded on the
// teacher's internal/ws/handler.go read-loop-plus-select shape,
// generalized from a single websocket reader into an independently
// clocked gate.
package turn

import (
	"context"
	"time"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/config"
)

// GateTick is at most 50ms per spec.md 4.3.
const GateTick = 50 * time.Millisecond

// Assembler owns one Session's TurnBuffer and fires onUtterance exactly
// once per completed turn.
type Assembler struct {
	sess *call.Session
	cfg  config.TurnConfig
}

// New creates an Assembler bound to sess.
func New(sess *call.Session, cfg config.TurnConfig) *Assembler {
	return &Assembler{sess: sess, cfg: cfg}
}

// OnPartial folds a non-final STT event into the buffer.
func (a *Assembler) OnPartial(text string, now time.Time) {
	a.sess.Turn.ApplyPartial(text, now)
}

// OnFinal folds a final STT event into the buffer.
func (a *Assembler) OnFinal(text string, now time.Time) {
	a.sess.Turn.ApplyFinal(text, now)
}

// ready reports whether the current buffer satisfies the end-of-turn
// gate of spec.md 4.3: either is_final, or the interim fast-path
// (interim_processing_enabled and len(text) >= interim_min_length),
// AND the silence gates have elapsed.
func (a *Assembler) ready(now time.Time) bool {
	b := &a.sess.Turn
	if b.Text == "" {
		return false
	}
	finalLike := b.IsFinal
	if !finalLike && a.cfg.InterimProcessingEnable && len(b.Text) >= a.cfg.InterimMinLength {
		finalLike = true
	}
	if !finalLike {
		return false
	}
	silence := time.Duration(a.cfg.SilenceThresholdSec * float64(time.Second))
	if now.Sub(b.LastSpeechAt) < silence {
		return false
	}
	if now.Sub(b.LastPartialAt) < 300*time.Millisecond {
		return false
	}
	return true
}

// Run blocks, ticking the end-of-turn gate until ctx is cancelled.
// Each time the gate fires, onUtterance is invoked with the assembled
// text and the buffer is reset, then the session phase moves to
// Responding — both performed before onUtterance returns, so the next
// partial/final event never races a half-reset buffer.
func (a *Assembler) Run(ctx context.Context, onUtterance func(utterance string)) {
	ticker := time.NewTicker(GateTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			// Fires in Listening (ordinary utterance) and
			// AwaitingConfirmation (the user's Confirm/Deny reply),
			// per spec.md 4.6 — AwaitingConfirmation's user reply
			// reaches Listening directly, without a RAG round trip.
			if p := a.sess.Phase(); p != call.PhaseListening && p != call.PhaseAwaitingConfirmation {
				continue
			}
			if !a.ready(now) {
				continue
			}
			utterance := a.sess.Turn.Text
			a.sess.Turn.Reset()
			a.sess.SetPhase(call.PhaseResponding)
			onUtterance(utterance)
		}
	}
}
