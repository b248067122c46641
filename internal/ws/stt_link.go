package ws

import (
	"context"
	"sync"
	"time"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/turn"
)

// sttLink owns a session's one live StreamingSTT connection and
// implements spec.md 4.8's STT-upstream-error recovery: a send failure
// closes and reopens the connection once, forwarding events to the
// Turn Assembler as before, and — whether or not the reopen
// succeeded — speaks the canonical apology and returns the call to
// Listening, since a dropped recognition stream mid-turn always
// surprises the caller.
type sttLink struct {
	newSTT    func() call.StreamingSTT
	sess      *call.Session
	assembler *turn.Assembler

	mu   sync.Mutex
	stt  call.StreamingSTT
	send func([]byte) error
}

// newSTTLink opens the first connection; a failure here is still fatal
// to the call, same as before this recovery path existed.
func newSTTLink(ctx context.Context, sess *call.Session, assembler *turn.Assembler, newSTT func() call.StreamingSTT) (*sttLink, error) {
	l := &sttLink{newSTT: newSTT, sess: sess, assembler: assembler}
	if err := l.open(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *sttLink) open(ctx context.Context) error {
	stt := l.newSTT()
	send, events, err := stt.Open(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.stt = stt
	l.send = send
	l.mu.Unlock()
	go l.forward(ctx, events)
	return nil
}

func (l *sttLink) forward(ctx context.Context, events <-chan call.STTEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			now := time.Now()
			if ev.IsFinal {
				l.assembler.OnFinal(ev.Text, now)
			} else {
				l.assembler.OnPartial(ev.Text, now)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Send writes one mu-law frame upstream. It never returns an error:
// a send failure is recovered in place (close, reopen once, apologize,
// revert to Listening) rather than handed back for the caller to act
// on, per spec.md 4.8.
func (l *sttLink) Send(ctx context.Context, frame []byte) {
	l.mu.Lock()
	stt, send := l.stt, l.send
	l.mu.Unlock()
	if send == nil {
		return
	}
	if err := send(frame); err == nil {
		return
	}
	l.sess.Log.Warn("stt upstream send failed, reopening")
	_ = stt.Close()
	if err := l.open(ctx); err != nil {
		l.sess.Log.Error("stt reopen failed", "error", err)
	}
	l.sess.AppendTurn(call.Turn{Assistant: call.ApologySentence, At: time.Now()})
	_ = l.sess.Queue.Push(call.ApologySentence, ctx.Done())
	l.sess.SetPhase(call.PhaseListening)
}

// Close releases the current underlying connection.
func (l *sttLink) Close() error {
	l.mu.Lock()
	stt := l.stt
	l.mu.Unlock()
	if stt == nil {
		return nil
	}
	return stt.Close()
}
