package ws

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/config"
	"github.com/hubenschmidt/voicecore/internal/turn"
)

type scriptedSTT struct {
	opens   int32
	sendErr error
	events  chan call.STTEvent
}

func (s *scriptedSTT) Open(ctx context.Context) (func([]byte) error, <-chan call.STTEvent, error) {
	atomic.AddInt32(&s.opens, 1)
	return func(frame []byte) error {
		return s.sendErr
	}, s.events, nil
}

func (s *scriptedSTT) Close() error { return nil }

func TestSTTLink_SendFailureReopensAndApologizes(t *testing.T) {
	sess := newTestSession()
	sess.SetPhase(call.PhaseResponding)
	assembler := turn.New(sess, config.TurnConfig{})

	stt := &scriptedSTT{sendErr: errors.New("upstream closed"), events: make(chan call.STTEvent)}
	link, err := newSTTLink(sess.Context(), sess, assembler, func() call.StreamingSTT { return stt })
	if err != nil {
		t.Fatalf("newSTTLink: %v", err)
	}
	defer link.Close()

	link.Send(sess.Context(), []byte{0x01})

	deadline := time.Now().Add(time.Second)
	for sess.Phase() != call.PhaseListening && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sess.Phase() != call.PhaseListening {
		t.Fatalf("expected phase Listening after stt recovery, got %s", sess.Phase())
	}
	if atomic.LoadInt32(&stt.opens) != 2 {
		t.Fatalf("expected exactly one reopen (2 total opens), got %d", stt.opens)
	}

	select {
	case sentence := <-sess.Queue.Chan():
		if sentence != call.ApologySentence {
			t.Fatalf("expected apology sentence queued, got %q", sentence)
		}
	default:
		t.Fatalf("expected apology sentence queued")
	}
}
