package call

import (
	"context"
	"log/slog"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hubenschmidt/voicecore/internal/config"
)

type fakeTransport struct {
	clears int32
}

func (f *fakeTransport) SendMedia(ctx context.Context, payload []byte) error { return nil }
func (f *fakeTransport) SendClear(ctx context.Context) error {
	atomic.AddInt32(&f.clears, 1)
	return nil
}

type fakeHistory struct {
	mu       sync.Mutex
	finalize int
	status   string
}

func (f *fakeHistory) AppendTurn(ctx context.Context, callID, user, assistant string) error {
	return nil
}
func (f *fakeHistory) Finalize(ctx context.Context, callID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalize++
	f.status = status
	return nil
}

type fakeWebhooks struct {
	fired int32
}

func (f *fakeWebhooks) Fire(ctx context.Context, event string, payload map[string]any) {
	atomic.AddInt32(&f.fired, 1)
}

func newTestSession(transport MediaTransport) *Session {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(context.Background(), "call-1", "stream-1", config.AgentConfig{}, config.Config{}, transport, logger)
}

func TestSession_CancelSendsTwoClearsAndResets(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestSession(tr)
	s.SetPhase(PhaseResponding)
	s.Turn.ApplyFinal("hello there", time.Now())
	_ = s.Queue.TryPush("a sentence")

	gen0 := s.CancelGen()
	s.Cancel(context.Background())

	if tr.clears != 2 {
		t.Fatalf("expected 2 clears, got %d", tr.clears)
	}
	if s.Phase() != PhaseListening {
		t.Fatalf("expected phase Listening after cancel, got %s", s.Phase())
	}
	if s.Turn.Text != "" {
		t.Fatalf("expected turn buffer reset, got %q", s.Turn.Text)
	}
	if s.CancelGen() == gen0 {
		t.Fatalf("expected cancel generation to advance")
	}
}

func TestSession_CancelAdvancesGenerationOnEveryCall(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestSession(tr)
	s.SetPhase(PhaseResponding)

	gen0 := s.CancelGen()
	s.Cancel(context.Background())
	gen1 := s.CancelGen()
	s.Cancel(context.Background())
	gen2 := s.CancelGen()

	if gen1 <= gen0 || gen2 <= gen1 {
		t.Fatalf("expected strictly increasing generations, got %d -> %d -> %d", gen0, gen1, gen2)
	}
}

func TestSession_HistoryWindowAndRecent(t *testing.T) {
	s := newTestSession(&fakeTransport{})
	for i := 0; i < 10; i++ {
		s.AppendTurn(Turn{User: "u", Assistant: "a", At: time.Now()})
	}
	if len(s.FullTranscript()) != 10 {
		t.Fatalf("expected full transcript of 10, got %d", len(s.FullTranscript()))
	}
	recent := s.RecentHistory(6)
	if len(recent) != 6 {
		t.Fatalf("expected 6 recent turns, got %d", len(recent))
	}
}

func TestSession_CleanupRunsOnce(t *testing.T) {
	s := newTestSession(&fakeTransport{})
	hist := &fakeHistory{}
	hooks := &fakeWebhooks{}

	s.Cleanup(context.Background(), "completed", hist, hooks)
	s.Cleanup(context.Background(), "completed", hist, hooks)

	if hist.finalize != 1 {
		t.Fatalf("expected Finalize called exactly once, got %d", hist.finalize)
	}
	if hist.status != "completed" {
		t.Fatalf("expected status completed, got %q", hist.status)
	}
	if hooks.fired != 1 {
		t.Fatalf("expected webhook fired exactly once, got %d", hooks.fired)
	}
	select {
	case <-s.Context().Done():
	default:
		t.Fatalf("expected session context cancelled after cleanup")
	}
}

func TestSession_FailOverridesCleanupStatus(t *testing.T) {
	s := newTestSession(&fakeTransport{})
	hist := &fakeHistory{}
	hooks := &fakeWebhooks{}

	s.Fail("failed")
	s.Fail("timeout") // first call wins

	select {
	case <-s.Context().Done():
	default:
		t.Fatalf("expected Fail to cancel the session context")
	}

	s.Cleanup(context.Background(), "completed", hist, hooks)

	if hist.status != "failed" {
		t.Fatalf("expected Fail's status to override Cleanup's, got %q", hist.status)
	}
}

func TestSession_PendingTool(t *testing.T) {
	s := newTestSession(&fakeTransport{})
	if s.TakePendingTool() != nil {
		t.Fatalf("expected no pending tool initially")
	}
	s.SetPendingTool(&PendingTool{Name: "transfer_call", Params: map[string]string{"to": "sales"}})
	p := s.TakePendingTool()
	if p == nil || p.Name != "transfer_call" {
		t.Fatalf("expected pending tool transfer_call, got %+v", p)
	}
	if s.TakePendingTool() != nil {
		t.Fatalf("expected pending tool cleared after take")
	}
}
