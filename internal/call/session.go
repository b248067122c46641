package call

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hubenschmidt/voicecore/internal/config"
)

// Turn is one finalised (user, assistant) exchange.
type Turn struct {
	User      string
	Assistant string
	ToolName  string // set when the assistant turn was a tool result
	At        time.Time
}

// PendingTool is a confirmed-form tool marker stashed while the Session
// awaits the user's Confirm/Deny.
type PendingTool struct {
	Name   string
	Params map[string]string
	// Sentence is the marker's raw text (rag.Marker.Raw) as it appeared
	// in the LLM output.
	Sentence string
}

// Session holds all per-call mutable state and workers for one call,
// per spec.md 3. It is created on media-stream start and destroyed on
// stop/failure.
type Session struct {
	CallID   string
	StreamID string

	Agent config.AgentConfig
	Cfg   config.Config

	Log *slog.Logger

	mu      sync.Mutex
	phase   Phase
	history []Turn

	Turn   TurnBuffer
	Energy EnergyStats
	Queue  *SentenceQueue

	pending *PendingTool

	// cancelGen is the edge-triggered cancel signal of spec.md 5: bumped
	// once per cancel, compared at every suspension point by workers
	// that captured the generation they started under.
	cancelGen uint64

	// genCancel aborts the currently running Generation/TTS task,
	// enforcing spec.md 3's "at most one Generation/TTS task per
	// session" invariant: StartGeneration cancels any prior one before
	// installing the new one.
	genCancel context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc

	Transport MediaTransport

	closeOnce sync.Once

	// forcedStatus, once set, overrides whatever status the caller of
	// Cleanup was about to use. Set by Fail when a worker detects an
	// unrecoverable failure (spec.md 4.8) before the session loop
	// notices the context cancellation on its own.
	forcedStatus string
}

// New creates a Session in phase Greeting, ready to run.
func New(parent context.Context, callID, streamID string, agent config.AgentConfig, cfg config.Config, transport MediaTransport, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		CallID:    callID,
		StreamID:  streamID,
		Agent:     agent,
		Cfg:       cfg,
		Log:       logger.With("call_id", callID),
		phase:     PhaseGreeting,
		Queue:     NewSentenceQueue(8),
		ctx:       ctx,
		cancel:    cancel,
		Transport: transport,
	}
	s.Energy.Baseline = 50
	return s
}

// Context is the whole-call context; cancelled on cleanup.
func (s *Session) Context() context.Context { return s.ctx }

// Phase returns the current phase under lock.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SetPhase transitions the phase under lock.
func (s *Session) SetPhase(p Phase) {
	s.mu.Lock()
	old := s.phase
	s.phase = p
	s.mu.Unlock()
	if old != p {
		s.Log.Debug("phase transition", "from", old, "to", p)
	}
}

// StartGeneration opens a fresh cancellable context for one
// Generation+TTS task and bumps the edge-triggered counter. Any
// previously running task is cancelled first, enforcing the
// at-most-one-generator invariant even if a caller forgets to wait for
// the previous task to finish. Returns the context workers should
// select on and the generation number they should pass to Stale.
func (s *Session) StartGeneration() (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.genCancel != nil {
		s.genCancel()
	}
	genCtx, cancel := context.WithCancel(s.ctx)
	s.genCancel = cancel
	gen := atomic.AddUint64(&s.cancelGen, 1)
	return genCtx, gen
}

// CancelGen returns the current generation counter value.
func (s *Session) CancelGen() uint64 {
	return atomic.LoadUint64(&s.cancelGen)
}

// BumpCancelGen edge-triggers a new cancel signal and returns the new
// generation. Workers compare their captured generation against
// CancelGen() at every suspension point; a mismatch means "stop now".
func (s *Session) BumpCancelGen() uint64 {
	return atomic.AddUint64(&s.cancelGen, 1)
}

// Stale reports whether gen is no longer the current generation.
func (s *Session) Stale(gen uint64) bool {
	return atomic.LoadUint64(&s.cancelGen) != gen
}

// AppendTurn records a finalised (user, assistant) exchange. History
// append for a turn happens-before the next turn's Generation start
// because it is called synchronously at the end of rag.Engine.Run
// (driven by dialogue.Controller) before the Turn Assembler is re-armed.
func (s *Session) AppendTurn(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, t)
}

// RecentHistory returns up to the last n turns, oldest first.
func (s *Session) RecentHistory(n int) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) <= n {
		out := make([]Turn, len(s.history))
		copy(out, s.history)
		return out
	}
	out := make([]Turn, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// FullTranscript returns every turn recorded, in order.
func (s *Session) FullTranscript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// SetPendingTool stashes a confirmed-form tool awaiting user confirmation.
func (s *Session) SetPendingTool(p *PendingTool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = p
}

// TakePendingTool returns and clears the stashed tool, or nil.
func (s *Session) TakePendingTool() *PendingTool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = nil
	return p
}

// Cancel implements the barge-in cancel semantics of spec.md 4.2: bump
// the edge-triggered generation so Generation/TTS workers observe
// staleness at their next suspension point, send clear twice 10ms
// apart (carriers have been seen to drop a lone clear), drain any
// queued sentences, rearm phase to Listening and reset the turn
// buffer. Safe to call from the Interruption Detector's goroutine.
func (s *Session) Cancel(ctx context.Context) {
	s.mu.Lock()
	if s.genCancel != nil {
		s.genCancel()
		s.genCancel = nil
	}
	s.mu.Unlock()
	s.BumpCancelGen()

	if s.Transport != nil {
		if err := s.Transport.SendClear(ctx); err != nil {
			s.Log.Warn("send clear", "error", err)
		}
		time.Sleep(10 * time.Millisecond)
		if err := s.Transport.SendClear(ctx); err != nil {
			s.Log.Warn("send clear (second)", "error", err)
		}
	}

	dropped := s.Queue.Drain()
	if dropped > 0 {
		s.Log.Debug("drained queued sentences on cancel", "count", dropped)
	}

	s.Turn.Reset()
	s.SetPhase(PhaseListening)
}

// Fail marks the session to terminate with the given terminal status
// (spec.md 4.8's "terminate session with status failed") and cancels
// its context so every worker observes shutdown at its next
// suspension point. The status sticks the first time it is set; later
// calls (or the normal disconnect path) cannot soften it.
func (s *Session) Fail(status string) {
	s.mu.Lock()
	if s.forcedStatus == "" {
		s.forcedStatus = status
	}
	s.mu.Unlock()
	s.cancel()
}

// FailureStatus returns the status set by Fail, or "" if Fail was
// never called.
func (s *Session) FailureStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forcedStatus
}

// Cleanup runs exactly once on disconnect or fatal error: it cancels
// every outstanding worker via the session context, persists the
// transcript with the given terminal status, and fires the
// call.ended webhook. status is one of "completed", "disconnected",
// "failed", "timeout" per spec.md 6.
func (s *Session) Cleanup(ctx context.Context, status string, history HistoryStore, hooks Webhooks) {
	s.closeOnce.Do(func() {
		if fs := s.FailureStatus(); fs != "" {
			status = fs
		}
		s.cancel()

		if history != nil {
			if err := history.Finalize(ctx, s.CallID, status); err != nil {
				s.Log.Warn("finalize history", "error", err)
			}
		}
		if hooks != nil {
			hooks.Fire(ctx, "call.ended", map[string]any{
				"call_id": s.CallID,
				"status":  status,
				"turns":   len(s.FullTranscript()),
			})
		}
		s.Log.Info("session closed", "status", status)
	})
}

// Close cancels the session context exactly once, without persisting
// or firing webhooks. Prefer Cleanup on the normal disconnect path.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
	})
}
