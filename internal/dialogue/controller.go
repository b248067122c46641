// Package dialogue implements the per-utterance branching logic of the
// Session Controller (spec.md 4.6/4.7): routing a completed utterance
// to Confirm/Deny handling, Goodbye short-circuit, or a full Generation
// round, and executing tool markers as they're observed. It is
// grounded on the teacher's internal/pipeline.Pipeline.runFullPipeline,
// which plays the same "one orchestrator ties ASR/LLM/TTS/tools
// together" role, generalized from its single ASR->LLM->TTS call chain
// into spec.md's richer state machine.
package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/rag"
	"github.com/hubenschmidt/voicecore/internal/trace"
)

// pollInterval is how often the controller checks for TTS drain before
// reverting phase from Responding to Listening.
const pollInterval = 20 * time.Millisecond

// Controller ties one session's Generation engine and tool executor
// together behind a single HandleUtterance entry point.
type Controller struct {
	RAG     *rag.Engine
	Tools   call.ToolExecutor
	History call.HistoryStore // optional; nil disables persistence
	Tracer  *trace.Tracer     // optional; nil-safe, records one run+span per turn
}

// persistLastTurn appends the most recently recorded in-memory turn to
// the durable history store, if one is configured. sess.AppendTurn is
// the single writer of session history, so the last entry is always
// the one the caller just recorded.
func (c *Controller) persistLastTurn(ctx context.Context, sess *call.Session) {
	if c.History == nil {
		return
	}
	recent := sess.RecentHistory(1)
	if len(recent) == 0 {
		return
	}
	t := recent[0]
	if err := c.History.AppendTurn(ctx, sess.CallID, t.User, t.Assistant); err != nil {
		sess.Log.Warn("persist turn failed", "error", err)
	}
}

// HandleUtterance is the Turn Assembler's onUtterance callback. phase
// is already Responding by the time this runs (the Assembler sets it
// before invoking the callback); HandleUtterance is responsible for
// moving the session to AwaitingConfirmation, Ending, or back to
// Listening as the turn concludes.
func (c *Controller) HandleUtterance(sess *call.Session, utterance string) {
	genCtx, gen := sess.StartGeneration()
	started := time.Now()
	runID := c.Tracer.StartRun()

	if pending := sess.TakePendingTool(); pending != nil {
		switch {
		case rag.IsConfirm(utterance):
			result := c.executeTool(genCtx, sess, gen, runID, pending.Name, pending.Params)
			c.Tracer.EndRun(runID, elapsedMs(started), utterance, result, "ok")
			c.settlePhase(sess, gen)
			return
		case rag.IsDeny(utterance):
			reply := "Okay, I won't do that."
			sess.AppendTurn(call.Turn{User: utterance, Assistant: reply, At: time.Now()})
			c.persistLastTurn(genCtx, sess)
			_ = sess.Queue.Push(reply, genCtx.Done())
			c.Tracer.EndRun(runID, elapsedMs(started), utterance, reply, "ok")
			c.settlePhase(sess, gen)
			return
		}
		// Anything else: the pending tool is discarded (already taken)
		// and the utterance is treated as a fresh one below.
	}

	if rag.Classify(utterance) == rag.IntentGoodbye {
		farewell := "Thanks for calling. Goodbye."
		sess.AppendTurn(call.Turn{User: utterance, Assistant: farewell, At: time.Now()})
		c.persistLastTurn(genCtx, sess)
		_ = sess.Queue.Push(farewell, genCtx.Done())
		c.Tracer.EndRun(runID, elapsedMs(started), utterance, farewell, "goodbye")
		sess.SetPhase(call.PhaseEnding)
		return
	}

	onTool := func(m rag.Marker) {
		if m.Confirmed {
			sess.SetPendingTool(&call.PendingTool{Name: m.Name, Params: m.Params, Sentence: m.Raw})
			sess.SetPhase(call.PhaseAwaitingConfirmation)
			return
		}
		c.executeTool(genCtx, sess, gen, runID, m.Name, m.Params)
	}

	err := c.RAG.Run(genCtx, sess, gen, runID, utterance, onTool)
	status, reply := "ok", ""
	if err != nil {
		sess.Log.Warn("generation failed", "error", err)
		status = "error"
	}
	// Run appends a turn (apology included) on every path except one
	// superseded by a newer generation, so persist/read back in both
	// the success and the error case. Run also records its own
	// trace.StageRAGRetrieve/StageLLMStream spans under runID.
	if err == nil || !sess.Stale(gen) {
		c.persistLastTurn(genCtx, sess)
		if recent := sess.RecentHistory(1); len(recent) > 0 {
			reply = recent[0].Assistant
		}
	}
	c.Tracer.EndRun(runID, elapsedMs(started), utterance, reply, status)

	c.settlePhase(sess, gen)
}

// executeTool runs an immediate or just-confirmed tool call and speaks
// its textual result as a synthetic assistant sentence, per spec.md 4.7.
// Returns the tool's result text (empty if the call produced nothing or
// failed) so callers that end a run directly from this path can log it.
func (c *Controller) executeTool(ctx context.Context, sess *call.Session, gen uint64, runID, name string, params map[string]string) string {
	if c.Tools == nil || sess.Stale(gen) {
		return ""
	}
	spanStarted := time.Now()
	result, err := c.Tools.Execute(ctx, name, params)
	status := "ok"
	if err != nil {
		sess.Log.Warn("tool execution failed", "tool", name, "error", err)
		status = "error"
	}
	c.Tracer.RecordSpan(runID, "tool:"+name, spanStarted, elapsedMs(spanStarted), fmt.Sprint(params), result, status, errString(err))
	if err != nil {
		if !sess.Stale(gen) {
			sess.AppendTurn(call.Turn{Assistant: call.ToolFailureSentence, ToolName: name, At: time.Now()})
			c.persistLastTurn(ctx, sess)
			_ = sess.Queue.Push(call.ToolFailureSentence, ctx.Done())
		}
		return ""
	}
	if sess.Stale(gen) {
		return ""
	}
	result = strings.TrimSpace(result)
	if result == "" {
		return ""
	}
	sess.AppendTurn(call.Turn{Assistant: result, ToolName: name, At: time.Now()})
	c.persistLastTurn(ctx, sess)
	_ = sess.Queue.Push(result, ctx.Done())

	if name == "end_call" {
		sess.SetPhase(call.PhaseEnding)
	}
	return result
}

func elapsedMs(since time.Time) float64 {
	return float64(time.Since(since).Microseconds()) / 1000
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// settlePhase waits for the TTS Streamer to drain everything queued
// for this turn, then reverts Responding -> Listening (spec.md 4.6's
// "cancel / TTS drained" edge). A later Confirm/Deny path may already
// have moved the phase to AwaitingConfirmation or Ending; those are
// left alone. Returns promptly if a newer generation has superseded
// this one, since there's nothing left for this turn to settle.
func (c *Controller) settlePhase(sess *call.Session, gen uint64) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	done := sess.Context().Done()
	for {
		if sess.Stale(gen) {
			return
		}
		if sess.Queue.Pending() == 0 {
			break
		}
		select {
		case <-ticker.C:
		case <-done:
			return
		}
	}
	if sess.Phase() == call.PhaseResponding {
		sess.SetPhase(call.PhaseListening)
	}
}
