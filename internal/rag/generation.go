// Package rag implements the Retrieval + Generation component (spec.md
// 4.4): intent classification, vector retrieval, prompt assembly,
// streaming LLM generation with sentence-boundary pipelining into the
// session's SentenceQueue, and tool-marker scanning.
package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/config"
	"github.com/hubenschmidt/voicecore/internal/media"
	"github.com/hubenschmidt/voicecore/internal/metrics"
	"github.com/hubenschmidt/voicecore/internal/trace"
)

// ToolSink receives a recognized marker as it is scanned out of the
// LLM stream, immediately for [TOOL:...] and stashed-pending for
// [CONFIRM_TOOL:...] (the caller decides which by Marker.Confirmed).
type ToolSink func(m Marker)

// Engine bundles the collaborators one Generation task needs.
type Engine struct {
	Embedder call.Embedder
	Store    call.VectorStore
	LLM      call.LLM
	Cfg      config.RAGConfig
	Tracer   *trace.Tracer // optional; nil-safe, records rag_retrieve/llm_stream spans
}

// Run executes one full Generation task for utterance: classify,
// retrieve (skipped for Greeting/Goodbye), assemble the prompt, stream
// the completion, splitting into sentences and pushing each onto
// sess.Queue for the TTS Streamer, scanning and stripping tool
// markers along the way. It checks sess.Stale(gen) at every
// suspension point so a barge-in cancels generation promptly per
// spec.md 5. On a clean finish it appends the full (user, assistant)
// turn to history exactly once, before returning.
func (e *Engine) Run(ctx context.Context, sess *call.Session, gen uint64, runID, utterance string, onTool ToolSink) error {
	intent := Classify(utterance)

	var context_ string
	if intent != IntentGreeting && intent != IntentGoodbye {
		if sess.Stale(gen) {
			return nil
		}
		start := time.Now()
		vector, err := e.Embedder.Embed(ctx, utterance)
		retrieveStatus, retrieveErr := "ok", ""
		if err != nil {
			metrics.Errors.WithLabelValues("rag", "embed").Inc()
			retrieveStatus, retrieveErr = "error", err.Error()
		} else {
			hits, qerr := e.Store.Query(ctx, vector, e.Cfg.K)
			if qerr != nil {
				metrics.Errors.WithLabelValues("rag", "query").Inc()
				retrieveStatus, retrieveErr = "error", qerr.Error()
			} else {
				context_ = ConcatContext(hits, e.Cfg.RelevanceThreshold, e.Cfg.ContextTop)
			}
		}
		metrics.StageDuration.WithLabelValues("rag_retrieve").Observe(time.Since(start).Seconds())
		e.Tracer.RecordSpan(runID, trace.StageRAGRetrieve, start, float64(time.Since(start).Microseconds())/1000, utterance, context_, retrieveStatus, retrieveErr)
	}

	if sess.Stale(gen) {
		return nil
	}

	history := sess.RecentHistory(sess.Cfg.HistoryWindow)
	system, prompt := BuildPrompt(sess.Agent.SystemPrompt, history, context_, utterance)

	var full strings.Builder
	buf := &sentenceBuffer{}
	done := sess.Context().Done()

	emit := func(sentence string) {
		markers, residual := ScanMarkers(sentence)
		for _, m := range markers {
			if onTool != nil {
				onTool(m)
			}
		}
		residual = media.NormalizeForSpeech(residual)
		if residual == "" {
			return
		}
		_ = sess.Queue.Push(residual, done)
	}

	streamStart := time.Now()
	streamErr := e.LLM.Stream(ctx, system, prompt, func(token string) {
		if sess.Stale(gen) {
			return
		}
		full.WriteString(token)
		if complete := buf.Add(token); complete != "" {
			emit(complete)
		}
	})
	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) && sess.Stale(gen) {
			return nil
		}
		metrics.Errors.WithLabelValues("rag", "llm_stream").Inc()
		e.Tracer.RecordSpan(runID, trace.StageLLMStream, streamStart, float64(time.Since(streamStart).Microseconds())/1000, prompt, full.String(), "error", streamErr.Error())
		if !sess.Stale(gen) {
			sess.AppendTurn(call.Turn{User: utterance, Assistant: call.ApologySentence, At: time.Now()})
			_ = sess.Queue.Push(call.ApologySentence, done)
		}
		return streamErr
	}
	e.Tracer.RecordSpan(runID, trace.StageLLMStream, streamStart, float64(time.Since(streamStart).Microseconds())/1000, prompt, full.String(), "ok", "")

	if sess.Stale(gen) {
		return nil
	}
	if tail := buf.Flush(); tail != "" {
		emit(tail)
	}

	_, assistantText := ScanMarkers(full.String())
	sess.AppendTurn(call.Turn{User: utterance, Assistant: strings.TrimSpace(assistantText), At: time.Now()})
	return nil
}
