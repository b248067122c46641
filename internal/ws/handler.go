// Package ws adapts one carrier websocket connection to a call.Session
// (spec.md 3, 6): it upgrades the HTTP connection, reads the
// connected/start handshake, then runs the session's intake reader,
// Turn Assembler, Session Controller, TTS Streamer, and Interruption
// Detector against the wire format described in spec.md 6. Structurally
// grounded on the teacher's internal/ws/handler.go (upgrade, read loop,
// mutex-guarded event sender), generalized from the teacher's single
// ASR/LLM/TTS pipeline call chain into the multi-worker session model
// spec.md 5 describes.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/config"
	"github.com/hubenschmidt/voicecore/internal/dialogue"
	"github.com/hubenschmidt/voicecore/internal/interrupt"
	"github.com/hubenschmidt/voicecore/internal/media"
	"github.com/hubenschmidt/voicecore/internal/metrics"
	"github.com/hubenschmidt/voicecore/internal/rag"
	"github.com/hubenschmidt/voicecore/internal/trace"
	"github.com/hubenschmidt/voicecore/internal/tts"
	"github.com/hubenschmidt/voicecore/internal/turn"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// defaultInactivityTimeout is spec.md 5's documented default for the
// whole-call inactivity timeout.
const defaultInactivityTimeout = 30 * time.Second

// pollEndingInterval is how often the session loop checks for the
// Ending-phase-with-drained-queue hangup condition.
const pollEndingInterval = 50 * time.Millisecond

// AgentLookup resolves an agent_id (from the start event's custom
// parameters) to its configuration. The gateway binds this to whatever
// agent registry it loads at startup; it is optional — when nil, or
// when it reports no match, the agent's configuration is instead
// resolved directly from the start event's custom parameters, per the
// teacher's own resolveParams/metaDefaults idiom (the teacher's
// callMetadata arrived over the same handshake frame this spec calls
// customParameters).
type AgentLookup func(agentID string) (config.AgentConfig, bool)

// agentDefaults mirrors the teacher's metaDefaults map. spec.md 6's
// interrupt_enabled/silence_threshold_sec keys are not in it; resolveAgent
// parses those itself.
var agentDefaults = map[string]string{
	"system_prompt": config.DefaultSystemPrompt(),
	"llm_engine":    "ollama",
}

// resolveAgent builds an AgentConfig from the start event's custom
// parameters, applying agentDefaults for anything omitted.
func resolveAgent(params map[string]string) config.AgentConfig {
	silenceThreshold := parseFloatOr(params["silence_threshold_sec"], 0)
	interruptEnabled := true
	if v, ok := params["interrupt_enabled"]; ok {
		interruptEnabled = v != "false" && v != "0"
	}
	return config.AgentConfig{
		Name:                params["agent_name"],
		SystemPrompt:        orDefault(params["system_prompt"], agentDefaults["system_prompt"]),
		FirstMessage:        params["first_message"],
		VoiceID:             params["voice_id"],
		ModelName:           params["model_name"],
		LLMEngine:           orDefault(params["llm_engine"], agentDefaults["llm_engine"]),
		InterruptEnabled:    interruptEnabled,
		SilenceThresholdSec: silenceThreshold,
	}
}

func orDefault(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}

func parseFloatOr(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}

// HandlerConfig holds the shared, per-process collaborators every call
// session is built from.
type HandlerConfig struct {
	Cfg    config.Config
	Agents AgentLookup

	NewSTT func() call.StreamingSTT
	TTS    call.StreamingTTS
	LLM    *rag.LLMRouter

	Embedder call.Embedder
	Store    call.VectorStore
	Tools    call.ToolExecutor
	History  call.HistoryStore
	Hooks    call.Webhooks
	Trace    *trace.Store // optional; nil disables per-turn run/span tracing
}

// Handler upgrades websocket connections and runs call sessions.
type Handler struct {
	cfg HandlerConfig
}

// NewHandler creates a Handler bound to the given shared collaborators.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{cfg: cfg}
}

// ServeHTTP upgrades the connection and runs one call session to
// completion; it never returns until the session ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.runSession(conn)
}

// awaitStart reads frames until it sees the start event (skipping an
// optional leading connected event), per spec.md 6's handshake.
func awaitStart(conn *websocket.Conn) (streamSid string, params map[string]string, err error) {
	for {
		_, data, readErr := conn.ReadMessage()
		if readErr != nil {
			return "", nil, fmt.Errorf("read handshake frame: %w", readErr)
		}
		var ev inboundEvent
		if jsonErr := json.Unmarshal(data, &ev); jsonErr != nil {
			continue // protocol violation: log-and-ignore per spec.md 4.8
		}
		switch ev.Event {
		case "connected":
			continue
		case "start":
			if ev.Start == nil {
				return "", nil, fmt.Errorf("start event missing payload")
			}
			sid := ev.Start.StreamSid
			if sid == "" {
				sid = ev.StreamSid
			}
			return sid, ev.Start.CustomParameters, nil
		default:
			return "", nil, fmt.Errorf("unexpected event %q before start", ev.Event)
		}
	}
}

func (h *Handler) runSession(conn *websocket.Conn) {
	streamSid, params, err := awaitStart(conn)
	if err != nil {
		slog.Error("await start", "error", err)
		return
	}

	agentID := params["agent_id"]
	agent, ok := config.AgentConfig{}, false
	if h.cfg.Agents != nil {
		agent, ok = h.cfg.Agents(agentID)
	}
	if !ok {
		agent = resolveAgent(params)
	}
	callID := params["call_id"]
	if callID == "" {
		callID = uuid.NewString()
	}

	transport := &wsTransport{conn: conn, streamSid: streamSid}
	logger := slog.Default()
	sess := call.New(context.Background(), callID, streamSid, agent, h.cfg.Cfg, transport, logger)

	metrics.CallsActive.Inc()
	metrics.CallsTotal.Inc()
	defer metrics.CallsActive.Dec()

	if ensurer, ok := h.cfg.History.(interface {
		EnsureCall(ctx context.Context, callID, agentID, phoneNumber string) error
	}); ok {
		if err := ensurer.EnsureCall(sess.Context(), callID, agentID, params["phone_number"]); err != nil {
			sess.Log.Warn("ensure call record failed", "error", err)
		}
	}
	if h.cfg.Hooks != nil {
		h.cfg.Hooks.Fire(sess.Context(), "call.started", map[string]any{"call_id": callID, "agent_id": agentID})
	}

	status := "completed"
	defer func() {
		sess.Cleanup(context.Background(), status, h.cfg.History, h.cfg.Hooks)
	}()

	llm, err := h.cfg.LLM.Engine(agent.LLMEngine)
	if err != nil {
		sess.Log.Error("resolve llm engine", "error", err)
		status = "failed"
		return
	}

	var tracer *trace.Tracer
	if h.cfg.Trace != nil {
		meta, _ := json.Marshal(map[string]string{"agent_id": agentID, "phone_number": params["phone_number"]})
		if err := h.cfg.Trace.CreateSession(callID, string(meta)); err != nil {
			sess.Log.Warn("create trace session failed", "error", err)
		}
		defer func() {
			if err := h.cfg.Trace.EndSession(callID); err != nil {
				sess.Log.Warn("end trace session failed", "error", err)
			}
		}()
		tracer = trace.NewTracer(h.cfg.Trace, callID)
		defer tracer.Close()
	}

	engine := &rag.Engine{Embedder: h.cfg.Embedder, Store: h.cfg.Store, LLM: llm, Cfg: h.cfg.Cfg.RAG, Tracer: tracer}
	controller := &dialogue.Controller{RAG: engine, Tools: h.cfg.Tools, History: h.cfg.History, Tracer: tracer}

	turnCfg := h.cfg.Cfg.Turn
	if agent.SilenceThresholdSec > 0 {
		turnCfg.SilenceThresholdSec = agent.SilenceThresholdSec
	}
	assembler := turn.New(sess, turnCfg)
	go assembler.Run(sess.Context(), func(utterance string) {
		controller.HandleUtterance(sess, utterance)
	})

	worker := &tts.Worker{Synth: h.cfg.TTS, Transport: transport}
	go worker.Run(sess.Context(), sess, agent.VoiceID)

	link, err := newSTTLink(sess.Context(), sess, assembler, h.cfg.NewSTT)
	if err != nil {
		sess.Log.Error("open stt", "error", err)
		status = "failed"
		return
	}
	defer link.Close()
	sttSend := func(frame []byte) error {
		link.Send(sess.Context(), frame)
		return nil
	}

	ic := h.cfg.Cfg.Interrupt
	det := interrupt.NewDetector(interrupt.Config{
		Enabled:         ic.Enabled && agent.InterruptEnabled,
		MinEnergy:       ic.MinEnergy,
		BaselineFactor:  ic.BaselineFactor,
		MinSpeechMs:     ic.MinSpeechMs,
		DebounceMs:      ic.DebounceMs,
		RequiredSamples: ic.RequiredSamples,
	}, sess.Energy.Baseline)
	armed := false

	if agent.FirstMessage != "" {
		sess.AppendTurn(call.Turn{Assistant: agent.FirstMessage, At: time.Now()})
		sess.SetPhase(call.PhaseResponding)
		_ = sess.Queue.Push(agent.FirstMessage, sess.Context().Done())
	} else {
		sess.SetPhase(call.PhaseListening)
	}

	frames := make(chan []byte, 16)
	go func() {
		defer close(frames)
		for {
			_, data, readErr := conn.ReadMessage()
			if readErr != nil {
				return
			}
			select {
			case frames <- data:
			case <-sess.Context().Done():
				return
			}
		}
	}()

	inactivity := time.NewTimer(inactivityTimeout(h.cfg.Cfg))
	defer inactivity.Stop()

	// endingCheck polls for phase Ending with nothing left queued, the
	// "Goodbye spoken, now hang up" edge end_call and the Goodbye intent
	// both drive the session toward (spec.md 4.6).
	endingCheck := time.NewTicker(pollEndingInterval)
	defer endingCheck.Stop()

	for {
		select {
		case <-sess.Context().Done():
			return
		case <-inactivity.C:
			status = "timeout"
			return
		case <-endingCheck.C:
			if sess.Phase() == call.PhaseEnding && sess.Queue.Pending() == 0 {
				return
			}
		case data, ok := <-frames:
			if !ok {
				return
			}
			if !inactivity.Stop() {
				<-inactivity.C
			}
			inactivity.Reset(inactivityTimeout(h.cfg.Cfg))

			if h.handleFrame(sess, sttSend, det, &armed, data) == "stop" {
				return
			}
		}
	}
}

func inactivityTimeout(cfg config.Config) time.Duration {
	if cfg.CallInactivityTimeoutSec <= 0 {
		return defaultInactivityTimeout
	}
	return time.Duration(cfg.CallInactivityTimeoutSec) * time.Second
}

// handleFrame parses and dispatches one inbound JSON frame. Protocol
// violations are logged and ignored per spec.md 4.8, never torn down.
// Returns "stop" when the carrier ended the stream.
func (h *Handler) handleFrame(sess *call.Session, sttSend func([]byte) error, det *interrupt.Detector, armed *bool, data []byte) string {
	var ev inboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		sess.Log.Debug("malformed frame", "error", err)
		return ""
	}

	switch ev.Event {
	case "media":
		h.handleMedia(sess, sttSend, det, armed, ev.Media)
	case "stop":
		return "stop"
	case "mark", "connected":
		// no-op: acknowledgements the core doesn't act on.
	default:
		sess.Log.Debug("unexpected event", "event", ev.Event)
	}
	return ""
}

func (h *Handler) handleMedia(sess *call.Session, sttSend func([]byte) error, det *interrupt.Detector, armed *bool, m *mediaPayload) {
	if m == nil || m.Payload == "" {
		return
	}
	frame, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil {
		sess.Log.Debug("malformed media payload", "error", err)
		return
	}

	metrics.AudioChunks.Inc()

	if sendErr := sttSend(frame); sendErr != nil {
		sess.Log.Warn("stt upstream send failed", "error", sendErr)
	}

	energy := media.RMSEnergy(media.DecodeUlawPCM16(frame))
	if sess.Phase() == call.PhaseResponding {
		if !*armed {
			det.Arm()
			*armed = true
		}
		if det.Process(energy, time.Now()) {
			sess.Cancel(sess.Context())
		}
	} else {
		if *armed {
			det.Disarm()
			*armed = false
		}
		det.UpdateBaseline(energy)
	}
}
