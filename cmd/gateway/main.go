// Command gateway is the voicecore process entrypoint: it loads
// configuration, constructs every shared collaborator (embeddings,
// vector store, LLM backends, TTS, STT, tools, history, webhooks), and
// serves the carrier's websocket media stream plus a health and
// metrics endpoint. Structurally grounded on the teacher's
// cmd/gateway/main.go (env-driven construction, signal-based graceful
// shutdown), generalized from the teacher's ASR/LLM/TTS router trio to
// this repo's call.Session-per-connection model.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/config"
	"github.com/hubenschmidt/voicecore/internal/history"
	"github.com/hubenschmidt/voicecore/internal/rag"
	"github.com/hubenschmidt/voicecore/internal/stt"
	"github.com/hubenschmidt/voicecore/internal/tools"
	"github.com/hubenschmidt/voicecore/internal/trace"
	"github.com/hubenschmidt/voicecore/internal/tts"
	"github.com/hubenschmidt/voicecore/internal/webhooks"
	"github.com/hubenschmidt/voicecore/internal/ws"
)

const collaboratorPoolSize = 32

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := config.Load()

	embedder := rag.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbeddingModel, collaboratorPoolSize)
	store := rag.NewQdrantStore(cfg.QdrantURL, cfg.KnowledgeBaseName, collaboratorPoolSize)
	llmRouter := buildLLMRouter(cfg)
	piper := tts.NewPiperTTS(cfg.PiperURL, collaboratorPoolSize)

	historyStore, err := openHistory(cfg)
	if err != nil {
		slog.Error("open history store", "error", err)
		os.Exit(1)
	}
	if historyStore != nil {
		defer historyStore.Close()
	}

	hooks := webhooks.New(cfg.WebhookURL, slog.Default())

	var traceStore *trace.Store
	if cfg.TraceDBURL != "" {
		traceStore, err = trace.Open(cfg.TraceDBURL)
		if err != nil {
			slog.Warn("open trace store failed, per-turn tracing disabled", "error", err)
			traceStore = nil
		} else {
			defer traceStore.Close()
		}
	}

	var mcpClient *tools.MCPClient
	if cfg.MCPToolServerURL != "" {
		dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		mcpClient, err = tools.DialMCP(dialCtx, cfg.MCPToolServerURL)
		cancel()
		if err != nil {
			slog.Warn("dial mcp tool server failed, custom tools disabled", "error", err)
		} else {
			defer mcpClient.Close()
		}
	}
	executor := tools.New(hooks, nil, func(ctx context.Context, to string) error {
		hooks.Fire(ctx, "call.transfer_requested", map[string]any{"to": to})
		return nil
	}, mcpClient)

	handler := ws.NewHandler(ws.HandlerConfig{
		Cfg: cfg,
		NewSTT: func() call.StreamingSTT {
			return stt.NewWhisperSTT(cfg.WhisperServerURL, cfg.WhisperPrompt, collaboratorPoolSize, stt.DefaultEndpointConfig())
		},
		TTS:      piper,
		LLM:      llmRouter,
		Embedder: embedder,
		Store:    store,
		Tools:    executor,
		History:  historyAsHistoryStore(historyStore),
		Hooks:    hooks,
		Trace:    traceStore,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", handler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: mux}

	go awaitShutdown(srv)

	slog.Info("gateway starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}

func awaitShutdown(srv *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func buildLLMRouter(cfg config.Config) *rag.LLMRouter {
	backends := map[string]call.LLM{
		"ollama": rag.NewOllamaLLM(cfg.OllamaURL, cfg.OllamaModel, cfg.LLMMaxTokens, collaboratorPoolSize),
	}
	if cfg.OpenAIAPIKey != "" {
		backends["openai"] = rag.NewOpenAILLM(cfg.OpenAIAPIKey, cfg.OpenAIURL, cfg.OpenAIModel, cfg.LLMMaxTokens, collaboratorPoolSize)
	}
	if cfg.AnthropicAPIKey != "" {
		backends["anthropic"] = rag.NewAnthropicLLM(cfg.AnthropicAPIKey, cfg.AnthropicURL, cfg.AnthropicModel, cfg.LLMMaxTokens, collaboratorPoolSize)
	}
	return rag.NewLLMRouter(backends, "ollama")
}

func openHistory(cfg config.Config) (*history.Store, error) {
	switch cfg.HistoryDBDriver {
	case "sqlite3":
		return history.Open("sqlite3", cfg.SQLitePath)
	default:
		if cfg.PostgresURL == "" {
			slog.Warn("no POSTGRES_URL set, history persistence disabled")
			return nil, nil
		}
		return history.Open("pgx", cfg.PostgresURL)
	}
}

// historyAsHistoryStore adapts a possibly-nil *history.Store to a
// possibly-nil call.HistoryStore: a bare nil *history.Store assigned
// directly to the interface would be a non-nil interface holding a nil
// pointer, which would make ws.Handler's nil checks misfire.
func historyAsHistoryStore(s *history.Store) call.HistoryStore {
	if s == nil {
		return nil
	}
	return s
}
