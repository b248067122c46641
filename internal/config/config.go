// Package config loads the gateway's environment-driven configuration,
// in the teacher's envStr/envInt/envFloat idiom (cmd/gateway/config.go),
// extended with envBool and envInt64 for the boolean and millisecond
// knobs spec.md 6 adds.
package config

import (
	"os"
	"strconv"

	"github.com/hubenschmidt/voicecore/internal/prompts"
)

// Config is the process-wide configuration, built once in main and
// passed down explicitly — no package-level mutable globals.
type Config struct {
	Port string

	OllamaURL   string
	OllamaModel string

	OpenAIAPIKey    string
	OpenAIURL       string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicURL    string
	AnthropicModel  string

	PiperURL          string
	WhisperServerURL  string
	WhisperPrompt     string
	QdrantURL         string
	EmbeddingModel    string
	VectorSize        int
	KnowledgeBaseName string

	PostgresURL     string
	HistoryDBDriver string // "pgx" (default) or "sqlite3"
	SQLitePath      string

	MCPToolServerURL string
	WebhookURL       string
	TraceDBURL       string

	Interrupt InterruptConfig
	Turn      TurnConfig
	RAG       RAGConfig

	LLMMaxTokens             int
	HistoryWindow            int
	CallInactivityTimeoutSec int
}

// InterruptConfig mirrors spec.md 6's C2 keys.
type InterruptConfig struct {
	Enabled         bool
	MinEnergy       float64
	BaselineFactor  float64
	MinSpeechMs     int64
	DebounceMs      int64
	RequiredSamples int
}

// TurnConfig mirrors spec.md 6's C3 keys.
type TurnConfig struct {
	SilenceThresholdSec     float64
	InterimProcessingEnable bool
	InterimMinLength        int
	InterimSilenceSec       float64
}

// RAGConfig mirrors spec.md 6's C4 keys.
type RAGConfig struct {
	K                  int
	RelevanceThreshold float64
	ContextTop         int
}

// AgentConfig is the read-only per-call input described in spec.md 6.
type AgentConfig struct {
	Name                string
	SystemPrompt        string
	FirstMessage        string
	VoiceID             string
	ModelName           string
	LLMEngine           string
	InterruptEnabled    bool
	SilenceThresholdSec float64
}

// Load builds a Config from the process environment.
func Load() Config {
	return Config{
		Port: envStr("GATEWAY_PORT", "8000"),

		OllamaURL:   envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel: envStr("OLLAMA_MODEL", "llama3.2:3b"),

		OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
		OpenAIURL:       envStr("OPENAI_URL", "https://api.openai.com"),
		OpenAIModel:     envStr("OPENAI_MODEL", "gpt-4.1-nano"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicURL:    envStr("ANTHROPIC_URL", "https://api.anthropic.com"),
		AnthropicModel:  envStr("ANTHROPIC_MODEL", "claude-sonnet-4-5"),

		PiperURL:          envStr("PIPER_URL", "http://localhost:5100"),
		WhisperServerURL:  envStr("WHISPER_SERVER_URL", ""),
		WhisperPrompt:     envStr("WHISPER_PROMPT", "Customer service call transcript:"),
		QdrantURL:         envStr("QDRANT_URL", ""),
		EmbeddingModel:    envStr("EMBEDDING_MODEL", "nomic-embed-text"),
		VectorSize:        envInt("VECTOR_SIZE", 768),
		KnowledgeBaseName: envStr("QDRANT_COLLECTION", "knowledge_base"),

		PostgresURL:     envStr("POSTGRES_URL", ""),
		HistoryDBDriver: envStr("HISTORY_DB_DRIVER", "pgx"),
		SQLitePath:      envStr("HISTORY_SQLITE_PATH", "voicecore_history.db"),

		MCPToolServerURL: envStr("MCP_TOOL_SERVER_URL", ""),
		WebhookURL:       envStr("WEBHOOK_URL", ""),
		TraceDBURL:       envStr("TRACE_DB_URL", ""),

		Interrupt: InterruptConfig{
			Enabled:         envBool("INTERRUPT_ENABLED", true),
			MinEnergy:       envFloat("INTERRUPT_MIN_ENERGY", 500),
			BaselineFactor:  envFloat("INTERRUPT_BASELINE_FACTOR", 2.0),
			MinSpeechMs:     envInt64("INTERRUPT_MIN_SPEECH_MS", 100),
			DebounceMs:      envInt64("INTERRUPT_DEBOUNCE_MS", 300),
			RequiredSamples: envInt("INTERRUPT_REQUIRED_SAMPLES", 2),
		},
		Turn: TurnConfig{
			SilenceThresholdSec:     envFloat("SILENCE_THRESHOLD_SEC", 0.8),
			InterimProcessingEnable: envBool("INTERIM_PROCESSING_ENABLED", false),
			InterimMinLength:        envInt("INTERIM_MIN_LENGTH", 5),
			InterimSilenceSec:       envFloat("INTERIM_SILENCE_SEC", 0.05),
		},
		RAG: RAGConfig{
			K:                  envInt("RAG_K", 6),
			RelevanceThreshold: envFloat("RAG_RELEVANCE_THRESHOLD", 1.0),
			ContextTop:         envInt("RAG_CONTEXT_TOP", 3),
		},

		LLMMaxTokens:             envInt("LLM_MAX_TOKENS", 1200),
		HistoryWindow:            envInt("HISTORY_WINDOW", 6),
		CallInactivityTimeoutSec: envInt("CALL_INACTIVITY_TIMEOUT_SEC", 30),
	}
}

// DefaultSystemPrompt is used when an agent configuration omits one.
func DefaultSystemPrompt() string {
	return prompts.DefaultSystem
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
