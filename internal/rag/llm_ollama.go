package rag

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/httpx"
	"github.com/hubenschmidt/voicecore/internal/metrics"
)

// OllamaLLM implements call.LLM by streaming chat completions from
// Ollama's /api/chat, adapted from the teacher's
// internal/pipeline/llm.go OllamaLLMClient. Prompt assembly (system
// prompt, history, retrieved context) is done by the caller in
// internal/rag/prompt.go; this client only transports the
// already-assembled system/user strings and sends no stop sequences.
type OllamaLLM struct {
	url       string
	model     string
	maxTokens int
	client    *http.Client
}

// NewOllamaLLM creates an Ollama chat streaming client.
func NewOllamaLLM(url, model string, maxTokens, poolSize int) *OllamaLLM {
	return &OllamaLLM{
		url:       url,
		model:     model,
		maxTokens: maxTokens,
		client:    httpx.NewPooledClient(poolSize, 60*time.Second),
	}
}

// Stream implements call.LLM.
func (c *OllamaLLM) Stream(ctx context.Context, systemPrompt, prompt string, onToken call.TokenSink) error {
	start := time.Now()

	body, err := json.Marshal(ollamaRequest{
		Model:  c.model,
		Stream: true,
		Options: ollamaOptions{
			NumPredict: c.maxTokens,
		},
		Messages: []ollamaMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return fmt.Errorf("ollama request: %w: %w", call.ErrTransientUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("llm", "status").Inc()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("ollama status %d: %s: %w", resp.StatusCode, errBody, call.ErrResourceExhausted)
		}
		return fmt.Errorf("ollama status %d: %s: %w", resp.StatusCode, errBody, call.ErrTransientUpstream)
	}

	scanner := bufio.NewScanner(resp.Body)
	first := true
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		var chunk ollamaStreamChunk
		if json.Unmarshal(scanner.Bytes(), &chunk) != nil {
			continue
		}
		if chunk.Done {
			break
		}
		if chunk.Message.Content == "" {
			continue
		}
		if first {
			metrics.StageDuration.WithLabelValues("llm_ttft").Observe(time.Since(start).Seconds())
			first = false
		}
		onToken(chunk.Message.Content)
	}

	metrics.StageDuration.WithLabelValues("llm").Observe(time.Since(start).Seconds())
	return scanner.Err()
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []ollamaMessage `json:"messages"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict"`
}

type ollamaStreamChunk struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}
