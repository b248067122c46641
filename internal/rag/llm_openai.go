package rag

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/httpx"
	"github.com/hubenschmidt/voicecore/internal/metrics"
)

// OpenAILLM implements call.LLM against the Chat Completions streaming
// endpoint, adapted from the teacher's internal/pipeline/llm_openai.go
// (which targeted the legacy /v1/completions endpoint for a
// non-chat-tuned model; this version uses /v1/chat/completions so a
// genuine system/user message pair can be sent, matching every other
// backend here).
type OpenAILLM struct {
	apiKey    string
	url       string
	model     string
	maxTokens int
	client    *http.Client
}

// NewOpenAILLM creates an OpenAI chat streaming client.
func NewOpenAILLM(apiKey, url, model string, maxTokens, poolSize int) *OpenAILLM {
	return &OpenAILLM{
		apiKey:    apiKey,
		url:       url,
		model:     model,
		maxTokens: maxTokens,
		client:    httpx.NewPooledClient(poolSize, 120*time.Second),
	}
}

// Stream implements call.LLM.
func (c *OpenAILLM) Stream(ctx context.Context, systemPrompt, prompt string, onToken call.TokenSink) error {
	start := time.Now()

	body, err := json.Marshal(map[string]any{
		"model":      c.model,
		"max_tokens": c.maxTokens,
		"stream":     true,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return fmt.Errorf("chat request: %w: %w", call.ErrTransientUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("llm", "status").Inc()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("chat status %d: %s: %w", resp.StatusCode, errBody, call.ErrResourceExhausted)
		}
		return fmt.Errorf("chat status %d: %s: %w", resp.StatusCode, errBody, call.ErrTransientUpstream)
	}

	scanner := bufio.NewScanner(resp.Body)
	first := true
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if json.Unmarshal([]byte(data), &chunk) != nil || len(chunk.Choices) == 0 {
			continue
		}
		text := chunk.Choices[0].Delta.Content
		if text == "" {
			continue
		}
		if first {
			metrics.StageDuration.WithLabelValues("llm_ttft").Observe(time.Since(start).Seconds())
			first = false
		}
		onToken(text)
	}

	metrics.StageDuration.WithLabelValues("llm").Observe(time.Since(start).Seconds())
	return scanner.Err()
}
