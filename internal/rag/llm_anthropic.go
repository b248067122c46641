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

// AnthropicLLM implements call.LLM against the Messages streaming API,
// adapted from the teacher's internal/pipeline/llm_anthropic.go.
type AnthropicLLM struct {
	apiKey    string
	url       string
	model     string
	maxTokens int
	client    *http.Client
}

// NewAnthropicLLM creates an Anthropic streaming client.
func NewAnthropicLLM(apiKey, url, model string, maxTokens, poolSize int) *AnthropicLLM {
	return &AnthropicLLM{
		apiKey:    apiKey,
		url:       url,
		model:     model,
		maxTokens: maxTokens,
		client:    httpx.NewPooledClient(poolSize, 120*time.Second),
	}
}

// Stream implements call.LLM.
func (c *AnthropicLLM) Stream(ctx context.Context, systemPrompt, prompt string, onToken call.TokenSink) error {
	start := time.Now()

	body, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Stream:    true,
		System:    systemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return fmt.Errorf("anthropic request: %w: %w", call.ErrTransientUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("llm", "status").Inc()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("anthropic status %d: %s: %w", resp.StatusCode, errBody, call.ErrResourceExhausted)
		}
		return fmt.Errorf("anthropic status %d: %s: %w", resp.StatusCode, errBody, call.ErrTransientUpstream)
	}

	scanner := bufio.NewScanner(resp.Body)
	var eventType string
	first := true
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if eventType == "message_stop" {
			break
		}
		if eventType != "content_block_delta" {
			continue
		}
		var delta anthropicDeltaEvent
		if json.Unmarshal([]byte(data), &delta) != nil || delta.Delta.Type != "text_delta" {
			continue
		}
		if delta.Delta.Text == "" {
			continue
		}
		if first {
			metrics.StageDuration.WithLabelValues("llm_ttft").Observe(time.Since(start).Seconds())
			first = false
		}
		onToken(delta.Delta.Text)
	}

	metrics.StageDuration.WithLabelValues("llm").Observe(time.Since(start).Seconds())
	return scanner.Err()
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicDeltaEvent struct {
	Delta anthropicDelta `json:"delta"`
}

type anthropicDelta struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}
