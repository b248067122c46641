// Package httpx holds the single pooled HTTP client constructor shared
// by every outbound collaborator client (embeddings, vector store, LLM,
// TTS, webhooks). Kept verbatim from the teacher's
// internal/pipeline/httpclient.go.
package httpx

import (
	"net/http"
	"time"
)

// NewPooledClient creates an http.Client with connection pooling tuned
// for many short-lived requests to one backend.
func NewPooledClient(poolSize int, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          poolSize,
			MaxIdleConnsPerHost:   poolSize,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}
