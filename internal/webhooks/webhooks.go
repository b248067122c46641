// Package webhooks implements call.Webhooks (spec.md 3, 4.7):
// fire-and-forget JSON HTTP POSTs for agent lifecycle and tool events
// (call.started, call.ended, tool.call_webhook, ...). Grounded on the
// teacher's internal/httpx.NewPooledClient for the outbound client and
// on the teacher's pipeline collaborators' "log and move on" error
// handling for best-effort side channels.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hubenschmidt/voicecore/internal/httpx"
)

// Sender implements call.Webhooks by POSTing a JSON envelope to a
// fixed URL. A zero-value URL disables delivery (Fire is a no-op).
type Sender struct {
	URL    string
	Client *http.Client
	Log    *slog.Logger
}

// New creates a Sender posting to url with a 5s-timeout pooled client.
// An empty url yields a Sender whose Fire is a no-op, so callers can
// wire it unconditionally regardless of whether webhooks are configured.
func New(url string, logger *slog.Logger) *Sender {
	return &Sender{
		URL:    url,
		Client: httpx.NewPooledClient(4, 5*time.Second),
		Log:    logger,
	}
}

type envelope struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
	FiredAt time.Time      `json:"fired_at"`
}

// Fire implements call.Webhooks. It dispatches the POST on its own
// goroutine and never blocks the caller; delivery failures are logged,
// never returned, since a webhook is a best-effort side channel.
func (s *Sender) Fire(ctx context.Context, event string, payload map[string]any) {
	if s == nil || s.URL == "" {
		return
	}
	body, err := json.Marshal(envelope{Event: event, Payload: payload, FiredAt: time.Now().UTC()})
	if err != nil {
		s.Log.Warn("webhook marshal failed", "event", event, "error", err)
		return
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, s.URL, bytes.NewReader(body))
		if err != nil {
			s.Log.Warn("webhook request build failed", "event", event, "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.Client.Do(req)
		if err != nil {
			s.Log.Warn("webhook delivery failed", "event", event, "error", err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			s.Log.Warn("webhook non-2xx response", "event", event, "status", resp.StatusCode)
		}
	}()
}
