package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSender_FirePostsJSON(t *testing.T) {
	received := make(chan envelope, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env envelope
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &env); err != nil {
			t.Errorf("unmarshal request body: %v", err)
		}
		received <- env
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(srv.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Fire(context.Background(), "call.ended", map[string]any{"call_id": "c1"})

	select {
	case env := <-received:
		if env.Event != "call.ended" {
			t.Fatalf("expected event call.ended, got %q", env.Event)
		}
		if env.Payload["call_id"] != "c1" {
			t.Fatalf("expected call_id c1, got %v", env.Payload["call_id"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not delivered within timeout")
	}
}

func TestSender_EmptyURLIsNoop(t *testing.T) {
	s := New("", slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Fire(context.Background(), "call.ended", map[string]any{"call_id": "c1"})
}
