package tools

import (
	"context"
	"sync"
	"testing"
)

type fakeHooks struct {
	mu     sync.Mutex
	events []string
	last   map[string]any
}

func (f *fakeHooks) Fire(ctx context.Context, event string, payload map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	f.last = payload
}

func TestExecutor_EndCallInvokesHook(t *testing.T) {
	var called bool
	e := New(nil, func(ctx context.Context) error {
		called = true
		return nil
	}, nil, nil)

	out, err := e.Execute(context.Background(), "end_call", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Fatalf("expected endCall hook to run")
	}
	if out == "" {
		t.Fatalf("expected a non-empty result")
	}
}

func TestExecutor_TransferCallRequiresTo(t *testing.T) {
	e := New(nil, nil, func(ctx context.Context, to string) error { return nil }, nil)

	if _, err := e.Execute(context.Background(), "transfer_call", nil); err == nil {
		t.Fatalf("expected error when 'to' param missing")
	}

	var got string
	e2 := New(nil, nil, func(ctx context.Context, to string) error {
		got = to
		return nil
	}, nil)
	if _, err := e2.Execute(context.Background(), "transfer_call", map[string]string{"to": "+15555550100"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "+15555550100" {
		t.Fatalf("expected transfer target to be forwarded, got %q", got)
	}
}

func TestExecutor_CallWebhookFiresHook(t *testing.T) {
	hooks := &fakeHooks{}
	e := New(hooks, nil, nil, nil)

	if _, err := e.Execute(context.Background(), "call_webhook", map[string]string{"event": "order.confirmed", "order_id": "42"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(hooks.events) != 1 || hooks.events[0] != "order.confirmed" {
		t.Fatalf("expected 'order.confirmed' to be fired, got %v", hooks.events)
	}
	if hooks.last["order_id"] != "42" {
		t.Fatalf("expected params forwarded as payload, got %v", hooks.last)
	}
}

func TestExecutor_UnknownToolWithoutMCPErrors(t *testing.T) {
	e := New(nil, nil, nil, nil)
	if _, err := e.Execute(context.Background(), "check_inventory", nil); err == nil {
		t.Fatalf("expected error for unhandled tool with no MCP client configured")
	}
}
