package rag

import "testing"

func TestScanMarkers_ImmediateTool(t *testing.T) {
	text := "Sure, one moment. [TOOL:transfer_call(to=sales,reason=billing)] Connecting you now."
	markers, residual := ScanMarkers(text)
	if len(markers) != 1 {
		t.Fatalf("expected 1 marker, got %d", len(markers))
	}
	m := markers[0]
	if m.Name != "transfer_call" || m.Confirmed {
		t.Fatalf("unexpected marker %+v", m)
	}
	if m.Params["to"] != "sales" || m.Params["reason"] != "billing" {
		t.Fatalf("unexpected params %+v", m.Params)
	}
	if residual != "Sure, one moment. Connecting you now." {
		t.Fatalf("unexpected residual %q", residual)
	}
}

func TestScanMarkers_ConfirmTool(t *testing.T) {
	text := "[CONFIRM_TOOL:end_call()] Goodbye."
	markers, residual := ScanMarkers(text)
	if len(markers) != 1 || !markers[0].Confirmed {
		t.Fatalf("expected confirmed marker, got %+v", markers)
	}
	if residual != "Goodbye." {
		t.Fatalf("unexpected residual %q", residual)
	}
}

func TestScanMarkers_MalformedLeftLiteral(t *testing.T) {
	cases := []string{
		"[TOOL:transfer_call(to=sales]",    // missing close paren
		"[TOOL:123bad(to=sales)]",          // invalid identifier
		"[TOOL:transfer_call(to=(x))]",     // forbidden char in value
		"[TOOL transfer_call(to=sales)]",   // missing colon
	}
	for _, text := range cases {
		markers, residual := ScanMarkers(text)
		if len(markers) != 0 {
			t.Fatalf("expected no markers recognized for %q, got %+v", text, markers)
		}
		if residual != text {
			t.Fatalf("expected malformed marker left as literal text, got %q for input %q", residual, text)
		}
	}
}

func TestScanMarkers_NoMarkers(t *testing.T) {
	markers, residual := ScanMarkers("just a plain sentence")
	if markers != nil {
		t.Fatalf("expected nil markers, got %+v", markers)
	}
	if residual != "just a plain sentence" {
		t.Fatalf("unexpected residual %q", residual)
	}
}
