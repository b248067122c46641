package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// inboundEvent is one JSON frame from the carrier, per spec.md 6:
// event in {connected, start, media, stop, mark}.
type inboundEvent struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid"`
	Start     *startPayload `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
	Mark      *markPayload  `json:"mark,omitempty"`
}

// startPayload carries the call's dynamic variables: agent_id,
// call_id, phone_number, and whatever else the caller's dialplan
// passes through as custom parameters.
type startPayload struct {
	StreamSid        string            `json:"streamSid"`
	CustomParameters map[string]string `json:"customParameters"`
}

// mediaPayload carries one base64 mu-law 20ms frame.
type mediaPayload struct {
	Payload   string `json:"payload"`
	Timestamp string `json:"timestamp"`
	Chunk     string `json:"chunk"`
}

type markPayload struct {
	Name string `json:"name"`
}

// outboundMediaEvent mirrors the inbound media shape with the
// synthesised payload (spec.md 6).
type outboundMediaEvent struct {
	Event     string            `json:"event"`
	StreamSid string            `json:"streamSid"`
	Media     outboundMediaBody `json:"media"`
}

type outboundMediaBody struct {
	Payload string `json:"payload"`
}

// outboundClearEvent is sent to interrupt in-flight playback on
// barge-in or turn cancellation.
type outboundClearEvent struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

// wsTransport implements call.MediaTransport over one websocket
// connection, grounded on the teacher's newEventSender (a mutex-guarded
// single writer, since gorilla/websocket connections aren't safe for
// concurrent writes).
type wsTransport struct {
	conn      *websocket.Conn
	streamSid string

	mu sync.Mutex
}

// SendMedia writes one outbound media frame. payload is already the
// base64-encoded mu-law bytes the TTS Streamer produced.
func (t *wsTransport) SendMedia(ctx context.Context, payload []byte) error {
	ev := outboundMediaEvent{
		Event:     "media",
		StreamSid: t.streamSid,
		Media:     outboundMediaBody{Payload: string(payload)},
	}
	return t.writeJSON(ev)
}

// SendClear writes one outbound clear event.
func (t *wsTransport) SendClear(ctx context.Context) error {
	return t.writeJSON(outboundClearEvent{Event: "clear", StreamSid: t.streamSid})
}

func (t *wsTransport) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}
