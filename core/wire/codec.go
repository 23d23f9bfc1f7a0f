// Package wire encodes turn events for the outbound text-based stream.
//
// The frame layout mirrors the consumer-facing contract: every frame is a
// JSON object tagged by "type", carrying only the fields relevant to that
// type. Frames are delivered either as server-sent events or as websocket
// text messages.
package wire

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/voxpet/voxpet-core/core/events"
)

// Envelope is the JSON frame written for one event. Every frame names the
// turn it belongs to in "id" so consumers can correlate interleaved turns.
type Envelope struct {
	Type     events.Kind `json:"type"`
	ID       string      `json:"id,omitempty"`
	Content  string      `json:"content,omitempty"`
	AudioURL string      `json:"audio_url,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Encode renders one event as a JSON frame.
func Encode(event events.Event) ([]byte, error) {
	envelope := Envelope{Type: event.Kind(), ID: event.TurnID()}

	switch typedEvent := event.(type) {
	case events.Start:
	case events.Chunk:
		envelope.Content = typedEvent.Content
	case events.ToolCallNotice:
		envelope.Content = typedEvent.Content
	case events.Audio:
		envelope.AudioURL = typedEvent.AudioRef
	case events.Error:
		envelope.Error = typedEvent.Message
	case events.End:
		envelope.AudioURL = typedEvent.AudioRef
	default:
		return nil, fmt.Errorf("wire: unknown event kind %q", event.Kind())
	}

	frame, err := sonic.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %q frame: %w", event.Kind(), err)
	}
	return frame, nil
}

// EncodeSSE renders one event as a server-sent-event frame.
func EncodeSSE(event events.Event) ([]byte, error) {
	frame, err := Encode(event)
	if err != nil {
		return nil, err
	}
	return append(append([]byte("data: "), frame...), '\n', '\n'), nil
}

// Decode parses a JSON frame back into its envelope, for consumers and tests.
func Decode(frame []byte) (Envelope, error) {
	var envelope Envelope
	if err := sonic.Unmarshal(frame, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("wire: unmarshal frame: %w", err)
	}
	if envelope.Type == "" {
		return Envelope{}, fmt.Errorf("wire: frame missing type field")
	}
	return envelope, nil
}
