package wire

import (
	"fmt"
	"io"
	"iter"

	"github.com/gorilla/websocket"

	"github.com/voxpet/voxpet-core/core/events"
)

// Sink writes one encoded frame to the underlying channel.
type Sink interface {
	WriteFrame(frame []byte) error
}

// SSESink writes frames as server-sent events, flushing after each frame
// when the writer supports it.
type SSESink struct {
	w io.Writer
}

func NewSSESink(w io.Writer) *SSESink {
	return &SSESink{w: w}
}

func (s *SSESink) WriteFrame(frame []byte) error {
	payload := append(append([]byte("data: "), frame...), '\n', '\n')
	if _, err := s.w.Write(payload); err != nil {
		return fmt.Errorf("wire: write sse frame: %w", err)
	}
	if flusher, ok := s.w.(interface{ Flush() }); ok {
		flusher.Flush()
	}
	return nil
}

// SocketSink writes frames as websocket text messages.
type SocketSink struct {
	conn *websocket.Conn
}

func NewSocketSink(conn *websocket.Conn) *SocketSink {
	return &SocketSink{conn: conn}
}

func (s *SocketSink) WriteFrame(frame []byte) error {
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("wire: write websocket frame: %w", err)
	}
	return nil
}

// StreamTurn encodes and delivers a turn's events to sink, stopping after
// the terminal end event per the stream contract.
func StreamTurn(turn iter.Seq[events.Event], sink Sink) error {
	for event := range turn {
		frame, err := Encode(event)
		if err != nil {
			return err
		}
		if err := sink.WriteFrame(frame); err != nil {
			return err
		}
		if event.Kind() == events.KindEnd {
			return nil
		}
	}
	return nil
}
