package sink

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/visiona/texrelay/internal/framebus"
)

const (
	wsWriteTimeout = 100 * time.Millisecond
	wsFrameHeader  = 24
)

// wsSink streams frames to an external receiver over a websocket.
//
// Each frame is one binary message: a 24-byte little-endian header
// (width, height, flipped, sequence) followed by the RGBA payload.
// Control transitions go out as text messages.
type wsSink struct {
	name string
	conn *websocket.Conn

	mu       sync.Mutex
	stopped  bool
	released bool
	dropped  uint64
}

func newWSSink(name, endpoint string) (*wsSink, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("sink: failed to dial receiver %s: %w", endpoint, err)
	}

	s := &wsSink{name: name, conn: conn}
	if err := s.writeControl("register", name); err != nil {
		conn.Close()
		return nil, err
	}
	slog.Info("sink: ws sink registered", "service", name, "endpoint", endpoint)
	return s, nil
}

func (s *wsSink) Name() string { return s.name }

func (s *wsSink) Publish(frame framebus.TextureFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrSinkReleased
	}
	if s.stopped {
		return ErrSinkStopped
	}

	msg := make([]byte, wsFrameHeader+len(frame.Data))
	binary.LittleEndian.PutUint32(msg[0:], uint32(frame.Width))
	binary.LittleEndian.PutUint32(msg[4:], uint32(frame.Height))
	var flipped uint32
	if frame.Flipped {
		flipped = 1
	}
	binary.LittleEndian.PutUint32(msg[8:], flipped)
	binary.LittleEndian.PutUint64(msg[12:], frame.Sequence)
	binary.LittleEndian.PutUint32(msg[20:], uint32(len(frame.Data)))
	copy(msg[wsFrameHeader:], frame.Data)

	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		// A slow receiver drops frames, it does not stall the pump.
		s.dropped++
		if s.dropped%60 == 1 {
			slog.Warn("sink: ws receiver lagging, dropping frames",
				"service", s.name,
				"dropped", s.dropped,
			)
		}
		return nil
	}
	return nil
}

func (s *wsSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	if err := s.writeControl("stop", s.name); err != nil {
		slog.Warn("sink: ws stop announce failed", "service", s.name, "error", err)
	}
	return nil
}

func (s *wsSink) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.stopped = true
	s.released = true
	s.writeControl("release", s.name)
	err := s.conn.Close()
	slog.Info("sink: ws sink released", "service", s.name, "dropped", s.dropped)
	return err
}

func (s *wsSink) writeControl(event, service string) error {
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	payload := fmt.Sprintf(`{"event":%q,"service":%q}`, event, service)
	return s.conn.WriteMessage(websocket.TextMessage, []byte(payload))
}
