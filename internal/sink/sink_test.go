package sink

import (
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/visiona/texrelay/internal/framebus"
)

func TestBusSinkLifecycle(t *testing.T) {
	bus := framebus.New()
	defer bus.Close()

	ch := make(chan framebus.TextureFrame, 4)
	if err := bus.Attach("consumer", ch); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	s, err := New(Config{Kind: KindBus, ServiceName: "test-out", Bus: bus})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.Name() != "test-out" {
		t.Errorf("expected service name test-out, got %s", s.Name())
	}

	frame := framebus.TextureFrame{Data: []byte{0, 0, 0, 255}, Width: 1, Height: 1, Sequence: 1}
	if err := s.Publish(frame); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-ch:
		if got.Sequence != 1 {
			t.Errorf("expected sequence 1, got %d", got.Sequence)
		}
	case <-time.After(time.Second):
		t.Fatal("consumer never received the frame")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
	if err := s.Publish(frame); err != ErrSinkStopped {
		t.Errorf("expected ErrSinkStopped after Stop, got %v", err)
	}

	if err := s.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := s.Publish(frame); err != ErrSinkReleased {
		t.Errorf("expected ErrSinkReleased after Release, got %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{Kind: KindBus}); err == nil {
		t.Error("expected error for bus sink without a bus")
	}
	if _, err := New(Config{Kind: KindWS}); err == nil {
		t.Error("expected error for ws sink without an endpoint")
	}
	if _, err := New(Config{Kind: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown sink kind")
	}
}

func TestDefaultServiceName(t *testing.T) {
	name := DefaultServiceName()
	if !strings.HasSuffix(name, ":texrelay-out") {
		t.Errorf("unexpected default service name %q", name)
	}
}

func TestWSSinkStreamsFrames(t *testing.T) {
	type received struct {
		kind int
		data []byte
	}
	recv := make(chan received, 16)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			recv <- received{kind: kind, data: data}
		}
	}))
	defer srv.Close()

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	s, err := New(Config{Kind: KindWS, ServiceName: "ws-out", Endpoint: endpoint})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Registration control message arrives first.
	select {
	case msg := <-recv:
		if msg.kind != websocket.TextMessage {
			t.Errorf("expected text control message, got kind %d", msg.kind)
		}
		if !strings.Contains(string(msg.data), "register") {
			t.Errorf("expected register event, got %s", msg.data)
		}
	case <-time.After(time.Second):
		t.Fatal("no register message received")
	}

	frame := framebus.TextureFrame{
		Data:     []byte{10, 20, 30, 255},
		Width:    1,
		Height:   1,
		Flipped:  true,
		Sequence: 7,
	}
	if err := s.Publish(frame); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-recv:
		if msg.kind != websocket.BinaryMessage {
			t.Fatalf("expected binary frame message, got kind %d", msg.kind)
		}
		if len(msg.data) != wsFrameHeader+4 {
			t.Fatalf("unexpected message length %d", len(msg.data))
		}
		if w := binary.LittleEndian.Uint32(msg.data[0:]); w != 1 {
			t.Errorf("expected width 1, got %d", w)
		}
		if f := binary.LittleEndian.Uint32(msg.data[8:]); f != 1 {
			t.Errorf("expected flipped flag set, got %d", f)
		}
		if seq := binary.LittleEndian.Uint64(msg.data[12:]); seq != 7 {
			t.Errorf("expected sequence 7, got %d", seq)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame message received")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := s.Publish(frame); err != ErrSinkReleased {
		t.Errorf("expected ErrSinkReleased, got %v", err)
	}
}
