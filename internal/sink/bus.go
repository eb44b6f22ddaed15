package sink

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/visiona/texrelay/internal/framebus"
)

// busSink publishes frames onto an in-process frame bus. Local consumers
// (the preview relay, the websocket hub) attach taps to the same bus.
type busSink struct {
	name string
	bus  *framebus.Bus

	mu       sync.Mutex
	stopped  bool
	released bool

	published atomic.Uint64
}

func newBusSink(name string, bus *framebus.Bus) *busSink {
	slog.Info("sink: bus sink registered", "service", name)
	return &busSink{name: name, bus: bus}
}

func (s *busSink) Name() string { return s.name }

func (s *busSink) Publish(frame framebus.TextureFrame) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrSinkReleased
	}
	if s.stopped {
		s.mu.Unlock()
		return ErrSinkStopped
	}
	s.mu.Unlock()

	s.bus.Publish(frame)
	s.published.Add(1)
	return nil
}

func (s *busSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	slog.Info("sink: bus sink stopped",
		"service", s.name,
		"frames_published", s.published.Load(),
	)
	return nil
}

func (s *busSink) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.stopped = true
	s.released = true
	slog.Info("sink: bus sink released", "service", s.name)
	return nil
}
