// Package sink publishes rendered texture frames to a named share service
// that downstream compositing tools discover and consume.
//
// Two transports are provided: an in-process bus sink, which is also the
// stand-in for the platform texture-share services on macOS and Windows, and
// a websocket sink that streams frames to an external receiver process.
package sink

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/visiona/texrelay/internal/framebus"
)

var (
	ErrSinkStopped  = errors.New("sink: sink is stopped")
	ErrSinkReleased = errors.New("sink: sink is released")
)

// Kind selects the sink transport.
type Kind string

const (
	// KindBus publishes onto an in-process frame bus.
	KindBus Kind = "bus"

	// KindWS streams frames to an external websocket receiver.
	KindWS Kind = "ws"
)

// Sink is a live texture-share publisher.
//
// The lifecycle is Publish* -> Stop -> Release. Stop ends frame delivery but
// keeps the service registered so consumers see a clean end of stream;
// Release unregisters the service. Both are idempotent.
type Sink interface {
	// Name returns the service name consumers discover.
	Name() string

	// Publish sends one frame.
	Publish(frame framebus.TextureFrame) error

	// Stop ends frame delivery. Further publishes fail with ErrSinkStopped.
	Stop() error

	// Release unregisters the service and frees transport resources.
	Release() error
}

// Config configures sink construction.
type Config struct {
	Kind Kind

	// ServiceName is the discoverable name. Empty uses DefaultServiceName.
	ServiceName string

	// Bus receives frames for KindBus. Required for that kind.
	Bus *framebus.Bus

	// Endpoint is the receiver URL for KindWS, e.g. "ws://127.0.0.1:9910/frames".
	Endpoint string
}

// DefaultServiceName is the share name used when none is configured,
// qualified with the platform share convention.
func DefaultServiceName() string {
	return fmt.Sprintf("%s:texrelay-out", PlatformLabel())
}

// PlatformLabel names the texture-share convention native to the host OS.
func PlatformLabel() string {
	switch runtime.GOOS {
	case "darwin":
		return "syphon"
	case "windows":
		return "spout"
	default:
		return "bus"
	}
}

// New builds a sink from cfg.
func New(cfg Config) (Sink, error) {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName()
	}

	switch cfg.Kind {
	case KindBus, "":
		if cfg.Bus == nil {
			return nil, fmt.Errorf("sink: bus sink requires a frame bus")
		}
		return newBusSink(name, cfg.Bus), nil
	case KindWS:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("sink: ws sink requires an endpoint")
		}
		return newWSSink(name, cfg.Endpoint)
	default:
		return nil, fmt.Errorf("sink: unknown sink kind %q", cfg.Kind)
	}
}
