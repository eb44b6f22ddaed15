package relay

import (
	"fmt"
	"time"

	"github.com/visiona/texrelay/internal/emitter"
	"github.com/visiona/texrelay/internal/engine"
	"github.com/visiona/texrelay/internal/gpu"
	"github.com/visiona/texrelay/internal/sink"
)

// Defaults. The timing constants are soft targets carried over from the
// tuned production values; overrides exist mainly for tests.
const (
	DefaultTick              = 16 * time.Millisecond // ~60 Hz pump
	DefaultPreviewInterval   = 66 * time.Millisecond // ~15 Hz preview ceiling
	DefaultPreviewWidth      = 320
	DefaultNegotiateStep     = 100 * time.Millisecond
	DefaultNegotiateAttempts = 300 // ~30 s with the default step
	DefaultFailureThreshold  = 30  // ~0.5 s of failed renders at 60 Hz
	DefaultInitialWidth      = 1280
	DefaultInitialHeight     = 720
	DefaultBlankFrameCount   = 8
	DefaultBlankFrameGap     = 40 * time.Millisecond
	DefaultSettleDelay       = 250 * time.Millisecond
	DefaultQuiesceDelay      = 500 * time.Millisecond
)

// SinkFactory creates the texture-share sink once the negotiated size is
// known. nativeCtx is the worker's GPU context handle; the sink must be
// released before that context is destroyed.
type SinkFactory func(serviceName string, nativeCtx uintptr) (sink.Sink, error)

// Options configures a session spawn.
type Options struct {
	// Engine is the decode engine, borrowed for the session's lifetime.
	// The caller must not close it until Stop has returned.
	Engine engine.Engine

	// GPU provides the worker's rendering context.
	GPU gpu.Provider

	// NewSink builds the texture-share sink at the negotiated size.
	NewSink SinkFactory

	// Emitter receives preview frames and status events. Nil means discard.
	Emitter emitter.Emitter

	// ServiceName is the discoverable texture-share name.
	ServiceName string

	// Source is the media locator being relayed, recorded in status.
	Source string

	// InitialWidth/Height seed the surfaces until negotiation settles and
	// serve as the fallback size when it never does.
	InitialWidth  int
	InitialHeight int

	// FlipOutput asks the engine to render rows bottom-up, for consumers
	// that expect GL texture orientation.
	FlipOutput bool

	Tick              time.Duration
	PreviewInterval   time.Duration
	PreviewWidth      int
	NegotiateStep     time.Duration
	NegotiateAttempts int
	FailureThreshold  int

	BlankFrameCount int
	BlankFrameGap   time.Duration
	SettleDelay     time.Duration
	QuiesceDelay    time.Duration
}

func (o *Options) validate() error {
	if o.Engine == nil {
		return fmt.Errorf("relay: options require an engine")
	}
	if o.GPU == nil {
		return fmt.Errorf("relay: options require a GPU provider")
	}
	if o.NewSink == nil {
		return fmt.Errorf("relay: options require a sink factory")
	}
	if o.ServiceName == "" {
		return fmt.Errorf("relay: options require a service name")
	}
	return nil
}

func (o *Options) withDefaults() {
	if o.Emitter == nil {
		o.Emitter = emitter.Null{}
	}
	if o.InitialWidth <= 0 || o.InitialHeight <= 0 {
		o.InitialWidth = DefaultInitialWidth
		o.InitialHeight = DefaultInitialHeight
	}
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	if o.PreviewInterval <= 0 {
		o.PreviewInterval = DefaultPreviewInterval
	}
	if o.PreviewWidth <= 0 {
		o.PreviewWidth = DefaultPreviewWidth
	}
	if o.NegotiateStep <= 0 {
		o.NegotiateStep = DefaultNegotiateStep
	}
	if o.NegotiateAttempts <= 0 {
		o.NegotiateAttempts = DefaultNegotiateAttempts
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.BlankFrameCount <= 0 {
		o.BlankFrameCount = DefaultBlankFrameCount
	}
	if o.BlankFrameGap <= 0 {
		o.BlankFrameGap = DefaultBlankFrameGap
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.QuiesceDelay <= 0 {
		o.QuiesceDelay = DefaultQuiesceDelay
	}
}
