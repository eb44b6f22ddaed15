// Package engine defines the capability interface the relay consumes from a
// decode engine: property access, commands, event polling and render-context
// creation. Implementations own media fetch, demuxing and decoding; the relay
// only drives the render callback and reads playback state.
package engine

import (
	"errors"
	"time"

	"github.com/visiona/texrelay/internal/gpu"
)

// Well-known property names. Implementations may support more.
const (
	PropPause       = "pause"
	PropWidth       = "width"
	PropHeight      = "height"
	PropTimePos     = "time-pos"
	PropDuration    = "duration"
	PropSpeed       = "speed"
	PropVolume      = "volume"
	PropMute        = "mute"
	PropLoopFile    = "loop-file"
	PropMediaTitle  = "media-title"
	PropAudioDevice = "audio-device"
)

// Well-known command names.
const (
	CmdLoadFile = "loadfile"
	CmdStop     = "stop"
	CmdSeek     = "seek"
)

var (
	// ErrPropertyUnavailable is returned when a property is not known or
	// has no value yet. Callers are expected to degrade, not abort.
	ErrPropertyUnavailable = errors.New("engine: property unavailable")

	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New("engine: closed")
)

// EventKind identifies an engine event.
type EventKind int

const (
	// EventNone means no event arrived within the poll timeout.
	EventNone EventKind = iota

	// EventVideoReconfig signals that the video output format changed and
	// width/height properties are worth re-reading.
	EventVideoReconfig

	// EventEndOfFile signals playback reached the end of the source.
	EventEndOfFile

	// EventError signals a non-recoverable engine error.
	EventError
)

// Event is a single engine event. Err is set for EventError only.
type Event struct {
	Kind EventKind
	Err  error
}

// AudioDevice describes an output audio device.
type AudioDevice struct {
	ID   string
	Name string
}

// Engine is the decode-engine capability set.
//
// The relay worker borrows an Engine for the session's lifetime; it never
// owns it. Close is the owner's call, and must happen only after the relay
// worker has fully exited.
type Engine interface {
	// Command issues a playback command (loadfile, stop, seek, ...).
	Command(name string, args ...string) error

	// SetProperty sets an engine property.
	SetProperty(name string, value any) error

	// Property getters. A missing or not-yet-known value is reported as
	// ErrPropertyUnavailable.
	GetPropertyInt64(name string) (int64, error)
	GetPropertyFloat64(name string) (float64, error)
	GetPropertyBool(name string) (bool, error)
	GetPropertyString(name string) (string, error)

	// WaitEvent polls for the next event, blocking at most timeout.
	WaitEvent(timeout time.Duration) Event

	// AudioDevices lists output audio devices known to the engine.
	AudioDevices() ([]AudioDevice, error)

	// NewRenderContext creates the render callback bound to a GPU context.
	// Must be called from the thread on which ctx is current, and the
	// returned context must be destroyed while ctx is still current.
	NewRenderContext(ctx gpu.Context) (RenderContext, error)

	// Close releases the engine. Owner-only; see type comment.
	Close() error
}

// RenderContext renders the current video frame into a target surface.
type RenderContext interface {
	// Render draws the newest decoded frame into target at the given size.
	// flip requests a vertically flipped output.
	Render(target gpu.Surface, width, height int, flip bool) error

	// Destroy releases the render context. Must run while the GPU context
	// it was created against is still current.
	Destroy()
}
