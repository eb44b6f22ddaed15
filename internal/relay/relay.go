// Package relay is the render-relay orchestrator. Each session runs a
// dedicated worker goroutine pinned to one OS thread; that thread owns the
// GPU context, negotiates the real stream resolution, pumps the decode
// engine's render callback into an offscreen surface, publishes the result
// to a texture-share sink, and tears everything down in strict dependency
// order when the session drains.
package relay

import (
	"errors"
	"time"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle        State = "idle"
	StateNegotiating State = "negotiating"
	StateRunning     State = "running"
	StateDraining    State = "draining"
	StateTerminated  State = "terminated"
)

// Session-fatal errors.
var (
	ErrContextCreation       = errors.New("relay: GPU context creation failed")
	ErrRenderContextCreation = errors.New("relay: engine render context creation failed")
	ErrSinkCreation          = errors.New("relay: texture sink creation failed")
	ErrRenderThresholdAbort  = errors.New("relay: consecutive render failures exceeded threshold")
)

// PlayerStatus is the emitter.EventPlayerStatus payload.
type PlayerStatus struct {
	Status string `json:"status"`
}

// PreviewFrame is the emitter.EventPreviewFrame payload. Data is base64 RGBA.
type PreviewFrame struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   string `json:"data"`
}

// Status is a point-in-time snapshot of a session, safe to read from any
// thread. It holds plain values only, never GPU handles.
type Status struct {
	State               State
	Source              string
	ServiceName         string
	Width               int
	Height              int
	FramesPublished     uint64
	ConsecutiveFailures int
	StartedAt           time.Time
	Err                 error
}
