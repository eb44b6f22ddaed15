// Package emitter carries fire-and-forget events from the playback core to
// whoever is listening: the websocket hub, the MQTT status topic, or a test.
package emitter

// Event names used across the playback core. Declared here, on the leaf
// package every producer and listener already imports, so no side hard-codes
// the strings.
const (
	// EventPlayerStatus carries playback state transitions.
	EventPlayerStatus = "player-status"

	// EventPreviewFrame carries base64 preview snapshots for the UI.
	EventPreviewFrame = "preview-frame"
)

// Emitter delivers named events. Implementations must never block the
// caller; a slow listener drops events rather than stalling the render path.
type Emitter interface {
	Emit(event string, payload any)
}

// Func adapts a function to the Emitter interface.
type Func func(event string, payload any)

func (f Func) Emit(event string, payload any) { f(event, payload) }

// Null discards every event.
type Null struct{}

func (Null) Emit(string, any) {}

// Fanout delivers each event to every wrapped emitter in order.
type Fanout []Emitter

func (f Fanout) Emit(event string, payload any) {
	for _, e := range f {
		e.Emit(event, payload)
	}
}
