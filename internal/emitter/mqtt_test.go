package emitter

import "testing"

func TestEmitSkipsPreviewFrames(t *testing.T) {
	e := NewMQTTEmitter(MQTTConfig{
		Broker:      "tcp://127.0.0.1:1883",
		StatusTopic: "texrelay/status/test",
	})

	// Disconnected, so a status event counts as a delivery failure. A
	// preview frame must be filtered before the connection check and never
	// touch the counters.
	e.Emit(EventPreviewFrame, map[string]int{"width": 320})
	if got := e.Stats().Errors; got != 0 {
		t.Fatalf("preview frame emit recorded %d errors, want 0", got)
	}

	e.Emit(EventPlayerStatus, map[string]string{"status": "playing"})
	if got := e.Stats().Errors; got != 1 {
		t.Fatalf("disconnected status emit recorded %d errors, want 1", got)
	}
}
