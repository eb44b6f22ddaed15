package player

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/visiona/texrelay/internal/engine"
	"github.com/visiona/texrelay/internal/framebus"
	"github.com/visiona/texrelay/internal/gpu"
	"github.com/visiona/texrelay/internal/relay"
	"github.com/visiona/texrelay/internal/sink"
)

// stubEngine is a decode engine backed by a plain property map.
type stubEngine struct {
	mu     sync.Mutex
	props  map[string]any
	closed bool
	cmds   [][]string
}

func newStubEngine() *stubEngine {
	return &stubEngine{props: map[string]any{
		engine.PropPause:  false,
		engine.PropWidth:  int64(640),
		engine.PropHeight: int64(360),
	}}
}

func (e *stubEngine) Command(name string, args ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cmds = append(e.cmds, append([]string{name}, args...))
	return nil
}

func (e *stubEngine) SetProperty(name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.props[name] = value
	return nil
}

func (e *stubEngine) getProp(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.props[name]
	return v, ok
}

func (e *stubEngine) GetPropertyInt64(name string) (int64, error) {
	if v, ok := e.getProp(name); ok {
		if i, ok := v.(int64); ok {
			return i, nil
		}
	}
	return 0, engine.ErrPropertyUnavailable
}

func (e *stubEngine) GetPropertyFloat64(name string) (float64, error) {
	if v, ok := e.getProp(name); ok {
		if f, ok := v.(float64); ok {
			return f, nil
		}
	}
	return 0, engine.ErrPropertyUnavailable
}

func (e *stubEngine) GetPropertyBool(name string) (bool, error) {
	if v, ok := e.getProp(name); ok {
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return false, engine.ErrPropertyUnavailable
}

func (e *stubEngine) GetPropertyString(name string) (string, error) {
	if v, ok := e.getProp(name); ok {
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return "", engine.ErrPropertyUnavailable
}

func (e *stubEngine) WaitEvent(timeout time.Duration) engine.Event {
	if timeout > 0 {
		time.Sleep(timeout)
	}
	return engine.Event{Kind: engine.EventNone}
}

func (e *stubEngine) AudioDevices() ([]engine.AudioDevice, error) {
	return nil, engine.ErrPropertyUnavailable
}

func (e *stubEngine) NewRenderContext(gpu.Context) (engine.RenderContext, error) {
	return stubRenderCtx{}, nil
}

func (e *stubEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *stubEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

type stubRenderCtx struct{}

func (stubRenderCtx) Render(target gpu.Surface, w, h int, flip bool) error {
	return target.Clear(10, 20, 30, 255)
}
func (stubRenderCtx) Destroy() {}

type stubSink struct{}

func (stubSink) Name() string                          { return "stub" }
func (stubSink) Publish(framebus.TextureFrame) error   { return nil }
func (stubSink) Stop() error                           { return nil }
func (stubSink) Release() error                        { return nil }

type fakeHistory struct {
	mu      sync.Mutex
	started []string
	ended   map[string]string
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{ended: make(map[string]string)}
}

func (h *fakeHistory) SessionStarted(id, source, service string, startedAt time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, id)
	return nil
}

func (h *fakeHistory) SessionEnded(id string, endedAt time.Time, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ended[id] = reason
	return nil
}

func testConfig(t *testing.T, engines *[]*stubEngine, history HistoryRecorder) Config {
	t.Helper()
	return Config{
		NewEngine: func(quality string) (engine.Engine, error) {
			e := newStubEngine()
			if engines != nil {
				*engines = append(*engines, e)
			}
			return e, nil
		},
		GPU: gpu.NewSoftwareProvider(),
		NewSink: func(string, uintptr) (sink.Sink, error) {
			return stubSink{}, nil
		},
		History:     history,
		ServiceName: "test-out",
		Relay: relay.Options{
			Tick:              time.Millisecond,
			NegotiateStep:     time.Millisecond,
			NegotiateAttempts: 5,
			BlankFrameCount:   1,
			BlankFrameGap:     time.Millisecond,
			SettleDelay:       time.Millisecond,
			QuiesceDelay:      time.Millisecond,
		},
	}
}

func TestPlayRequiresSource(t *testing.T) {
	p, err := New(testConfig(t, nil, nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := p.Play("   ", ""); err != ErrEmptySource {
		t.Errorf("expected ErrEmptySource, got %v", err)
	}
}

func TestPlayAndStatus(t *testing.T) {
	var engines []*stubEngine
	p, err := New(testConfig(t, &engines, nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Stop()

	st, err := p.Play("https://example.com/media/clip.mp4", "720p")
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if st.Status != "playing" {
		t.Errorf("expected status playing, got %q", st.Status)
	}
	if st.SessionID == "" {
		t.Error("expected a session id")
	}
	if st.Title != "clip.mp4" {
		t.Errorf("expected filename fallback title, got %q", st.Title)
	}

	if len(engines) != 1 {
		t.Fatalf("expected 1 engine, got %d", len(engines))
	}
	if got := engines[0].cmds[0]; got[0] != engine.CmdLoadFile || got[1] != "https://example.com/media/clip.mp4" {
		t.Errorf("unexpected first engine command %v", got)
	}
}

func TestStopWithoutSessionIsNoop(t *testing.T) {
	p, err := New(testConfig(t, nil, nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop without session should be a no-op, got %v", err)
	}
	if st := p.Status(); st.Status != "stopped" {
		t.Errorf("expected stopped status, got %q", st.Status)
	}
}

func TestReplacementStopsPriorSession(t *testing.T) {
	var engines []*stubEngine
	history := newFakeHistory()
	p, err := New(testConfig(t, &engines, history))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Stop()

	first, err := p.Play("https://example.com/a.mp4", "")
	if err != nil {
		t.Fatalf("first Play failed: %v", err)
	}
	second, err := p.Play("https://example.com/b.mp4", "")
	if err != nil {
		t.Fatalf("second Play failed: %v", err)
	}

	if first.SessionID == second.SessionID {
		t.Error("replacement must create a new session id")
	}
	if len(engines) != 2 {
		t.Fatalf("expected 2 engines, got %d", len(engines))
	}
	if !engines[0].isClosed() {
		t.Error("first engine must be closed before the second session starts")
	}
	if engines[1].isClosed() {
		t.Error("second engine should still be open")
	}

	history.mu.Lock()
	reason := history.ended[first.SessionID]
	history.mu.Unlock()
	if reason != "replaced" {
		t.Errorf("expected end reason replaced, got %q", reason)
	}
}

func TestStopRecordsHistory(t *testing.T) {
	history := newFakeHistory()
	p, err := New(testConfig(t, nil, history))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	st, err := p.Play("https://example.com/a.mp4", "")
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	history.mu.Lock()
	defer history.mu.Unlock()
	if len(history.started) != 1 || history.started[0] != st.SessionID {
		t.Errorf("expected session start recorded, got %v", history.started)
	}
	if history.ended[st.SessionID] != "stopped" {
		t.Errorf("expected end reason stopped, got %q", history.ended[st.SessionID])
	}
}

func TestCommandsRequireSession(t *testing.T) {
	p, err := New(testConfig(t, nil, nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := p.TogglePause(); !errors.Is(err, ErrNoSession) {
		t.Errorf("TogglePause: expected ErrNoSession, got %v", err)
	}
	if err := p.Seek(10); !errors.Is(err, ErrNoSession) {
		t.Errorf("Seek: expected ErrNoSession, got %v", err)
	}
	if _, err := p.Position(); !errors.Is(err, ErrNoSession) {
		t.Errorf("Position: expected ErrNoSession, got %v", err)
	}
	if err := p.SetVolume(50); !errors.Is(err, ErrNoSession) {
		t.Errorf("SetVolume: expected ErrNoSession, got %v", err)
	}
}

func TestVolumeAndSpeedValidation(t *testing.T) {
	var engines []*stubEngine
	p, err := New(testConfig(t, &engines, nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Stop()
	if _, err := p.Play("https://example.com/a.mp4", ""); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	if err := p.SetVolume(101); err != ErrBadVolume {
		t.Errorf("expected ErrBadVolume, got %v", err)
	}
	if err := p.SetVolume(-1); err != ErrBadVolume {
		t.Errorf("expected ErrBadVolume, got %v", err)
	}
	if err := p.SetSpeed(0.1); err != ErrBadSpeed {
		t.Errorf("expected ErrBadSpeed, got %v", err)
	}
	if err := p.SetSpeed(5.0); err != ErrBadSpeed {
		t.Errorf("expected ErrBadSpeed, got %v", err)
	}

	if err := p.SetVolume(80); err != nil {
		t.Errorf("SetVolume(80) failed: %v", err)
	}
	if v, _ := engines[0].getProp(engine.PropVolume); v != 80 {
		t.Errorf("expected volume 80 on engine, got %v", v)
	}
	if err := p.SetSpeed(1.5); err != nil {
		t.Errorf("SetSpeed(1.5) failed: %v", err)
	}
}

func TestTogglePause(t *testing.T) {
	var engines []*stubEngine
	p, err := New(testConfig(t, &engines, nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Stop()
	if _, err := p.Play("https://example.com/a.mp4", ""); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	paused, err := p.TogglePause()
	if err != nil {
		t.Fatalf("TogglePause failed: %v", err)
	}
	if !paused {
		t.Error("expected paused after first toggle")
	}
	paused, err = p.TogglePause()
	if err != nil {
		t.Fatalf("second TogglePause failed: %v", err)
	}
	if paused {
		t.Error("expected resumed after second toggle")
	}
}

func TestAudioDevicesFallback(t *testing.T) {
	p, err := New(testConfig(t, nil, nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	devices := p.AudioDevices()
	if len(devices) != 1 || devices[0].ID != "auto" {
		t.Errorf("expected default device list, got %v", devices)
	}

	if _, err := p.Play("https://example.com/a.mp4", ""); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	defer p.Stop()

	devices = p.AudioDevices()
	if len(devices) != 1 || devices[0].Name != "System Default" {
		t.Errorf("expected fallback device list with a session, got %v", devices)
	}
}

func TestSetAudioDevice(t *testing.T) {
	var engines []*stubEngine
	p, err := New(testConfig(t, &engines, nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := p.SetAudioDevice("monitor-1"); err != ErrNoSession {
		t.Errorf("expected ErrNoSession without a session, got %v", err)
	}

	if _, err := p.Play("https://example.com/a.mp4", ""); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	defer p.Stop()

	if err := p.SetAudioDevice("  "); err != ErrBadAudioDevice {
		t.Errorf("expected ErrBadAudioDevice for blank id, got %v", err)
	}

	if err := p.SetAudioDevice("monitor-1"); err != nil {
		t.Fatalf("SetAudioDevice failed: %v", err)
	}
	if v, _ := engines[0].getProp(engine.PropAudioDevice); v != "monitor-1" {
		t.Errorf("expected audio-device monitor-1 on engine, got %v", v)
	}
}
