package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiona/texrelay/internal/engine"
	"github.com/visiona/texrelay/internal/player"
	"github.com/visiona/texrelay/internal/store"
)

// fakePlayback is a scriptable Playback implementation.
type fakePlayback struct {
	status    player.Status
	playErr   error
	actionErr error

	lastSource  string
	lastQuality string
	volume      int
	speed       float64
	device      string
	stopped     bool
}

func (f *fakePlayback) Play(source, quality string) (player.Status, error) {
	if strings.TrimSpace(source) == "" {
		return player.Status{}, player.ErrEmptySource
	}
	if f.playErr != nil {
		return player.Status{}, f.playErr
	}
	f.lastSource = source
	f.lastQuality = quality
	f.status = player.Status{Status: "playing", Source: source, OutputActive: true}
	return f.status, nil
}

func (f *fakePlayback) Stop() error {
	f.stopped = true
	f.status = player.Status{Status: "stopped"}
	return nil
}

func (f *fakePlayback) TogglePause() (bool, error) {
	if f.actionErr != nil {
		return false, f.actionErr
	}
	return true, nil
}

func (f *fakePlayback) Seek(float64) error { return f.actionErr }

func (f *fakePlayback) SetVolume(v int) error {
	if v < 0 || v > 100 {
		return player.ErrBadVolume
	}
	f.volume = v
	return f.actionErr
}

func (f *fakePlayback) SetSpeed(v float64) error {
	if v < 0.25 || v > 4.0 {
		return player.ErrBadSpeed
	}
	f.speed = v
	return f.actionErr
}

func (f *fakePlayback) SetLoop(bool) error { return f.actionErr }
func (f *fakePlayback) SetMute(bool) error { return f.actionErr }

func (f *fakePlayback) SetAudioDevice(id string) error {
	if strings.TrimSpace(id) == "" {
		return player.ErrBadAudioDevice
	}
	f.device = id
	return f.actionErr
}

func (f *fakePlayback) Status() player.Status { return f.status }

func (f *fakePlayback) AudioDevices() []engine.AudioDevice {
	return []engine.AudioDevice{{ID: "auto", Name: "System Default"}}
}

type fakeHistory struct {
	records   []store.SessionRecord
	lastLimit int
}

func (f *fakeHistory) RecentSessions(limit int) ([]store.SessionRecord, error) {
	f.lastLimit = limit
	return f.records, nil
}

func newTestServer(t *testing.T, p Playback, opts ...Option) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(p, NewHub(), opts...))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakePlayback{}, WithInstanceID("relay-01"))

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "relay-01", body["instance"])
}

func TestPlay(t *testing.T) {
	fp := &fakePlayback{}
	srv := newTestServer(t, fp)

	resp := postJSON(t, srv.URL+"/api/play", `{"source":"https://example.com/a.mp4","quality":"720p"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var st player.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "playing", st.Status)
	assert.True(t, st.OutputActive)
	assert.Equal(t, "https://example.com/a.mp4", fp.lastSource)
	assert.Equal(t, "720p", fp.lastQuality)
}

func TestPlayRejectsEmptySource(t *testing.T) {
	srv := newTestServer(t, &fakePlayback{})
	resp := postJSON(t, srv.URL+"/api/play", `{"source":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlayRejectsBadBody(t *testing.T) {
	srv := newTestServer(t, &fakePlayback{})
	resp := postJSON(t, srv.URL+"/api/play", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStop(t *testing.T) {
	fp := &fakePlayback{}
	srv := newTestServer(t, fp)

	resp := postJSON(t, srv.URL+"/api/stop", ``)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, fp.stopped)
}

func TestPauseWithoutSession(t *testing.T) {
	fp := &fakePlayback{actionErr: player.ErrNoSession}
	srv := newTestServer(t, fp)

	resp := postJSON(t, srv.URL+"/api/pause", ``)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestVolumeValidation(t *testing.T) {
	fp := &fakePlayback{}
	srv := newTestServer(t, fp)

	resp := postJSON(t, srv.URL+"/api/volume", `{"volume":150}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/volume", `{"volume":75}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 75, fp.volume)
}

func TestSpeedValidation(t *testing.T) {
	fp := &fakePlayback{}
	srv := newTestServer(t, fp)

	resp := postJSON(t, srv.URL+"/api/speed", `{"speed":9.5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/speed", `{"speed":1.5}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.5, fp.speed)
}

func TestSetAudioDevice(t *testing.T) {
	fp := &fakePlayback{}
	srv := newTestServer(t, fp)

	resp := postJSON(t, srv.URL+"/api/audio-device", `{"device":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/audio-device", `{"device":"monitor-1"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "monitor-1", fp.device)
}

func TestAudioDevices(t *testing.T) {
	srv := newTestServer(t, &fakePlayback{})

	resp, err := http.Get(srv.URL + "/api/audio-devices")
	require.NoError(t, err)
	defer resp.Body.Close()

	var devices []engine.AudioDevice
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "auto", devices[0].ID)
}

func TestHistory(t *testing.T) {
	now := time.Now().UTC()
	fh := &fakeHistory{records: []store.SessionRecord{
		{ID: 1, SessionID: "s1", Source: "src", ServiceName: "out", StartedAt: now},
	}}
	srv := newTestServer(t, &fakePlayback{}, WithHistory(fh, 50))

	resp, err := http.Get(srv.URL + "/api/history?limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var records []store.SessionRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, "s1", records[0].SessionID)
	assert.Equal(t, 10, fh.lastLimit)
}

func TestHistoryBadLimit(t *testing.T) {
	srv := newTestServer(t, &fakePlayback{}, WithHistory(&fakeHistory{}, 50))
	resp, err := http.Get(srv.URL + "/api/history?limit=zero")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistoryWithoutStore(t *testing.T) {
	srv := newTestServer(t, &fakePlayback{})
	resp, err := http.Get(srv.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var records []store.SessionRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	assert.Empty(t, records)
}

func TestHubDeliversEvents(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewServer(&fakePlayback{}, hub))
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration is asynchronous relative to the dial returning.
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)

	hub.Emit("player-status", map[string]string{"status": "playing"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var env wsEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "player-status", env.Event)

	payload, ok := env.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "playing", payload["status"])
}

func TestHubDropsEventsForSlowClients(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	// No clients at all: emitting must not block or panic.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Emit("preview-frame", map[string]int{"n": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked with no consumers")
	}
}
