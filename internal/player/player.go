// Package player owns the playback control plane: one active relay session
// at a time, the full playback command surface, and session history. It is
// the only package that creates and closes decode engines; the relay borrows
// them and the player frees them strictly after the relay worker has joined.
package player

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/visiona/texrelay/internal/emitter"
	"github.com/visiona/texrelay/internal/engine"
	"github.com/visiona/texrelay/internal/gpu"
	"github.com/visiona/texrelay/internal/relay"
)

var (
	ErrNoSession   = errors.New("player: no active session")
	ErrBadVolume   = errors.New("player: volume must be between 0 and 100")
	ErrBadSpeed    = errors.New("player: speed must be between 0.25 and 4.0")
	ErrEmptySource = errors.New("player: empty source")
)

// EngineFactory creates a decode engine for one session. quality is the
// resolution cap hint from the play request.
type EngineFactory func(quality string) (engine.Engine, error)

// HistoryRecorder persists session lifecycle events. Implementations must
// tolerate being called from the control plane only.
type HistoryRecorder interface {
	SessionStarted(id, source, service string, startedAt time.Time) error
	SessionEnded(id string, endedAt time.Time, reason string) error
}

// Config wires the player's collaborators.
type Config struct {
	NewEngine   EngineFactory
	GPU         gpu.Provider
	NewSink     relay.SinkFactory
	Emitter     emitter.Emitter
	History     HistoryRecorder // optional
	ServiceName string

	// Relay carries tunable session options; Engine/GPU/NewSink/Emitter
	// and identity fields are filled per session by the player.
	Relay relay.Options
}

func (c *Config) validate() error {
	if c.NewEngine == nil {
		return fmt.Errorf("player: config requires an engine factory")
	}
	if c.GPU == nil {
		return fmt.Errorf("player: config requires a GPU provider")
	}
	if c.NewSink == nil {
		return fmt.Errorf("player: config requires a sink factory")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("player: config requires a service name")
	}
	return nil
}

// Status is the control-plane view of playback.
type Status struct {
	Status       string  `json:"status"` // playing, paused, stopped, error
	SessionID    string  `json:"session_id,omitempty"`
	Source       string  `json:"source,omitempty"`
	Title        string  `json:"title,omitempty"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	Position     float64 `json:"position,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
	Speed        float64 `json:"speed,omitempty"`
	OutputActive bool    `json:"output_active"`
	Error        string  `json:"error,omitempty"`
}

type session struct {
	id      string
	source  string
	engine  engine.Engine
	handle  *relay.Handle
	started time.Time
}

// Player manages at most one active session.
type Player struct {
	cfg Config

	mu      sync.Mutex
	session *session
}

// New creates a player. Fails fast on an incomplete config.
func New(cfg Config) (*Player, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Emitter == nil {
		cfg.Emitter = emitter.Null{}
	}
	return &Player{cfg: cfg}, nil
}

// Play starts relaying source. Any prior session is fully stopped first;
// replacement never overlaps two sessions.
func (p *Player) Play(source, quality string) (Status, error) {
	if strings.TrimSpace(source) == "" {
		return Status{}, ErrEmptySource
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		p.stopLocked("replaced")
	}

	eng, err := p.cfg.NewEngine(quality)
	if err != nil {
		return Status{}, fmt.Errorf("player: engine creation failed: %w", err)
	}
	if err := eng.Command(engine.CmdLoadFile, source); err != nil {
		eng.Close()
		return Status{}, fmt.Errorf("player: load failed: %w", err)
	}

	opts := p.cfg.Relay
	opts.Engine = eng
	opts.GPU = p.cfg.GPU
	opts.NewSink = p.cfg.NewSink
	opts.Emitter = p.cfg.Emitter
	opts.ServiceName = p.cfg.ServiceName
	opts.Source = source

	handle, err := relay.Spawn(opts)
	if err != nil {
		eng.Command(engine.CmdStop)
		eng.Close()
		return Status{}, fmt.Errorf("player: session spawn failed: %w", err)
	}

	s := &session{
		id:      uuid.NewString(),
		source:  source,
		engine:  eng,
		handle:  handle,
		started: time.Now(),
	}
	p.session = s

	if p.cfg.History != nil {
		if err := p.cfg.History.SessionStarted(s.id, source, p.cfg.ServiceName, s.started); err != nil {
			// History is advisory; playback proceeds.
			p.cfg.Emitter.Emit("history-error", map[string]string{"error": err.Error()})
		}
	}
	return p.statusLocked(), nil
}

// Stop ends the active session. No-op when nothing is playing.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	p.stopLocked("stopped")
	p.cfg.Emitter.Emit(emitter.EventPlayerStatus, relay.PlayerStatus{Status: "stopped"})
	return nil
}

// stopLocked performs the strict stop sequence: join the relay worker so no
// further engine access happens, then stop and free the engine.
func (p *Player) stopLocked(reason string) {
	s := p.session
	p.session = nil

	s.handle.Stop()
	if err := s.handle.Status().Err; err != nil {
		reason = fmt.Sprintf("%s: %s", reason, err)
	}

	s.engine.Command(engine.CmdStop)
	s.engine.Close()

	if p.cfg.History != nil {
		if err := p.cfg.History.SessionEnded(s.id, time.Now(), reason); err != nil {
			p.cfg.Emitter.Emit("history-error", map[string]string{"error": err.Error()})
		}
	}
}

// TogglePause flips the pause state and returns the new state.
func (p *Player) TogglePause() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.session
	if s == nil {
		return false, ErrNoSession
	}

	paused, err := s.engine.GetPropertyBool(engine.PropPause)
	if err != nil {
		return false, fmt.Errorf("player: failed to read pause state: %w", err)
	}
	if err := s.engine.SetProperty(engine.PropPause, !paused); err != nil {
		return false, fmt.Errorf("player: failed to set pause state: %w", err)
	}

	status := "playing"
	if !paused {
		status = "paused"
	}
	p.cfg.Emitter.Emit(emitter.EventPlayerStatus, relay.PlayerStatus{Status: status})
	return !paused, nil
}

// Seek jumps to an absolute position in seconds.
func (p *Player) Seek(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return ErrNoSession
	}
	if seconds < 0 {
		seconds = 0
	}
	return p.session.engine.Command(engine.CmdSeek, fmt.Sprintf("%.3f", seconds))
}

// Position returns the playback position in seconds.
func (p *Player) Position() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return 0, ErrNoSession
	}
	return p.session.engine.GetPropertyFloat64(engine.PropTimePos)
}

// Duration returns the media duration in seconds.
func (p *Player) Duration() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return 0, ErrNoSession
	}
	return p.session.engine.GetPropertyFloat64(engine.PropDuration)
}

// SetSpeed sets the playback rate, bounded to 0.25x through 4.0x.
func (p *Player) SetSpeed(speed float64) error {
	if speed < 0.25 || speed > 4.0 {
		return ErrBadSpeed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return ErrNoSession
	}
	return p.session.engine.SetProperty(engine.PropSpeed, speed)
}

// SetLoop toggles looping the current media.
func (p *Player) SetLoop(loop bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return ErrNoSession
	}
	return p.session.engine.SetProperty(engine.PropLoopFile, loop)
}

// SetMute toggles audio mute.
func (p *Player) SetMute(mute bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return ErrNoSession
	}
	return p.session.engine.SetProperty(engine.PropMute, mute)
}

// SetVolume sets the audio volume, 0 through 100.
func (p *Player) SetVolume(volume int) error {
	if volume < 0 || volume > 100 {
		return ErrBadVolume
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return ErrNoSession
	}
	return p.session.engine.SetProperty(engine.PropVolume, volume)
}

// Title returns the media title, falling back to the source filename when
// the engine has no title yet.
func (p *Player) Title() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.session
	if s == nil {
		return "", ErrNoSession
	}

	title, err := s.engine.GetPropertyString(engine.PropMediaTitle)
	if err == nil && title != "" && title != s.source {
		return title, nil
	}
	return sourceTitle(s.source), nil
}

// Status returns the control-plane snapshot.
func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

func (p *Player) statusLocked() Status {
	s := p.session
	if s == nil {
		return Status{Status: "stopped"}
	}

	rs := s.handle.Status()
	st := Status{
		SessionID:    s.id,
		Source:       s.source,
		Width:        rs.Width,
		Height:       rs.Height,
		OutputActive: rs.State == relay.StateRunning,
	}

	switch {
	case rs.Err != nil:
		st.Status = "error"
		st.Error = rs.Err.Error()
	case rs.State == relay.StateTerminated:
		st.Status = "stopped"
	default:
		st.Status = "playing"
		if paused, err := s.engine.GetPropertyBool(engine.PropPause); err == nil && paused {
			st.Status = "paused"
		}
	}

	if title, err := s.engine.GetPropertyString(engine.PropMediaTitle); err == nil && title != "" && title != s.source {
		st.Title = title
	} else {
		st.Title = sourceTitle(s.source)
	}
	if pos, err := s.engine.GetPropertyFloat64(engine.PropTimePos); err == nil {
		st.Position = pos
	}
	if dur, err := s.engine.GetPropertyFloat64(engine.PropDuration); err == nil {
		st.Duration = dur
	}
	if speed, err := s.engine.GetPropertyFloat64(engine.PropSpeed); err == nil {
		st.Speed = speed
	}
	return st
}

// sourceTitle derives a display title from a source locator.
func sourceTitle(source string) string {
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			return base
		}
	}
	return source
}
