package player

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/visiona/texrelay/internal/engine"
)

// ErrBadAudioDevice is returned for an empty audio device id.
var ErrBadAudioDevice = errors.New("player: empty audio device id")

// defaultAudioDevices is the fallback list when no session is active or the
// engine cannot enumerate outputs. The auto device is always first so UIs
// can preselect it.
var defaultAudioDevices = []engine.AudioDevice{
	{ID: "auto", Name: "System Default"},
}

// AudioDevices lists selectable audio outputs. Enumeration failures degrade
// to the default list rather than erroring, because device listing is a UI
// nicety, not a playback requirement.
func (p *Player) AudioDevices() []engine.AudioDevice {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()

	if s == nil {
		return defaultAudioDevices
	}

	devices, err := s.engine.AudioDevices()
	if err != nil || len(devices) == 0 {
		if err != nil && err != engine.ErrPropertyUnavailable {
			slog.Warn("player: audio device enumeration failed", "error", err)
		}
		return defaultAudioDevices
	}
	return devices
}

// SetAudioDevice routes audio output to the device with the given id, as
// reported by AudioDevices. "auto" restores the engine's own selection.
func (p *Player) SetAudioDevice(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrBadAudioDevice
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return ErrNoSession
	}
	return p.session.engine.SetProperty(engine.PropAudioDevice, id)
}
