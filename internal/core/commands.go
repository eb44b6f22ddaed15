package core

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/visiona/texrelay/internal/control"
	"github.com/visiona/texrelay/internal/player"
)

// controlCallbacks maps control plane commands onto the player.
func (s *Service) controlCallbacks() control.Callbacks {
	return control.Callbacks{
		OnPlay: func(source, quality string) (map[string]interface{}, error) {
			st, err := s.player.Play(source, quality)
			if err != nil {
				return nil, err
			}
			return statusMap(st), nil
		},
		OnStop:           s.player.Stop,
		OnTogglePause:    s.player.TogglePause,
		OnSeek:           s.player.Seek,
		OnSetVolume:      s.player.SetVolume,
		OnSetSpeed:       s.player.SetSpeed,
		OnSetLoop:        s.player.SetLoop,
		OnSetMute:        s.player.SetMute,
		OnSetAudioDevice: s.player.SetAudioDevice,
		OnGetStatus: func() map[string]interface{} {
			return statusMap(s.player.Status())
		},
		OnShutdown: func() error {
			s.mu.Lock()
			cancel := s.cancelRun
			s.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			return nil
		},
	}
}

func statusMap(st player.Status) map[string]interface{} {
	m := map[string]interface{}{
		"status":        st.Status,
		"output_active": st.OutputActive,
	}
	if st.SessionID != "" {
		m["session_id"] = st.SessionID
	}
	if st.Source != "" {
		m["source"] = st.Source
	}
	if st.Title != "" {
		m["title"] = st.Title
	}
	if st.Width > 0 {
		m["width"] = st.Width
		m["height"] = st.Height
	}
	if st.Status == "playing" || st.Status == "paused" {
		m["position"] = st.Position
		m["duration"] = st.Duration
		m["speed"] = st.Speed
	}
	if st.Error != "" {
		m["error"] = st.Error
	}
	return m
}

// healthPayload is the periodic health report published to the broker.
type healthPayload struct {
	Status        string `json:"status"`
	InstanceID    string `json:"instance_id"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Playback      string `json:"playback"`
	OutputActive  bool   `json:"output_active"`
	WSClients     int    `json:"ws_clients"`
	MQTTErrors    uint64 `json:"mqtt_errors"`
}

// publishHealth reports service health on a fixed ticker until ctx ends.
func (s *Service) publishHealth(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.player.Status()

			health := healthPayload{
				Status:        "healthy",
				InstanceID:    s.cfg.InstanceID,
				UptimeSeconds: int64(time.Since(s.started).Seconds()),
				Playback:      st.Status,
				OutputActive:  st.OutputActive,
				WSClients:     s.hub.ClientCount(),
				MQTTErrors:    s.mqtt.Stats().Errors,
			}
			if st.Status == "error" {
				health.Status = "degraded"
			}

			payload, err := json.Marshal(health)
			if err != nil {
				slog.Error("failed to marshal health payload", "error", err)
				continue
			}
			if err := s.mqtt.PublishHealth(payload); err != nil {
				slog.Debug("health publish failed", "error", err)
			}
		}
	}
}
