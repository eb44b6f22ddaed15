package server

import (
	"errors"
	"net/http"

	"github.com/visiona/texrelay/internal/player"
)

type playRequest struct {
	Source  string `json:"source"`
	Quality string `json:"quality,omitempty"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := s.playback.Play(req.Source, req.Quality)
	if err != nil {
		if errors.Is(err, player.ErrEmptySource) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.playback.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.playback.Status())
}

func (s *Server) handleTogglePause(w http.ResponseWriter, r *http.Request) {
	paused, err := s.playback.TogglePause()
	if err != nil {
		writePlaybackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds float64 `json:"seconds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.playback.Seek(req.Seconds); err != nil {
		writePlaybackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"position": req.Seconds})
}

func (s *Server) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume int `json:"volume"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.playback.SetVolume(req.Volume); err != nil {
		writePlaybackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"volume": req.Volume})
}

func (s *Server) handleSetSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.playback.SetSpeed(req.Speed); err != nil {
		writePlaybackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"speed": req.Speed})
}

func (s *Server) handleSetLoop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Loop bool `json:"loop"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.playback.SetLoop(req.Loop); err != nil {
		writePlaybackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"loop": req.Loop})
}

func (s *Server) handleSetMute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mute bool `json:"mute"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.playback.SetMute(req.Mute); err != nil {
		writePlaybackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"muted": req.Mute})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.playback.Status())
}

// writePlaybackError maps playback errors onto HTTP statuses.
func writePlaybackError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, player.ErrNoSession):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, player.ErrBadVolume), errors.Is(err, player.ErrBadSpeed),
		errors.Is(err, player.ErrBadAudioDevice):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
