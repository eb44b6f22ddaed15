package server

import "net/http"

func (s *Server) handleAudioDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.playback.AudioDevices())
}

func (s *Server) handleSetAudioDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Device string `json:"device"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.playback.SetAudioDevice(req.Device); err != nil {
		writePlaybackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"device": req.Device})
}
