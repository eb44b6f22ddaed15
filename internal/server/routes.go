package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)

		r.Post("/play", s.handlePlay)
		r.Post("/stop", s.handleStop)
		r.Post("/pause", s.handleTogglePause)
		r.Post("/seek", s.handleSeek)
		r.Post("/volume", s.handleSetVolume)
		r.Post("/speed", s.handleSetSpeed)
		r.Post("/loop", s.handleSetLoop)
		r.Post("/mute", s.handleSetMute)
		r.Post("/audio-device", s.handleSetAudioDevice)

		r.Get("/status", s.handleStatus)
		r.Get("/audio-devices", s.handleAudioDevices)
		r.Get("/history", s.handleHistory)
	})

	if s.hub != nil {
		s.router.Get("/ws", s.hub.ServeHTTP)
	}
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"instance": s.instanceID,
	})
}
