// Package server exposes the local control API: a chi HTTP surface for
// playback commands and a websocket hub that streams status and preview
// events to UI clients.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/visiona/texrelay/internal/engine"
	"github.com/visiona/texrelay/internal/player"
	"github.com/visiona/texrelay/internal/store"
)

// Playback is the player surface the API drives.
type Playback interface {
	Play(source, quality string) (player.Status, error)
	Stop() error
	TogglePause() (bool, error)
	Seek(seconds float64) error
	SetVolume(volume int) error
	SetSpeed(speed float64) error
	SetLoop(loop bool) error
	SetMute(mute bool) error
	SetAudioDevice(id string) error
	Status() player.Status
	AudioDevices() []engine.AudioDevice
}

// HistoryLister reads session history.
type HistoryLister interface {
	RecentSessions(limit int) ([]store.SessionRecord, error)
}

type Server struct {
	router       chi.Router
	playback     Playback
	hub          *Hub
	history      HistoryLister
	historyLimit int
	instanceID   string
}

type Option func(*Server)

func WithHistory(h HistoryLister, limit int) Option {
	return func(s *Server) {
		s.history = h
		s.historyLimit = limit
	}
}

func WithInstanceID(id string) Option {
	return func(s *Server) { s.instanceID = id }
}

func NewServer(p Playback, hub *Hub, opts ...Option) *Server {
	srv := &Server{
		router:       chi.NewRouter(),
		playback:     p,
		hub:          hub,
		historyLimit: 50,
	}
	for _, o := range opts {
		o(srv)
	}
	srv.router.Use(middleware.Logger)
	srv.router.Use(middleware.Recoverer)
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
