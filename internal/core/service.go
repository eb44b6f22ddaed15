// Package core assembles the daemon: configuration, the playback player,
// the HTTP/websocket control surface, the MQTT control plane, and session
// history. It owns startup order and graceful shutdown.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/visiona/texrelay/internal/config"
	"github.com/visiona/texrelay/internal/control"
	"github.com/visiona/texrelay/internal/emitter"
	"github.com/visiona/texrelay/internal/engine"
	"github.com/visiona/texrelay/internal/engine/gstengine"
	"github.com/visiona/texrelay/internal/framebus"
	"github.com/visiona/texrelay/internal/gpu"
	"github.com/visiona/texrelay/internal/player"
	"github.com/visiona/texrelay/internal/server"
	"github.com/visiona/texrelay/internal/sink"
	"github.com/visiona/texrelay/internal/store"
)

const healthInterval = 10 * time.Second

// Service is the daemon orchestrator.
type Service struct {
	cfg *config.Config

	store   *store.Store
	bus     *framebus.Bus
	hub     *server.Hub
	mqtt    *emitter.MQTTEmitter
	control *control.Handler
	player  *player.Player
	httpSrv *http.Server

	started   time.Time
	mu        sync.Mutex
	isRunning bool
	cancelRun context.CancelFunc // for the shutdown control command
}

// NewService loads the configuration at configPath and wires every
// component. Nothing is connected or listening until Run.
func NewService(configPath string) (*Service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"output_kind", cfg.Output.Kind,
		"service_name", cfg.Output.ServiceName,
	)

	s := &Service{
		cfg: cfg,
		hub: server.NewHub(),
	}

	if cfg.Store.Path != "" {
		st, err := store.New(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
		if err := st.Ping(); err != nil {
			st.Close()
			return nil, fmt.Errorf("history store not reachable: %w", err)
		}
		s.store = st
	}

	if cfg.Output.Kind == string(sink.KindBus) {
		s.bus = framebus.New()
	}

	if cfg.MQTTEnabled() {
		s.mqtt = emitter.NewMQTTEmitter(emitter.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    "texrelay-" + cfg.InstanceID,
			StatusTopic: cfg.MQTT.Topics.Status,
			HealthTopic: cfg.MQTT.Topics.Health,
			QoS:         cfg.MQTT.QoS,
		})
	}

	pl, err := player.New(s.playerConfig())
	if err != nil {
		return nil, err
	}
	s.player = pl

	serverOpts := []server.Option{server.WithInstanceID(cfg.InstanceID)}
	if s.store != nil {
		serverOpts = append(serverOpts, server.WithHistory(s.store, cfg.Store.HistoryLimit))
	}
	s.httpSrv = &http.Server{
		Addr:         cfg.HTTP.Listen,
		Handler:      server.NewServer(pl, s.hub, serverOpts...),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// playerConfig builds the playback wiring from the loaded configuration.
func (s *Service) playerConfig() player.Config {
	cfg := s.cfg

	newEngine := func(quality string) (engine.Engine, error) {
		ec := gstengine.Config{
			Quality:    cfg.Engine.Quality,
			BufferSecs: cfg.Engine.BufferSecs,
		}
		if quality != "" {
			ec.Quality = quality
		}
		return gstengine.New(ec)
	}

	// The bus sink runs in-process and never touches the GPU handle; the
	// websocket sink serializes pixels, so neither needs the native context.
	newSink := func(serviceName string, _ uintptr) (sink.Sink, error) {
		return sink.New(sink.Config{
			Kind:        sink.Kind(cfg.Output.Kind),
			ServiceName: serviceName,
			Bus:         s.bus,
			Endpoint:    cfg.Output.WSEndpoint,
		})
	}

	emitters := emitter.Fanout{s.hub}
	if s.mqtt != nil {
		emitters = append(emitters, s.mqtt)
	}

	pc := player.Config{
		NewEngine:   newEngine,
		GPU:         gpu.NewSoftwareProvider(),
		NewSink:     newSink,
		Emitter:     emitters,
		ServiceName: cfg.Output.ServiceName,
		Relay:       cfg.RelayOptions(),
	}
	if s.store != nil {
		pc.History = s.store
	}
	return pc
}

// Run starts the control surfaces and blocks until the context is cancelled
// or a component fails.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	s.isRunning = true
	s.started = time.Now()
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancelRun = cancel
	s.mu.Unlock()

	if s.mqtt != nil {
		if err := s.mqtt.Connect(); err != nil {
			return fmt.Errorf("failed to connect mqtt: %w", err)
		}

		s.control = control.NewHandler(s.mqtt.Client, control.Topics{
			Control: s.cfg.MQTT.Topics.Control,
			Status:  s.cfg.MQTT.Topics.Status,
			QoS:     s.cfg.MQTT.QoS,
		}, s.controlCallbacks())
		if err := s.control.Start(ctx); err != nil {
			return fmt.Errorf("failed to start control plane: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", s.cfg.HTTP.Listen)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout())
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	})

	if s.mqtt != nil {
		g.Go(func() error {
			s.publishHealth(ctx)
			return nil
		})
	}

	if s.store != nil {
		g.Go(func() error {
			s.pruneHistoryLoop(ctx)
			return nil
		})
	}

	slog.Info("texrelay service running",
		"instance_id", s.cfg.InstanceID,
		"mqtt_enabled", s.mqtt != nil,
		"history_enabled", s.store != nil,
	)

	return g.Wait()
}

// Shutdown stops playback and tears the components down. Order matters:
// the player first, so its session drains while the surfaces still exist,
// then the control surfaces, then the broker and store connections.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	slog.Info("shutting down texrelay service")

	if err := s.player.Stop(); err != nil {
		slog.Error("failed to stop playback", "error", err)
	}

	if s.control != nil {
		if err := s.control.Stop(); err != nil {
			slog.Error("failed to stop control handler", "error", err)
		}
	}

	s.hub.Close()

	if s.mqtt != nil {
		if err := s.mqtt.Disconnect(); err != nil {
			slog.Error("failed to disconnect mqtt", "error", err)
		}
	}

	if s.bus != nil {
		s.bus.Close()
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Error("failed to close history store", "error", err)
		}
	}

	s.mu.Lock()
	uptime := time.Since(s.started)
	s.isRunning = false
	s.mu.Unlock()

	slog.Info("texrelay service shutdown complete", "uptime", uptime)
	return nil
}

const pruneInterval = time.Hour

// pruneHistoryLoop trims old session history on a fixed ticker, starting
// with one immediate pass so restarts do not accumulate stale rows.
func (s *Service) pruneHistoryLoop(ctx context.Context) {
	s.pruneHistory()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneHistory()
		}
	}
}

func (s *Service) pruneHistory() {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.Store.RetentionDays)
	n, err := s.store.PruneBefore(cutoff)
	if err != nil {
		slog.Warn("history prune failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("history pruned", "rows", n, "retention_days", s.cfg.Store.RetentionDays)
	}
}

// ShutdownTimeout returns the configured graceful shutdown timeout.
func (s *Service) ShutdownTimeout() time.Duration {
	timeout := time.Duration(s.cfg.ShutdownTimeoutS) * time.Second
	if timeout == 0 {
		return 5 * time.Second
	}
	return timeout
}
