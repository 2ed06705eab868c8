/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/tonelist/internal/api"
	"github.com/friendsincode/tonelist/internal/config"
	"github.com/friendsincode/tonelist/internal/db"
	"github.com/friendsincode/tonelist/internal/discord"
	"github.com/friendsincode/tonelist/internal/dispatch"
	"github.com/friendsincode/tonelist/internal/eventbus"
	"github.com/friendsincode/tonelist/internal/lavalink"
	"github.com/friendsincode/tonelist/internal/logbuffer"
	"github.com/friendsincode/tonelist/internal/playback"
	"github.com/friendsincode/tonelist/internal/store"
	"github.com/friendsincode/tonelist/internal/telemetry"
	"github.com/friendsincode/tonelist/internal/version"
	"github.com/friendsincode/tonelist/internal/voice"
)

const dbMetricsInterval = 15 * time.Second

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	logBuffer *logbuffer.Buffer
	bus       eventbus.Bus
	bot       *discord.Bot
	lavalink  *lavalink.Client
	playback  *playback.Service
	api       *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies. Nothing talks to Discord
// or Lavalink until Start.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("tonelist-api"))
	router.Use(telemetry.MetricsMiddleware)
	// The events stream is long lived.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0 for the events websocket; the middleware
		// timeout covers everything else.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	if s.cfg.StoreBackend == config.StoreSQL {
		database, err := db.Connect(s.cfg, s.logger)
		if err != nil {
			return err
		}
		s.db = database
		s.DeferClose(func() error { return db.Close(database) })
	}

	queues, err := store.Open(s.cfg, s.db, s.logger)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	if closer, ok := queues.(interface{ Close() error }); ok {
		s.DeferClose(closer.Close)
	}
	s.logger.Info().Str("backend", string(s.cfg.StoreBackend)).Msg("session store ready")

	s.bus = eventbus.New(s.cfg, s.logger)
	s.DeferClose(s.bus.Close)

	bot, err := discord.New(discord.Config{
		Token:      s.cfg.DiscordToken,
		AppID:      s.cfg.DiscordClientID,
		TestGuilds: s.cfg.TestGuilds,
	}, s.logger)
	if err != nil {
		return err
	}
	s.bot = bot

	llCfg := lavalink.DefaultConfig(s.cfg.LavalinkHost, s.cfg.LavalinkPort, s.cfg.LavalinkPassword)
	llCfg.Secure = s.cfg.LavalinkSecure
	s.lavalink = lavalink.New(llCfg, bot, s.logger)
	bot.SetVoiceHandler(s.lavalink)

	s.playback = playback.NewService(playback.Deps{
		Store:    queues,
		Resolver: lavalink.NewResolver(s.lavalink, s.cfg.SearchPrefix),
		Dialer:   s.lavalink,
		Notifier: bot,
		Bus:      s.bus,
	}, playback.Options{
		IdleTimeout:   s.cfg.IdleTimeout,
		NotifyTimeout: s.cfg.NotifyTimeout,
		Voice: voice.Options{
			HandshakeTimeout: s.cfg.HandshakeTimeout,
			ReconnectTimeout: s.cfg.ReconnectTimeout,
			MaxResets:        s.cfg.MaxConnectResets,
		},
	}, s.logger)

	dispatcher := dispatch.New(s.playback, s.logger)
	bot.SetDispatcher(dispatcher)

	s.api = api.New(dispatcher, s.bus, []byte(s.cfg.JWTSigningKey), bot, s.logger)
	if s.logBuffer != nil {
		s.api.SetLogBuffer(s.logBuffer)
	}
	return nil
}

// Start connects to Discord and starts the Lavalink session and background
// workers. Discord must be up first because Lavalink needs the bot's user id.
func (s *Server) Start() error {
	if err := s.bot.Open(); err != nil {
		return err
	}
	s.lavalink.SetUserID(s.bot.UserID())
	s.logger.Info().Str("user_id", s.bot.UserID()).Msg("discord gateway connected")

	s.startBackgroundWorkers()
	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order. Sessions are torn down
// before the gateway and node go away.
func (s *Server) Close() error {
	var firstErr error
	if s.playback != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.playback.Close(ctx); err != nil {
			s.logger.Error().Err(err).Msg("playback shutdown error")
			firstErr = err
		}
		cancel()
	}
	s.stopBackgroundWorkers()
	if s.bot != nil {
		if err := s.bot.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := s.lavalink.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("lavalink client exited")
		}
	}()

	if s.db != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runDBMetrics(ctx)
		}()
	}
}

func (s *Server) runDBMetrics(ctx context.Context) {
	ticker := time.NewTicker(dbMetricsInterval)
	defer ticker.Stop()

	db.UpdateConnectionMetrics(s.db)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			db.UpdateConnectionMetrics(s.db)
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Lavalink bool   `json:"lavalink"`
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", telemetry.Handler())
	s.api.Routes(s.router)
}

// handleHealthz reports degraded while no Lavalink session is ready.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Version: version.String(), Lavalink: s.lavalink.Ready()}
	status := http.StatusOK
	if !resp.Lavalink {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeHealth(w, status, resp)
}
