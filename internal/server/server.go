// Package server exposes the HTTP surface: the authenticated JSON API the
// UI talks to, and (optionally) the UI's static assets with SPA fallback.
// Both the asset-serving and API-only deployments run this same server;
// the assets directory is just a config knob.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"renewd/internal/cycle"
	"renewd/internal/event"
	"renewd/internal/notify"
	"renewd/internal/storage"
	logx "renewd/pkg/logx"
)

type Config struct {
	Addr      string
	Password  string // resolved shared secret for bearer auth
	AssetsDir string // empty disables static serving

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8787"
	}
	if c.Password == "" {
		c.Password = "admin"
	}
	return c
}

type Server struct {
	log    logx.Logger
	store  *storage.Store
	disp   *notify.Service
	runner *cycle.Runner

	// onSettingsSaved fires after a settings document save so the caller
	// can re-arm the daily trigger. May be nil.
	onSettingsSaved func(event.Settings)

	mu   sync.Mutex
	cfg  Config
	srv  *http.Server
	ln   net.Listener
	addr string
}

func New(cfg Config, store *storage.Store, disp *notify.Service, runner *cycle.Runner, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg.withDefaults(), store: store, disp: disp, runner: runner, log: log}
}

func (s *Server) SetOnSettingsSaved(fn func(event.Settings)) { s.onSettingsSaved = fn }

// SetPassword swaps the bearer secret at runtime (config hot reload).
func (s *Server) SetPassword(pw string) {
	s.mu.Lock()
	if pw == "" {
		pw = "admin"
	}
	s.cfg.Password = pw
	s.mu.Unlock()
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/", s.handleAPI)
	mux.HandleFunc("/", s.handleAssets)

	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	s.srv = srv
	s.ln = ln
	s.addr = ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("http server error", logx.String("addr", s.addr), logx.Err(err))
		}
	}()
	s.log.Info("http server listening", logx.String("addr", s.addr), logx.Bool("assets", s.cfg.AssetsDir != ""))
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	ln := s.ln
	addr := s.addr
	s.srv = nil
	s.ln = nil
	s.addr = ""
	s.mu.Unlock()

	if srv == nil {
		return
	}

	shutdownCtx := ctx
	if shutdownCtx == nil {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("http shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	if ln != nil {
		_ = ln.Close()
	}
	s.log.Info("http server stopped", logx.String("addr", addr))
}

// Addr reports the actual listen address if running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) password() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Password
}
