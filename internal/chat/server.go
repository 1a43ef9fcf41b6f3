package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/yeossan/ChatProgramming/internal/wsline"
)

type Config struct {
	// Addr is the TCP listen address for line clients.
	Addr string
	// WSAddr, when set, also serves sessions over WebSocket at /chat.
	WSAddr string
	// SinkBuffer is the number of outbound lines queued per connection.
	SinkBuffer int
}

type Server struct {
	cfg    Config
	logger *slog.Logger
	reg    *Registry

	mu       sync.Mutex
	listeners []net.Listener
	httpSrv  *http.Server
	conns    map[io.Closer]struct{}
	stopping bool
	sessions sync.WaitGroup
	stopOnce sync.Once
	runOnce  sync.Once
}

func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SinkBuffer <= 0 {
		cfg.SinkBuffer = 64
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		reg:    NewRegistry(128, logger),
		conns:  make(map[io.Closer]struct{}),
	}
}

func (s *Server) Registry() *Registry { return s.reg }

// Start binds the configured listeners and serves them in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	if err := s.addListener(ln); err != nil {
		return err
	}

	go func() {
		if err := s.serve(ln); err != nil {
			s.logger.Error("serve failed", "error", err)
		}
	}()
	s.logger.Info("server started", "addr", ln.Addr().String())

	if s.cfg.WSAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/chat", wsline.Handler(s.handle, s.logger))
		srv := &http.Server{Addr: s.cfg.WSAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		s.mu.Lock()
		s.httpSrv = srv
		s.mu.Unlock()

		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("websocket listener failed", "error", err)
			}
		}()
		s.logger.Info("websocket endpoint started", "addr", s.cfg.WSAddr)
	}
	return nil
}

// Addr returns the bound TCP address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) == 0 {
		return nil
	}
	return s.listeners[0].Addr()
}

// Serve accepts connections on ln and blocks until ln is closed, either by
// the caller or by Stop. A failed Accept never stops the loop unless the
// listener itself is gone. Serve may be used instead of, or next to, Start.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.addListener(ln); err != nil {
		return err
	}
	return s.serve(ln)
}

func (s *Server) addListener(ln net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		_ = ln.Close()
		return ErrServerStopped
	}
	s.listeners = append(s.listeners, ln)
	s.runOnce.Do(func() { go s.reg.Run() })
	return nil
}

func (s *Server) serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		s.logger.Info("client connected", "addr", conn.RemoteAddr().String())
		go s.handle(conn, conn.RemoteAddr().String())
	}
}

// handle runs one session on conn and blocks until it ends.
func (s *Server) handle(conn io.ReadWriteCloser, remote string) {
	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	defer s.untrack(conn)

	NewSession(conn, remote, s.reg, s.cfg.SinkBuffer, s.logger).Run()
}

func (s *Server) track(conn io.Closer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.conns[conn] = struct{}{}
	s.sessions.Add(1)
	return true
}

func (s *Server) untrack(conn io.Closer) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.sessions.Done()
}

// Stop closes the listeners and every live connection, waits for the
// sessions to finish their cleanup, then stops the registry.
func (s *Server) Stop() {
	s.stopOnce.Do(s.stop)
}

func (s *Server) stop() {
	s.logger.Info("shutting down")

	s.mu.Lock()
	s.stopping = true
	listeners := s.listeners
	httpSrv := s.httpSrv
	conns := make([]io.Closer, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, ln := range listeners {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}

	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpSrv.Shutdown(ctx); err != nil {
			s.logger.Warn("websocket shutdown failed", "error", err)
		}
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("sessions still running after shutdown timeout")
	}

	// The registry only runs once a listener has been added.
	started := true
	s.runOnce.Do(func() { started = false })
	if started {
		s.reg.Stop()
		s.reg.Wait()
	}

	s.logger.Info("shutdown complete")
}
