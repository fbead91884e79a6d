package queryapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
)

// Server runs the query API over TCP.
type Server struct {
	cfg     Config
	handler *Handler
	logger  *slog.Logger

	mu   sync.Mutex
	addr net.Addr
}

// NewServer creates a new Server. Config defaults are applied automatically.
func NewServer(cfg Config, engine Engine, snapshots Snapshots, logger *slog.Logger) *Server {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		handler: NewHandler(engine, snapshots, logger),
		logger:  logger.With("component", "queryapi"),
	}
}

// Addr returns the bound listen address once Start is serving, nil before.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start listens and serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	router := s.handler.Router()
	if s.cfg.TokenFile != "" {
		token, err := readTokenFile(s.cfg.TokenFile)
		if err != nil {
			return fmt.Errorf("queryapi: read token file: %w", err)
		}
		router.Use(BearerAuthMiddleware(token))
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("queryapi: listen tcp %s: %w", s.cfg.Listen, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	srv := &http.Server{Handler: router, ReadHeaderTimeout: s.cfg.ReadHeaderTimeout}

	s.logger.Info("server started", "listen", ln.Addr().String(), "auth", s.cfg.TokenFile != "")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	<-ctx.Done()
	s.logger.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown incomplete", "error", err)
	}
	wg.Wait()

	s.logger.Info("server stopped")
	return ctx.Err()
}

// readTokenFile reads and trims a bearer token from a file.
func readTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", errors.New("token file is empty")
	}
	return token, nil
}
