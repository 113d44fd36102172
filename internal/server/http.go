package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures [New].
type Options struct {
	Addr           string
	StaticDir      string
	AllowedOrigins []string
	Logger         *log.Logger
}

// Server owns the HTTP listener for the API.
type Server struct {
	srv    *http.Server
	router *BasicRouter
	logger *log.Logger
}

// New builds a [Server] serving api, /healthz and the optional static directory.
//
// There is no write timeout: streams may run for as long as the client keeps reading.
func New(api *API, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	router := NewBasicRouter()
	router.Use(Recover(logger), RequestID(), Logging(logger.With("component", "http")), CORS(opts.AllowedOrigins))

	api.Register(router)
	router.Handler(&HealthHandler{Tickets: api.proxy})
	if opts.StaticDir != "" {
		router.Handler(NewStaticHandler(opts.StaticDir))
	}

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return &Server{srv: srv, router: router, logger: logger}
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// ListenAndServe blocks until the server stops. A graceful [Server.Close] returns nil.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until the server stops.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close drains in-flight requests until ctx expires, then forces connections shut.
func (s *Server) Close(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("forced to shutdown", "err", err)
		return s.srv.Close()
	}
	s.logger.Info("exited gracefully")
	return nil
}
