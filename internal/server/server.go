// Package server serves the live preview: a viewer page that hosts the
// rendered document in a sandboxed frame, and a websocket that pushes every
// new render to the open viewers.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/conneroisu/pagesmith/internal/logging"
	"github.com/conneroisu/pagesmith/internal/preview"
	"github.com/conneroisu/pagesmith/internal/version"
)

// Config holds the listen address and CORS policy.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// UpdateMessage is what viewers receive over the websocket.
type UpdateMessage struct {
	Type      string    `json:"type"`
	Seq       uint64    `json:"seq"`
	HTML      string    `json:"html"`
	Timestamp time.Time `json:"timestamp"`
}

// Server is the preview surface. It satisfies preview.Surface.
type Server struct {
	cfg    Config
	hub    *Hub
	logger logging.Logger

	doc    preview.Document
	hasDoc bool
	docMu  sync.RWMutex

	httpServer   *http.Server
	listenAddr   string
	serverMu     sync.Mutex
	shutdownOnce sync.Once
	started      time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger.WithComponent("server")
		}
	}
}

// New creates a preview server.
func New(cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logging.Discard(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(cfg.AllowedOrigins, s.logger)
	return s
}

var _ preview.Surface = (*Server)(nil)

// Deliver stores doc as the current document and pushes it to viewers.
func (s *Server) Deliver(ctx context.Context, doc preview.Document) error {
	s.docMu.Lock()
	s.doc = doc
	s.hasDoc = true
	s.docMu.Unlock()

	data, err := json.Marshal(UpdateMessage{
		Type:      "document",
		Seq:       doc.Seq,
		HTML:      doc.HTML,
		Timestamp: doc.RenderedAt,
	})
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	s.hub.Broadcast(data)

	s.logger.Debug(ctx, "Preview delivered", "seq", doc.Seq, "clients", s.hub.Clients())
	return nil
}

// Document returns the most recently delivered document.
func (s *Server) Document() (preview.Document, bool) {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	return s.doc, s.hasDoc
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleViewer)
	mux.HandleFunc("/document", s.handleDocument)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/ws", s.hub)
	return s.withMiddleware(mux)
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.hub.IsAllowedOrigin(origin, r.Host) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	doc, _ := s.Document()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := Viewer(doc).Render(r.Context(), w); err != nil {
		s.logger.Error(r.Context(), err, "Viewer render failed")
	}
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	doc, ok := s.Document()
	if !ok {
		http.Error(w, "No preview rendered yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Pagesmith-Seq", strconv.FormatUint(doc.Seq, 10))
	_, _ = w.Write([]byte(doc.HTML))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	doc, ok := s.Document()
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"version":   version.Get().Short(),
		"clients":   s.hub.Clients(),
		"rendered":  ok,
	}
	if ok {
		health["seq"] = doc.Seq
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Error(r.Context(), err, "Failed to encode health response")
	}
}

// Start listens on the configured address and serves until ctx is canceled
// or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}

	s.serverMu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.listenAddr = ln.Addr().String()
	srv := s.httpServer
	s.serverMu.Unlock()

	s.logger.Info(ctx, "Preview server listening", "addr", s.listenAddr)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// ListenAddr returns the bound address once Start is listening.
func (s *Server) ListenAddr() string {
	s.serverMu.Lock()
	defer s.serverMu.Unlock()
	return s.listenAddr
}

// Shutdown closes the websocket clients and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down preview server")
		s.hub.Close()

		s.serverMu.Lock()
		srv := s.httpServer
		s.serverMu.Unlock()

		if srv != nil {
			shutdownErr = srv.Shutdown(ctx)
		}
	})

	return shutdownErr
}
