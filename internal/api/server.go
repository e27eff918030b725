package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/booth"
	"github.com/bryanchriswhite/photobooth/internal/compose"
	"github.com/bryanchriswhite/photobooth/internal/layout"
	"github.com/bryanchriswhite/photobooth/internal/logger"
	"github.com/bryanchriswhite/photobooth/internal/output"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Options configures the HTTP surface
type Options struct {
	// Layout supplies the composite slots
	Layout layout.Layout
	// ExportPrefix starts composite download names
	ExportPrefix string
	// Preview serves /stream when set
	Preview *output.MJPEGOutput
	// Now stamps download names; defaults to time.Now
	Now func() time.Time
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	booth    *booth.Service
	renderer *compose.Renderer
	opts     Options
	upgrader websocket.Upgrader
	log      zerolog.Logger
	srv      *http.Server
}

// NewServer creates a new API server
func NewServer(svc *booth.Service, renderer *compose.Renderer, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		router:   mux.NewRouter(),
		booth:    svc,
		renderer: renderer,
		opts:     opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // The booth UI may be served from another local port
			},
		},
		log: *logger.WithComponent("api"),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Capture session
	api.HandleFunc("/session", s.handleSession).Methods("GET")
	api.HandleFunc("/session/start", s.handleStart).Methods("POST")
	api.HandleFunc("/session/cancel", s.handleCancel).Methods("POST")
	api.HandleFunc("/session/clear", s.handleClear).Methods("POST")
	api.HandleFunc("/session/retake", s.handleRetake).Methods("POST")
	api.HandleFunc("/session/events", s.handleEvents)

	// Captured photos
	api.HandleFunc("/session/photos", s.handleListPhotos).Methods("GET")
	api.HandleFunc("/session/photos/{index:[0-9]+}", s.handleGetPhoto).Methods("GET")
	api.HandleFunc("/session/photos/{index:[0-9]+}", s.handleDeletePhoto).Methods("DELETE")

	// Selection and compositing
	api.HandleFunc("/selection", s.handleGetSelection).Methods("GET")
	api.HandleFunc("/selection", s.handleSelect).Methods("POST")
	api.HandleFunc("/themes", s.handleThemes).Methods("GET")
	api.HandleFunc("/composite", s.handleComposite).Methods("POST")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Live preview
	if s.opts.Preview != nil {
		s.router.HandleFunc("/stream", s.opts.Preview.Handler()).Methods("GET")
		s.router.HandleFunc("/stream/stats", s.opts.Preview.StatsHandler()).Methods("GET")
	}
}

// Handler returns the router wrapped in the server middleware
func (s *Server) Handler() http.Handler {
	return s.requestLog(s.enableCORS(s.router))
}

// Start serves on port until Shutdown is called
func (s *Server) Start(port int) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", port).Msg("HTTP server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestLog tags every request with an ID and logs its outcome
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		ev := s.log.Debug()
		if rec.status >= http.StatusInternalServerError {
			ev = s.log.Warn()
		}
		ev.Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("Request handled")
	})
}

// statusRecorder captures the status code while still letting the MJPEG
// stream flush and the event socket hijack the connection
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}
