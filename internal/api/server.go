// Package api provides the reference HTTP server for the namespace API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/internal/auth"
	"github.com/fruitsalade/explorer/internal/events"
	"github.com/fruitsalade/explorer/internal/logging"
	"github.com/fruitsalade/explorer/internal/metadata"
	"github.com/fruitsalade/explorer/internal/metrics"
	"github.com/fruitsalade/explorer/internal/storage"
	"github.com/fruitsalade/explorer/pkg/backend"
	"github.com/fruitsalade/explorer/pkg/protocol"
)

// multipartOverhead is the slack allowed on top of MaxUploadSize for
// multipart framing and the path field.
const multipartOverhead = 1 << 20

// Server serves the namespace API.
type Server struct {
	meta          *metadata.Store
	storage       storage.Backend
	auth          *auth.Auth
	broadcaster   *events.Broadcaster
	maxUploadSize int64
	keepalive     time.Duration
}

// NewServer creates a new server.
func NewServer(meta *metadata.Store, store storage.Backend, authHandler *auth.Auth,
	broadcaster *events.Broadcaster, maxUploadSize int64) *Server {
	return &Server{
		meta:          meta,
		storage:       store,
		auth:          authHandler,
		broadcaster:   broadcaster,
		maxUploadSize: maxUploadSize,
		keepalive:     30 * time.Second,
	}
}

// Init reports the current namespace size to metrics.
func (s *Server) Init(ctx context.Context) error {
	folders, files, err := s.meta.Counts(ctx)
	if err != nil {
		return err
	}
	metrics.SetNamespaceEntries(folders, files)
	logging.Info("namespace loaded", zap.Int64("folders", folders), zap.Int64("files", files))
	return nil
}

// Handler returns the HTTP handler with auth, logging and metrics
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /auth/token", s.auth.HandleLogin)

	protected := http.NewServeMux()
	protected.HandleFunc("GET /fs", s.handleList)
	protected.HandleFunc("DELETE /fs", s.handleDelete)
	protected.HandleFunc("GET /fs/file", s.handleContent)
	protected.HandleFunc("PUT /fs/file", s.handleSave)
	protected.HandleFunc("POST /fs/upload", s.handleUpload)
	protected.HandleFunc("GET /fs/download", s.handleDownload)
	protected.HandleFunc("POST /fs/folder", s.handleCreateFolder)
	protected.HandleFunc("GET /fs/events", s.handleEvents)

	guarded := s.auth.Middleware(protected)
	mux.Handle("/fs", guarded)
	mux.Handle("/fs/", guarded)

	return metrics.Middleware(logging.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := protocol.HealthResponse{Status: "ok", Storage: s.storage.Type()}
	code := http.StatusOK
	if err := s.meta.DB().PingContext(r.Context()); err != nil {
		logging.WithContext(r.Context()).Error("database unreachable", zap.Error(err))
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// refreshCounts updates the namespace gauges after a mutation.
func (s *Server) refreshCounts(ctx context.Context) {
	folders, files, err := s.meta.Counts(ctx)
	if err != nil {
		logging.WithContext(ctx).Warn("count entries failed", zap.Error(err))
		return
	}
	metrics.SetNamespaceEntries(folders, files)
}

// publishEvent publishes an event to the broadcaster if available.
func (s *Server) publishEvent(eventType, path string, isFolder bool) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(events.Event{Type: eventType, Path: path, IsFolder: isFolder})
}

// errorStatus maps store and storage errors to HTTP status codes.
func errorStatus(err error) int {
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, metadata.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, metadata.ErrExists):
		return http.StatusConflict
	case errors.Is(err, metadata.ErrRoot), errors.Is(err, backend.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return 499 // client closed request
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	code := errorStatus(err)
	log := logging.WithContext(r.Context())
	if code >= http.StatusInternalServerError {
		log.Error(msg, zap.Error(err))
	} else {
		log.Debug(msg, zap.Int("status", code), zap.Error(err))
	}
	s.sendError(w, code, msg+": "+err.Error())
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
