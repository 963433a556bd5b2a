package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/packforge/packd/pkg/langpack"
	"github.com/packforge/packd/pkg/manifest"
	"github.com/packforge/packd/pkg/minifest"
	"github.com/packforge/packd/pkg/publish"
	"github.com/packforge/packd/pkg/storage"
)

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	publisher *publish.Publisher
	packs     langpack.Store
	files     storage.Store
	minifests minifest.Cache
	baseURL   string
	logger    *slog.Logger
}

// Options configures the middleware chain around the handlers.
type Options struct {
	AuthSecret          string
	UploadRatePerMinute int
}

// NewServer wires the HTTP layer.
func NewServer(publisher *publish.Publisher, packs langpack.Store, files storage.Store,
	minifests minifest.Cache, baseURL string, logger *slog.Logger) *Server {

	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		publisher: publisher,
		packs:     packs,
		files:     files,
		minifests: minifests,
		baseURL:   baseURL,
		logger:    logger.With("component", "api"),
	}
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler(opts Options) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/langpacks", s.handleLangpacks)
	mux.HandleFunc("/api/v1/langpacks/", s.handleLangpack)
	mux.HandleFunc("/langpacks/", s.handleMinifest)
	mux.HandleFunc("/downloads/", s.handleDownload)

	var h http.Handler = mux
	h = AuthMiddleware(NewJWTValidator(opts.AuthSecret))(h)
	h = RateLimitMiddleware(opts.UploadRatePerMinute)(h)
	h = RequestIDMiddleware(h)
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// writeDomainError maps pipeline errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *manifest.ValidationError
	if errors.As(err, &verr) {
		WriteErrorR(w, r, http.StatusBadRequest, "Invalid Upload", verr.Error())
		return
	}

	var cerr *publish.CollisionError
	if errors.As(err, &cerr) {
		WriteConflict(w, r, "Version Already Published",
			"This version of the pack has already been published. Bump the manifest version and retry.")
		return
	}
	if errors.Is(err, langpack.ErrStale) {
		WriteConflict(w, r, "Concurrent Publish",
			"Another upload for this pack committed first. Retry the upload.")
		return
	}

	if errors.Is(err, langpack.ErrNotFound) || errors.Is(err, minifest.ErrNotAvailable) {
		WriteNotFound(w, "No such language pack")
		return
	}

	var serr *publish.SigningError
	if errors.As(err, &serr) {
		s.logger.Error("signing failed", "error", err, "path", r.URL.Path)
		WriteErrorR(w, r, http.StatusBadGateway, "Signing Failed",
			"The signing backend rejected the archive. Nothing was published.")
		return
	}

	WriteInternal(w, err)
}
