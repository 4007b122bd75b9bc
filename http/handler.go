package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/galexite/guildsync"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Service is the read side of the mirror. guildsync.Mirror implements it.
type Service interface {
	Get(ctx context.Context, resource guildsync.Resource) (guildsync.SyncState, io.ReadSeekCloser, error)
	List(ctx context.Context) ([]guildsync.SyncState, error)
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type HandlerConfig struct {
	// Verifier authenticates every route except /metrics. Nil means public.
	Verifier RequestVerifier
	CORS     CORSConfig
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Handler serves the mirrored resources over HTTP.
type Handler struct {
	config  HandlerConfig
	service Service
	logger  *slog.Logger
}

// NewHandler creates a new Handler with the given configuration and service.
func NewHandler(config *HandlerConfig, service Service) *Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		config:  *config,
		service: service,
		logger:  logger,
	}
}

// Router returns an http.Handler serving:
//
//	GET|HEAD /{resource}  the stored payload, with Last-Modified from the bucket
//	GET      /status      the recorded state of every resource
//	GET      /metrics     Prometheus metrics, if configured
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if h.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORS.AllowedOrigins,
			AllowedMethods:   h.config.CORS.AllowedMethods,
			AllowedHeaders:   h.config.CORS.AllowedHeaders,
			ExposedHeaders:   h.config.CORS.ExposedHeaders,
			AllowCredentials: h.config.CORS.AllowCredentials,
			MaxAge:           h.config.CORS.MaxAge,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusNotFound, "not_found", "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "The mirror is read-only")
	})

	if h.config.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.config.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(h.config.Verifier))
		r.Get("/status", h.handleStatus)
		r.Get("/{resource}", h.handleGet)
		r.Head("/{resource}", h.handleGet)
	})

	return r
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	states, err := h.service.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, struct {
		Resources []guildsync.SyncState `json:"resources"`
	}{Resources: states})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	resource := guildsync.Resource(chi.URLParam(r, "resource"))
	if !resource.IsValid() {
		WriteError(w, http.StatusNotFound, "not_found", "Resource not found")
		return
	}

	state, content, err := h.service.Get(r.Context(), resource)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	defer func() { _ = content.Close() }()

	if state.ETag != "" {
		w.Header().Set("ETag", `"`+state.ETag+`"`)
	}
	w.Header().Set("Content-Type", "application/json")

	http.ServeContent(w, r, resource.String(), state.LastModified, content)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.LogAttrs(r.Context(), slog.LevelError, "request error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("err", err),
	)
	HandleError(w, err)
}
