// Package admin exposes the call log, connection settings and record
// operations as a JSON API.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/natserract/harmony/pkg/calllog"
	"github.com/natserract/harmony/pkg/config"
	"github.com/natserract/harmony/pkg/harmony"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ActorHeader carries the id of the user performing the request.
const ActorHeader = "X-Actor-ID"

// credentialKeys are the settings accepted by PUT /settings.
var credentialKeys = map[string]bool{
	config.KeyClientID:  true,
	config.KeySecretKey: true,
	config.KeyUsername:  true,
	config.KeyPassword:  true,
	config.KeyXOUID:     true,
	config.KeyRegion:    true,
	config.KeyTokenURL:  true,
	config.KeyAPIURL:    true,
}

type Server struct {
	router   *chi.Mux
	settings config.Store
	calls    *calllog.Logger
	tokens   *harmony.TokenCache
	metrics  *harmony.Metrics
	registry *prometheus.Registry
	options  []harmony.Option
	logger   *zap.Logger
}

// NewServer creates the admin API with its own metrics registry
func NewServer(settings config.Store, calls *calllog.Logger, logger *zap.Logger, opts ...harmony.Option) *Server {
	reg := prometheus.NewRegistry()
	s := &Server{
		router:   chi.NewRouter(),
		settings: settings,
		calls:    calls,
		tokens:   harmony.NewTokenCache(),
		metrics:  harmony.NewMetrics(reg),
		registry: reg,
		options:  opts,
		logger:   logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(actor)

	s.router.Get("/logs", s.handleListLogs)
	s.router.Get("/logs/{id}", s.handleGetLog)
	s.router.Delete("/logs", s.handleClearLogs)

	s.router.Post("/test", s.handleTest)
	s.router.Put("/settings", s.handleSaveSettings)

	s.router.Post("/records", s.handleCreateRecord)
	s.router.Put("/records", s.handleUpdateRecord)
	s.router.Get("/records/{key}", s.handleRetrieveRecord)
	s.router.Delete("/records/{key}", s.handleDeleteRecord)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// client builds a Harmony client from the current settings. Clients share the
// server's token cache, so a token refreshed by one request serves the next.
func (s *Server) client(ctx context.Context) (*harmony.Harmony, error) {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	cfg, err := config.Load(settings)
	if err != nil {
		return nil, err
	}

	opts := append([]harmony.Option{
		harmony.WithTokenCache(s.tokens),
		harmony.WithMetrics(s.metrics),
	}, s.options...)
	return harmony.NewHarmonyWithLogger(cfg, s.calls, s.settings, s.logger, opts...), nil
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid page %q", raw), 0)
			return
		}
		page = n
	}

	result, err := s.calls.List(r.Context(), page)
	if err != nil {
		s.logger.Error("Failed to list call records", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid log id"), 0)
		return
	}

	rec, err := s.calls.Get(r.Context(), id)
	if errors.Is(err, calllog.ErrNotFound) {
		writeError(w, http.StatusNotFound, err, 0)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	n, err := s.calls.Clear(r.Context())
	if err != nil {
		s.logger.Error("Failed to clear call records", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	h, err := s.client(r.Context())
	if err != nil {
		writeConfigError(w, err)
		return
	}

	rec, err := h.TestAPI(r.Context())
	if err != nil {
		s.writeHarmonyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "log_id": rec.ID})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var in config.Settings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid settings body: %w", err), 0)
		return
	}
	for k := range in {
		if !credentialKeys[k] {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown setting %q", k), 0)
			return
		}
	}

	current, err := s.settings.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, 0)
		return
	}
	if _, err := config.Load(config.Merge(current, in)); err != nil {
		writeConfigError(w, err)
		return
	}

	if err := s.settings.Save(r.Context(), in); err != nil {
		s.logger.Error("Failed to save settings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err, 0)
		return
	}
	s.logger.Info("Settings saved", zap.String("actor_id", calllog.ActorFrom(r.Context())))
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	s.withProfile(w, r, func(ctx context.Context, h *harmony.Harmony, p harmony.Profile) (*harmony.Result, error) {
		return h.CreateRecord(ctx, p)
	})
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	s.withProfile(w, r, func(ctx context.Context, h *harmony.Harmony, p harmony.Profile) (*harmony.Result, error) {
		return h.UpdateRecord(ctx, p)
	})
}

func (s *Server) handleRetrieveRecord(w http.ResponseWriter, r *http.Request) {
	s.withKey(w, r, func(ctx context.Context, h *harmony.Harmony, key string) (*harmony.Result, error) {
		return h.RetrieveRecord(ctx, key)
	})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	s.withKey(w, r, func(ctx context.Context, h *harmony.Harmony, key string) (*harmony.Result, error) {
		return h.DeleteRecord(ctx, key)
	})
}

func (s *Server) withProfile(w http.ResponseWriter, r *http.Request, op func(context.Context, *harmony.Harmony, harmony.Profile) (*harmony.Result, error)) {
	var profile harmony.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil || profile == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("body must be a JSON object"), 0)
		return
	}

	h, err := s.client(r.Context())
	if err != nil {
		writeConfigError(w, err)
		return
	}
	res, err := op(r.Context(), h, profile)
	s.writeResult(w, res, err)
}

func (s *Server) withKey(w http.ResponseWriter, r *http.Request, op func(context.Context, *harmony.Harmony, string) (*harmony.Result, error)) {
	h, err := s.client(r.Context())
	if err != nil {
		writeConfigError(w, err)
		return
	}
	res, err := op(r.Context(), h, chi.URLParam(r, "key"))
	s.writeResult(w, res, err)
}

func (s *Server) writeResult(w http.ResponseWriter, res *harmony.Result, err error) {
	if err != nil {
		s.writeHarmonyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":   res.Data,
		"log_id": res.LogID,
	})
}

func (s *Server) writeHarmonyError(w http.ResponseWriter, err error) {
	id, _ := harmony.LogID(err)
	writeError(w, statusFor(err), err, id)
}

// statusFor maps client errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, harmony.ErrMissingCustomerKey), errors.Is(err, harmony.ErrInvalidCustomerKey),
		errors.Is(err, harmony.ErrOperationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, harmony.ErrAcquisitionFailed):
		return http.StatusFailedDependency
	case errors.Is(err, harmony.ErrProviderRejected), errors.Is(err, harmony.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeConfigError(w http.ResponseWriter, err error) {
	if errors.Is(err, config.ErrMissingField) {
		writeError(w, http.StatusPreconditionFailed, err, 0)
		return
	}
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		writeError(w, http.StatusBadRequest, err, 0)
		return
	}
	writeError(w, http.StatusInternalServerError, err, 0)
}

type errorResponse struct {
	Error string `json:"error"`
	LogID int64  `json:"log_id,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error, logID int64) {
	writeJSON(w, status, errorResponse{Error: err.Error(), LogID: logID})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// actor stores the X-Actor-ID header in the request context.
func actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(ActorHeader); id != "" {
			r = r.WithContext(calllog.WithActor(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("Handled request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status_code", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
