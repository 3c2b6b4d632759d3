package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/tasktrack/internal/config"
	"github.com/ent0n29/tasktrack/internal/logging"
	"github.com/ent0n29/tasktrack/internal/observability"
	"github.com/ent0n29/tasktrack/internal/policy"
	"github.com/ent0n29/tasktrack/internal/schema"
	"github.com/ent0n29/tasktrack/internal/todos"
)

const (
	messageNotFound         = "Not Found"
	messageTodoNotFound     = "Todo not found"
	messageMethodNotAllowed = "Method Not Allowed"
	messageInternal         = "Internal Server Error"
	messageBodyTooLarge     = "Request body too large"
	messageRunning          = "TODO API is running. See /docs for the OpenAPI UI."
)

type Server struct {
	cfg      config.Config
	store    todos.Store
	feed     *todos.Feed
	clock    todos.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
	static   http.Handler
}

func New(cfg config.Config, store todos.Store, feed *todos.Feed, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if feed == nil {
		feed = todos.NewFeed(0)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	s := &Server{
		cfg:     cfg,
		store:   store,
		feed:    feed,
		clock:   todos.SystemClock,
		metrics: metrics,
		logger:  logger,
		static:  newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may follow the feed unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
	// Seeded todos exist before the first mutation.
	s.refreshLiveGauge()
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.observe)
	r.Use(s.recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, messageNotFound, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, messageMethodNotAllowed, nil)
	})

	r.Get("/", s.static.ServeHTTP)
	r.Handle("/assets/*", s.static)
	r.Get("/docs", s.handleDocs)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/api", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"message": messageRunning})
	})
	r.Get("/api/perf/latency", s.handlePerfLatency)

	r.Route(todosBasePath, func(r chi.Router) {
		r.Get("/feed", s.handleFeed)
		for _, rt := range todoRoutes() {
			r.Method(rt.Method, rt.Pattern, s.endpoint(rt))
		}
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"store_mode":       todos.ModeOf(s.store),
		"feed_subscribers": s.feed.Subscribers(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "store not configured", nil)
		return
	}
	if _, err := s.store.List(r.Context(), todos.FilterCompleted); err != nil {
		s.logger.Warn("readiness probe failed", "error", redactError(err))
		respondError(w, http.StatusServiceUnavailable, "store unavailable", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"store_mode": todos.ModeOf(s.store),
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.SnapshotLatency())
}

// endpoint validates the request against the route schema before the
// handler runs, so a rejected request never reaches the store.
func (s *Server) endpoint(rt todoRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := schema.Request{
			Path:  make(map[string]string),
			Query: r.URL.Query(),
		}
		for _, f := range rt.Schema.Fields {
			if f.In == schema.InPath {
				req.Path[f.Name] = chi.URLParam(r, f.Name)
			}
		}
		if rt.Schema.HasBody() {
			body, err := readBody(w, r, s.cfg.MaxBodyBytes)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			req.Body = body
		}

		vals, err := rt.Schema.Validate(req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := rt.Handle(s, w, r, vals); err != nil {
			s.writeError(w, r, err)
		}
	}
}

type errorResponse struct {
	Message string              `json:"message"`
	Details []schema.FieldError `json:"details,omitempty"`
}

var errBodyTooLarge = errors.New("request body too large")

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *schema.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Message, verr.Details)
	case errors.Is(err, todos.ErrNotFound):
		respondError(w, http.StatusNotFound, messageTodoNotFound, nil)
	case errors.Is(err, errBodyTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, messageBodyTooLarge, nil)
	case errors.Is(err, context.Canceled):
		s.logger.Debug("request cancelled", "path", r.URL.Path, "error", err)
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", redactError(err),
		)
		respondError(w, http.StatusInternalServerError, messageInternal, nil)
	}
}

// redactError keeps driver-reported credentials out of the logs.
func redactError(err error) string {
	out, _ := policy.RedactSecrets(err.Error())
	return out
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errBodyTooLarge
		}
		return nil, err
	}
	return body, nil
}

// respondJSON encodes before writing the status line so an unencodable
// value still produces the generic 500.
func respondJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(errorResponse{Message: messageInternal})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func respondError(w http.ResponseWriter, status int, message string, details []schema.FieldError) {
	respondJSON(w, status, errorResponse{Message: message, Details: details})
}
