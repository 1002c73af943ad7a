// Package server exposes Haven over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/havenos/haven/internal/agent"
	"github.com/havenos/haven/internal/backfill"
	"github.com/havenos/haven/internal/canvas"
	"github.com/havenos/haven/internal/capability"
	"github.com/havenos/haven/internal/lifecycle"
	"github.com/havenos/haven/internal/logging"
	"github.com/havenos/haven/internal/opengraph"
	"github.com/havenos/haven/internal/search"
	"github.com/havenos/haven/internal/store"
)

// Deps are the services behind the routes. Nil services answer with a
// configuration error.
type Deps struct {
	Invoker   *capability.Invoker
	Store     *store.Store
	Search    *search.Service
	Sweeper   *lifecycle.Sweeper
	Backfill  *backfill.Runner
	OpenGraph *opengraph.Fetcher
	Embedder  agent.Embedder
	Canvases  *canvas.Manager
	Logger    *slog.Logger
}

type Server struct {
	deps   Deps
	router chi.Router
	logger *slog.Logger
	now    func() time.Time
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:   deps,
		logger: logger.With("component", "server"),
		now:    time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)

	r.Get("/agents", s.listAgents)
	r.Post("/agents/{capability}", s.invokeAgent)

	r.Post("/search", s.search)
	r.Post("/embed", s.embed)
	r.Post("/opengraph", s.openGraph)
	r.Post("/lifecycle", s.runLifecycle)
	r.Post("/backfill", s.runBackfill)

	r.Route("/assets", func(r chi.Router) {
		r.Get("/", s.listAssets)
		r.Post("/", s.createAsset)
		r.Get("/schedule", s.scheduledAssets)
		r.Post("/schedule", s.setSchedule)
		r.Delete("/{assetID}", s.deleteAsset)
	})

	r.Get("/user/profile", s.getProfile)
	r.Post("/user/profile", s.upsertProfile)
	r.Get("/staging", s.listStagingItems)
	r.Post("/staging", s.createStagingItem)
	r.Post("/vault", s.createVaultItem)
	r.Post("/vault/search", s.searchVault)

	r.Route("/canvas", func(r chi.Router) {
		r.Get("/", s.listCanvases)
		r.Route("/{canvasID}", func(r chi.Router) {
			r.Get("/", s.getCanvas)
			r.Put("/", s.replaceCanvas)
			r.Delete("/", s.deleteCanvas)
			r.Post("/nodes", s.dropNode)
			r.Patch("/nodes/{nodeID}", s.updateNode)
			r.Delete("/nodes/{nodeID}", s.deleteNode)
			r.Post("/edges", s.connectNodes)
			r.Delete("/edges/{edgeID}", s.deleteEdge)
			r.Post("/commands", s.applyCommand)
			r.Delete("/assets/{assetID}", s.deleteCanvasAsset)
		})
	})

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// requestID copies chi's request id into the logging context and echoes it
// back to the caller.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			w.Header().Set("X-Request-Id", id)
			ctx = logging.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	if s.deps.Store != nil {
		if err := s.deps.Store.DB().PingContext(ctx); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	writeJSON(w, http.StatusOK, status)
}
