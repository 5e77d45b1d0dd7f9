// Package server exposes the merged data, regional statistics and the chat
// and summary endpoints over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/JustUsingaWebsite/eduops/backend/internal/integrate"
	"github.com/JustUsingaWebsite/eduops/backend/internal/llm"
)

// Options configures the HTTP API.
type Options struct {
	Integrated string            // merged CSV served by /api/integrated
	Sources    integrate.Options // sources searched by /api/schools/{code}
	Tech       string            // regional statistics CSV
	Year       string            // default year for /api/regions
	StaticDir  string
	Origins    []string
}

// Handler serves the API.
type Handler struct {
	opts Options
	gen  llm.Generator
	log  zerolog.Logger
}

// New creates a handler. gen may be nil, in which case the chat and summary
// endpoints answer 503.
func New(opts Options, gen llm.Generator, logger zerolog.Logger) *Handler {
	if len(opts.Origins) == 0 {
		opts.Origins = []string{"*"}
	}
	return &Handler{
		opts: opts,
		gen:  gen,
		log:  logger.With().Str("component", "server").Logger(),
	}
}

// Router builds the chi router with logging, recovery and CORS.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.opts.Origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("eduops API is running"))
	})
	h.RegisterRoutes(r)

	if h.opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(h.opts.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}
	return r
}

// RegisterRoutes mounts the API routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)
	r.Get("/api/integrated", h.GetIntegrated)
	r.Get("/api/schools/{code}", h.GetSchool)
	r.Get("/api/regions", h.GetRegions)
	r.Post("/chat", h.Chat)
	r.Post("/api/chat", h.Chat)
	r.Post("/api/summary", h.Summary)
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			h.log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Str("request_id", middleware.GetReqID(r.Context())).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (h *Handler) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		h.log.Info().Str("addr", addr).Msg("server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.log.Info().Msg("server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
