package api

import (
	"net/http"

	"dtp-ingest/config"
	"dtp-ingest/core/dtp"
	"dtp-ingest/core/store"
	"dtp-ingest/core/utils"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	cfg    *config.AppConfig
	logger *utils.Logger
	router http.Handler
}

type ServerDeps struct {
	Buffer store.BufferStore
	Driver *dtp.Driver
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) *Server {
	s := &Server{cfg: cfg, logger: logger}
	h := &Handler{buffer: deps.Buffer, driver: deps.Driver, logger: logger}

	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireToken)
		r.MethodFunc(http.MethodGet, "/status", h.Status)
		r.MethodFunc(http.MethodGet, "/buffer/stats", h.BufferStats)
		r.MethodFunc(http.MethodGet, "/buffer/errored", h.ListErrored)
		r.MethodFunc(http.MethodPost, "/buffer/errored/reset", h.ResetErrored)
		r.MethodFunc(http.MethodPost, "/ingest/run", h.RunNow)
	})
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}
