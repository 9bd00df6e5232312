package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-rea/internal/observability"
	observationhttp "github.com/odyssey-erp/odyssey-rea/internal/observation/http"
	"github.com/odyssey-erp/odyssey-rea/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rea/jobs"
)

// RouterParams lists the handlers mounted by NewRouter. Nil handlers leave
// their routes unmounted.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	EventHandler *observationhttp.Handler
	JobHandler   *jobs.Handler
	Metrics      *observability.Metrics
}

// NewRouter builds the API: event and resource routes at the root, queue
// health under /jobs, plus /healthz and /metrics.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	})...)

	r.Get("/healthz", healthz)
	if params.EventHandler != nil {
		params.EventHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
