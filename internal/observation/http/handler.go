// Package observationhttp exposes the economic event engine as a JSON API.
package observationhttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-rea/internal/observation"
	"github.com/odyssey-erp/odyssey-rea/internal/platform/httpx"
)

// IdempotencyHeader carries the caller's request key for POST /events.
const IdempotencyHeader = "Idempotency-Key"

const maxListLimit = 1000

// Service is the engine surface the handler depends on.
type Service interface {
	CreateEvent(ctx context.Context, input observation.EventInput, newResource *observation.ResourceInput) (observation.CreateResult, error)
	GetResource(ctx context.Context, resourceID string) (observation.EconomicResource, error)
	History(ctx context.Context, resourceID string) ([]observation.EconomicEvent, error)
	GetEvent(ctx context.Context, id string) (observation.EconomicEvent, error)
	ListEvents(ctx context.Context, filter observation.EventFilter) ([]observation.EconomicEvent, error)
	Rebuild(ctx context.Context, resourceID string) (observation.EconomicResource, error)
	Verify(ctx context.Context, resourceID string) (observation.VerifyReport, error)
}

// Handler wires HTTP endpoints for economic events and resources.
type Handler struct {
	logger    *slog.Logger
	service   Service
	rateLimit int
}

// NewHandler constructs the handler. rateLimit caps POST /events per client IP
// per minute; zero disables the limit.
func NewHandler(logger *slog.Logger, service Service, rateLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rateLimit: rateLimit}
}

// MountRoutes registers event and resource routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/events", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.rateLimit > 0 {
				r.Use(httprate.Limit(h.rateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
			}
			r.Post("/", h.createEvent)
		})
		r.Get("/", h.listEvents)
		r.Get("/{id}", h.getEvent)
	})
	r.Route("/resources/{id}", func(r chi.Router) {
		r.Get("/", h.getResource)
		r.Get("/events", h.resourceEvents)
		r.Post("/rebuild", h.rebuildResource)
		r.Post("/verify", h.verifyResource)
	})
}

type createEventRequest struct {
	Event                  observation.EventInput     `json:"event"`
	NewInventoriedResource *observation.ResourceInput `json:"newInventoriedResource,omitempty"`
}

type eventsResponse struct {
	Events []observation.EconomicEvent `json:"events"`
}

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	req.Event.RequestKey = r.Header.Get(IdempotencyHeader)
	result, err := h.service.CreateEvent(r.Context(), req.Event, req.NewInventoriedResource)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if result.Resource != nil {
		w.Header().Set("Location", "/resources/"+result.Resource.ID)
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.service.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, event)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := observation.EventFilter{
		ResourceID:    q.Get("resource"),
		InputOf:       q.Get("inputOf"),
		OutputOf:      q.Get("outputOf"),
		RealizationOf: q.Get("realizationOf"),
		Action:        observation.Action(q.Get("action")),
		Limit:         maxListLimit,
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "limit must be a positive integer")
			return
		}
		filter.Limit = min(limit, maxListLimit)
	}
	events, err := h.service.ListEvents(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if events == nil {
		events = []observation.EconomicEvent{}
	}
	httpx.JSON(w, http.StatusOK, eventsResponse{Events: events})
}

func (h *Handler) getResource(w http.ResponseWriter, r *http.Request) {
	resource, err := h.service.GetResource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resource)
}

func (h *Handler) resourceEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, eventsResponse{Events: events})
}

func (h *Handler) rebuildResource(w http.ResponseWriter, r *http.Request) {
	resource, err := h.service.Rebuild(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resource)
}

func (h *Handler) verifyResource(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Verify(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
