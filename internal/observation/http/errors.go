package observationhttp

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-rea/internal/observation"
	"github.com/odyssey-erp/odyssey-rea/internal/platform/httpx"
)

var errorRules = []httpx.ErrorRule{
	{Target: observation.ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Target: observation.ErrDuplicateRequest, Status: http.StatusConflict, Title: "Duplicate Request"},
	{Target: httpx.ErrBadRequest, Status: http.StatusBadRequest, Title: "Bad Request"},
	{Target: observation.ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
	{Target: observation.ErrInvalidAction, Status: http.StatusUnprocessableEntity, Title: "Invalid Action"},
	{Target: observation.ErrMissingQuantity, Status: http.StatusUnprocessableEntity, Title: "Missing Quantity"},
	{Target: observation.ErrInvalidQuantity, Status: http.StatusUnprocessableEntity, Title: "Invalid Quantity"},
	{Target: observation.ErrUnitMismatch, Status: http.StatusUnprocessableEntity, Title: "Unit Mismatch"},
	{Target: observation.ErrUnknownUnit, Status: http.StatusUnprocessableEntity, Title: "Unknown Unit"},
	{Target: observation.ErrInvalidTransfer, Status: http.StatusUnprocessableEntity, Title: "Invalid Transfer"},
	{Target: observation.ErrNegativeQuantity, Status: http.StatusUnprocessableEntity, Title: "Negative Quantity"},
	{Target: observation.ErrStorage, Status: http.StatusServiceUnavailable, Title: "Storage Unavailable"},
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if !observation.IsValidationError(err) {
		h.logger.Error("economic event request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err),
		)
	}
	httpx.RespondError(w, err, errorRules)
}
