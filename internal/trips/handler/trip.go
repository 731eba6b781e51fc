package handler

import (
	"net/http"

	"tripsync/internal/trips/service"
	apperrors "tripsync/pkg/errors"
	httputil "tripsync/pkg/http"
	"tripsync/pkg/logger"
	"tripsync/pkg/middleware"
	"tripsync/pkg/model"
	"tripsync/pkg/sanitizer"

	"github.com/julienschmidt/httprouter"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type CompleteTripRequest struct {
	DistanceKm  float64 `json:"distance_km"`
	DurationMin int     `json:"duration_min"`
}

type AdvanceTripRequest struct {
	State           model.TripState `json:"state"`
	ExpectedVersion *int64          `json:"expected_version,omitempty"`
}

type TripHandler struct {
	coordinator service.TripCoordinator
	log         *logger.Logger
}

func NewTripHandler(coordinator service.TripCoordinator, log *logger.Logger) *TripHandler {
	return &TripHandler{
		coordinator: coordinator,
		log:         log,
	}
}

func (h *TripHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/trips/:id", h.GetByID)
	router.POST("/trips/:id/accept", h.Accept)
	router.POST("/trips/:id/complete", h.Complete)
	router.POST("/trips/:id/advance", h.Advance)
}

func (h *TripHandler) Accept(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tripID, driverID, ok := h.identify(w, r, ps, "Accept")
	if !ok {
		return
	}

	result := h.coordinator.AcceptTrip(r.Context(), tripID, driverID, idempotencyKey(r))
	h.writeResult(w, result, "Accept")
}

func (h *TripHandler) Complete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tripID, driverID, ok := h.identify(w, r, ps, "Complete")
	if !ok {
		return
	}

	var req CompleteTripRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err, "Complete")
		return
	}

	metrics := model.TripMetrics{DistanceKm: req.DistanceKm, DurationMin: req.DurationMin}
	result := h.coordinator.CompleteTrip(r.Context(), tripID, driverID, metrics, idempotencyKey(r))
	h.writeResult(w, result, "Complete")
}

func (h *TripHandler) Advance(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tripID, driverID, ok := h.identify(w, r, ps, "Advance")
	if !ok {
		return
	}

	var req AdvanceTripRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err, "Advance")
		return
	}

	result := h.coordinator.AdvanceTrip(r.Context(), tripID, driverID, sanitizer.TripState(string(req.State)), req.ExpectedVersion, idempotencyKey(r))
	h.writeResult(w, result, "Advance")
}

func (h *TripHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tripID, err := httputil.ParseID(ps, "id")
	if err != nil {
		h.writeError(w, err, "GetByID")
		return
	}

	trip, err := h.coordinator.GetTrip(r.Context(), tripID)
	if err != nil {
		h.writeError(w, err, "GetByID")
		return
	}

	if err := httputil.WriteSuccess(w, trip); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

// identify resolves the trip from the path and the driver from the verified
// token, so a driver can never act under another driver's id.
func (h *TripHandler) identify(w http.ResponseWriter, r *http.Request, ps httprouter.Params, handler string) (int64, int64, bool) {
	tripID, err := httputil.ParseID(ps, "id")
	if err != nil {
		h.writeError(w, err, handler)
		return 0, 0, false
	}

	driverID, ok := middleware.DriverID(r.Context())
	if !ok {
		h.writeError(w, apperrors.Unauthorized("Driver identity required"), handler)
		return 0, 0, false
	}
	return tripID, driverID, true
}

func idempotencyKey(r *http.Request) string {
	return sanitizer.IdempotencyKey(r.Header.Get(IdempotencyKeyHeader))
}

func (h *TripHandler) writeResult(w http.ResponseWriter, result service.Result, handler string) {
	if appErr := result.AppError(); appErr != nil {
		h.writeError(w, appErr, handler)
		return
	}
	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *TripHandler) writeError(w http.ResponseWriter, err error, handler string) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}
