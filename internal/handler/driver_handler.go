package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	apperrors "github.com/taxinsta/dispatch/internal/errors"
	"github.com/taxinsta/dispatch/internal/hub"
	"github.com/taxinsta/dispatch/internal/models"
	"github.com/taxinsta/dispatch/internal/service"
	"github.com/taxinsta/dispatch/pkg/utils"
)

type DriverHandler struct {
	dispatch  service.DispatchService
	locations service.LocationService
	hub       *hub.Hub
	validate  *validator.Validate
}

func NewDriverHandler(dispatch service.DispatchService, locations service.LocationService, h *hub.Hub) *DriverHandler {
	return &DriverHandler{
		dispatch:  dispatch,
		locations: locations,
		hub:       h,
		validate:  validator.New(),
	}
}

func (h *DriverHandler) RegisterRoutes(r chi.Router) {
	r.Post("/rides/{id}/claim", h.ClaimRide)
	r.Post("/rides/{id}/advance", h.AdvanceState)
	r.Post("/rides/{id}/location", h.ReportLocation)
	r.Get("/rides/{id}/location", h.LastKnownLocation)
	r.Post("/drivers/online", h.GoOnline)
	r.Post("/drivers/offline", h.GoOffline)
}

// POST /v1/rides/{id}/claim — first valid claim wins, losers get a 409 they
// must treat as "offer withdrawn".
func (h *DriverHandler) ClaimRide(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.Error(w, apperrors.Unauthorized("authentication required"))
		return
	}

	id, ok := rideIDParam(r)
	if !ok {
		utils.BadRequest(w, "a valid ride id is required")
		return
	}

	ride, err := h.dispatch.ClaimRide(r.Context(), actor, id)
	if err != nil {
		handleError(w, err)
		return
	}

	h.hub.SetIdle(actor.ID, false)

	utils.Success(w, http.StatusOK, ride.ToResponse())
}

// POST /v1/rides/{id}/advance
func (h *DriverHandler) AdvanceState(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.Error(w, apperrors.Unauthorized("authentication required"))
		return
	}

	id, ok := rideIDParam(r)
	if !ok {
		utils.BadRequest(w, "a valid ride id is required")
		return
	}

	var req models.AdvanceStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		utils.Error(w, apperrors.Validation(err.Error()))
		return
	}

	ride, err := h.dispatch.AdvanceState(r.Context(), actor, id, req.TargetState)
	if err != nil {
		handleError(w, err)
		return
	}

	if ride.State == models.StateCompleted {
		h.hub.SetIdle(actor.ID, true)
	}

	utils.Success(w, http.StatusOK, ride.ToResponse())
}

// POST /v1/rides/{id}/location — high-frequency position reports from the
// assigned driver.
func (h *DriverHandler) ReportLocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.Error(w, apperrors.Unauthorized("authentication required"))
		return
	}

	id, ok := rideIDParam(r)
	if !ok {
		utils.BadRequest(w, "a valid ride id is required")
		return
	}

	var req models.ReportLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		utils.Error(w, apperrors.Validation(err.Error()))
		return
	}

	if _, err := h.locations.ReportLocation(r.Context(), actor, id, &req); err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /v1/rides/{id}/location — poll fallback for the tracked position.
func (h *DriverHandler) LastKnownLocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.Error(w, apperrors.Unauthorized("authentication required"))
		return
	}

	id, ok := rideIDParam(r)
	if !ok {
		utils.BadRequest(w, "a valid ride id is required")
		return
	}

	loc, err := h.locations.LastKnownLocation(r.Context(), actor, id)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, map[string]interface{}{"location": loc})
}

// POST /v1/drivers/online
func (h *DriverHandler) GoOnline(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.Error(w, apperrors.Unauthorized("authentication required"))
		return
	}

	if err := h.dispatch.SetDriverAvailability(r.Context(), actor, true); err != nil {
		handleError(w, err)
		return
	}

	h.hub.SetIdle(actor.ID, true)

	utils.NoContent(w)
}

// POST /v1/drivers/offline
func (h *DriverHandler) GoOffline(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.Error(w, apperrors.Unauthorized("authentication required"))
		return
	}

	if err := h.dispatch.SetDriverAvailability(r.Context(), actor, false); err != nil {
		handleError(w, err)
		return
	}

	h.hub.SetIdle(actor.ID, false)

	utils.NoContent(w)
}
