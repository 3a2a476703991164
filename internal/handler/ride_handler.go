package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	apperrors "github.com/taxinsta/dispatch/internal/errors"
	"github.com/taxinsta/dispatch/internal/models"
	"github.com/taxinsta/dispatch/internal/service"
	"github.com/taxinsta/dispatch/pkg/utils"
)

type RideHandler struct {
	dispatch service.DispatchService
	validate *validator.Validate
}

func NewRideHandler(dispatch service.DispatchService) *RideHandler {
	return &RideHandler{
		dispatch: dispatch,
		validate: validator.New(),
	}
}

func (h *RideHandler) RegisterRoutes(r chi.Router) {
	r.Post("/rides", h.RequestRide)
	r.Get("/rides/active", h.ActiveRide)
	r.Get("/rides/open", h.OpenRides)
	r.Get("/rides/{id}", h.GetRide)
	r.Post("/rides/{id}/cancel", h.CancelRide)
}

// POST /v1/rides
func (h *RideHandler) RequestRide(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.Error(w, apperrors.Unauthorized("authentication required"))
		return
	}

	var req models.RequestRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		utils.Error(w, apperrors.Validation(err.Error()))
		return
	}

	ride, err := h.dispatch.RequestRide(r.Context(), actor, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Created(w, ride.ToResponse())
}

// GET /v1/rides/{id}
func (h *RideHandler) GetRide(w http.ResponseWriter, r *http.Request) {
	id, ok := rideIDParam(r)
	if !ok {
		utils.BadRequest(w, "a valid ride id is required")
		return
	}

	ride, err := h.dispatch.GetRide(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, ride.ToResponse())
}

// GET /v1/rides/active — the authoritative "do I have a ride?" poll.
func (h *RideHandler) ActiveRide(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.Error(w, apperrors.Unauthorized("authentication required"))
		return
	}

	ride, err := h.dispatch.ActiveRide(r.Context(), actor)
	if err != nil {
		handleError(w, err)
		return
	}

	if ride == nil {
		utils.Success(w, http.StatusOK, map[string]interface{}{"ride": nil})
		return
	}
	utils.Success(w, http.StatusOK, map[string]interface{}{"ride": ride.ToResponse()})
}

// GET /v1/rides/open — the pending pool, for drivers joining late.
func (h *RideHandler) OpenRides(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.Error(w, apperrors.Unauthorized("authentication required"))
		return
	}
	if actor.Role != models.RoleDriver && actor.Role != models.RoleAdmin {
		utils.Error(w, apperrors.NotAuthorized("only drivers can list open rides"))
		return
	}

	rides, err := h.dispatch.OpenRides(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	responses := make([]*models.RideResponse, 0, len(rides))
	for _, ride := range rides {
		responses = append(responses, ride.ToResponse())
	}

	utils.Success(w, http.StatusOK, map[string]interface{}{"rides": responses})
}

// POST /v1/rides/{id}/cancel
func (h *RideHandler) CancelRide(w http.ResponseWriter, r *http.Request) {
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

	var req models.CancelRideRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.BadRequest(w, "invalid request body")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			utils.Error(w, apperrors.Validation(err.Error()))
			return
		}
	}

	ride, err := h.dispatch.CancelRide(r.Context(), actor, id, req.Reason)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, ride.ToResponse())
}
