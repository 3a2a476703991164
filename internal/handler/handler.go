package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	apperrors "github.com/taxinsta/dispatch/internal/errors"
	"github.com/taxinsta/dispatch/internal/middleware"
	"github.com/taxinsta/dispatch/internal/models"
	"github.com/taxinsta/dispatch/pkg/utils"
)

// handleError maps the service taxonomy onto HTTP responses. Every rejection
// is distinguishable by its code so clients can show the right banner.
func handleError(w http.ResponseWriter, err error) {
	var apiErr *apperrors.APIError
	if errors.As(err, &apiErr) {
		utils.Error(w, apiErr)
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrValidation):
		utils.Error(w, apperrors.Validation("pickup coordinates are required"))
	case errors.Is(err, apperrors.ErrClaimLost):
		utils.Error(w, apperrors.ClaimLost())
	case errors.Is(err, apperrors.ErrConflict):
		utils.Error(w, apperrors.Conflict("the ride changed state, refresh and try again"))
	case errors.Is(err, apperrors.ErrIllegalTransition):
		utils.Error(w, apperrors.IllegalTransition())
	case errors.Is(err, apperrors.ErrNotAuthorized):
		utils.Error(w, apperrors.NotAuthorized("you are not allowed to act on this ride"))
	case errors.Is(err, apperrors.ErrAlreadyActive):
		utils.Error(w, apperrors.AlreadyActive())
	case errors.Is(err, apperrors.ErrNotFound):
		utils.Error(w, apperrors.NotFound("ride"))
	case errors.Is(err, apperrors.ErrTimeout):
		utils.Error(w, apperrors.Timeout())
	case errors.Is(err, apperrors.ErrUnavailable):
		utils.Error(w, apperrors.Unavailable("a backing service is unavailable"))
	default:
		utils.InternalError(w, "internal server error")
	}
}

// actorFromRequest pulls the authenticated actor injected by the middleware.
func actorFromRequest(r *http.Request) (models.Actor, bool) {
	return middleware.ActorFromContext(r.Context())
}

// rideIDParam extracts the {id} path parameter and checks it is a UUID.
func rideIDParam(r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	return id, utils.IsValidUUID(id)
}
