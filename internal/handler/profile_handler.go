package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	apperrors "github.com/taxinsta/dispatch/internal/errors"
	"github.com/taxinsta/dispatch/internal/models"
	"github.com/taxinsta/dispatch/internal/repository"
	"github.com/taxinsta/dispatch/pkg/utils"
)

// ProfileHandler is the pass-through to the profile collaborator. The only
// mutation the core owns is the admin-initiated role change.
type ProfileHandler struct {
	profiles repository.ProfileRepository
	validate *validator.Validate
}

func NewProfileHandler(profiles repository.ProfileRepository) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		validate: validator.New(),
	}
}

func (h *ProfileHandler) RegisterRoutes(r chi.Router) {
	r.Post("/profiles", h.CreateProfile)
	r.Get("/profiles/{id}", h.GetProfile)
}

// RegisterAdminRoutes mounts the endpoints that need an authenticated actor,
// so they must sit behind the actor middleware.
func (h *ProfileHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/profiles", h.ListProfiles)
	r.Patch("/profiles/{id}/role", h.ChangeRole)
}

// POST /v1/profiles
func (h *ProfileHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		utils.Error(w, apperrors.Validation(err.Error()))
		return
	}

	role, ok := models.ParseRole(req.Role)
	if !ok {
		utils.Error(w, apperrors.Validation("unknown role"))
		return
	}

	profile := &models.Profile{
		DisplayName: req.DisplayName,
		Role:        role,
	}
	if req.Phone != "" {
		profile.Phone = &req.Phone
	}

	if err := h.profiles.Create(r.Context(), profile); err != nil {
		handleError(w, err)
		return
	}

	utils.Created(w, profile.ToResponse())
}

// GET /v1/profiles/{id}
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		utils.BadRequest(w, "profile id is required")
		return
	}

	profile, err := h.profiles.GetByID(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	if profile == nil {
		utils.NotFound(w, "profile")
		return
	}

	utils.Success(w, http.StatusOK, profile.ToResponse())
}

// GET /v1/profiles?role=driver — admin only roster listing.
func (h *ProfileHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.Error(w, apperrors.Unauthorized("authentication required"))
		return
	}
	if actor.Role != models.RoleAdmin {
		utils.Error(w, apperrors.NotAuthorized("only admins can list profiles"))
		return
	}

	role, ok := models.ParseRole(r.URL.Query().Get("role"))
	if !ok {
		utils.Error(w, apperrors.Validation("a role query parameter is required"))
		return
	}

	profiles, err := h.profiles.ListByRole(r.Context(), role)
	if err != nil {
		handleError(w, err)
		return
	}

	out := make([]*models.ProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.ToResponse())
	}
	utils.Success(w, http.StatusOK, out)
}

// PATCH /v1/profiles/{id}/role — admin only.
func (h *ProfileHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.Error(w, apperrors.Unauthorized("authentication required"))
		return
	}
	if actor.Role != models.RoleAdmin {
		utils.Error(w, apperrors.NotAuthorized("only admins can change roles"))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		utils.BadRequest(w, "profile id is required")
		return
	}

	var req models.ChangeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		utils.Error(w, apperrors.Validation(err.Error()))
		return
	}

	role, _ := models.ParseRole(req.Role)

	profile, err := h.profiles.GetByID(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	if profile == nil {
		utils.NotFound(w, "profile")
		return
	}

	if err := h.profiles.UpdateRole(r.Context(), id, role); err != nil {
		handleError(w, err)
		return
	}

	profile.Role = role
	utils.Success(w, http.StatusOK, profile.ToResponse())
}
