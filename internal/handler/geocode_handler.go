package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/taxinsta/dispatch/internal/geocode"
	"github.com/taxinsta/dispatch/pkg/utils"
)

// GeocodeHandler exposes the geocoder collaborator to the map client. A miss
// is an empty result, never an error.
type GeocodeHandler struct {
	geocoder geocode.Geocoder
}

func NewGeocodeHandler(geocoder geocode.Geocoder) *GeocodeHandler {
	return &GeocodeHandler{geocoder: geocoder}
}

func (h *GeocodeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/geocode", h.Lookup)
}

// GET /v1/geocode?q=
func (h *GeocodeHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		utils.BadRequest(w, "query parameter q is required")
		return
	}

	loc, err := h.geocoder.Lookup(r.Context(), query)
	if err != nil || loc == nil {
		utils.Success(w, http.StatusOK, map[string]interface{}{"match": nil})
		return
	}

	utils.Success(w, http.StatusOK, map[string]interface{}{"match": loc})
}
