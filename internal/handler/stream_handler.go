package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	apperrors "github.com/taxinsta/dispatch/internal/errors"
	"github.com/taxinsta/dispatch/internal/hub"
	"github.com/taxinsta/dispatch/internal/models"
	"github.com/taxinsta/dispatch/internal/service"
	"github.com/taxinsta/dispatch/pkg/utils"
)

// StreamHandler serves the push path: one SSE stream per connected client,
// fed by the hub. The pull endpoints remain the source of truth; the stream
// is best-effort and clients reconcile through polling.
type StreamHandler struct {
	hub       *hub.Hub
	dispatch  service.DispatchService
	heartbeat time.Duration
}

func NewStreamHandler(h *hub.Hub, dispatch service.DispatchService, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &StreamHandler{
		hub:       h,
		dispatch:  dispatch,
		heartbeat: heartbeat,
	}
}

func (h *StreamHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stream", h.Stream)
}

// GET /v1/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.Error(w, apperrors.Unauthorized("authentication required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := h.hub.Subscribe(actor.ID, actor.Role)
	defer h.hub.Unsubscribe(sub)

	// A connecting driver with no active ride joins the offer pool on this
	// instance; everyone gets a snapshot so the stream starts consistent.
	active, err := h.dispatch.ActiveRide(r.Context(), actor)
	if err == nil {
		if actor.Role == models.RoleDriver {
			h.hub.SetIdle(actor.ID, active == nil)
		}
		h.writeSnapshot(w, flusher, active)
	}

	ctx := r.Context()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.Events:
			if !open {
				// Replaced by a newer connection for the same user.
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, "event: heartbeat\ndata: {\"time\": %q}\n\n", time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

func (h *StreamHandler) writeSnapshot(w http.ResponseWriter, flusher http.Flusher, ride *models.Ride) {
	snapshot := map[string]interface{}{"ride": nil}
	if ride != nil {
		snapshot["ride"] = ride.ToResponse()
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
	flusher.Flush()
}
