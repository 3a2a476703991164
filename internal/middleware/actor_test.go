package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taxinsta/dispatch/internal/models"
)

type fakeProfiles struct {
	profiles map[string]*models.Profile
}

func (f *fakeProfiles) Create(ctx context.Context, profile *models.Profile) error { return nil }

func (f *fakeProfiles) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	return f.profiles[id], nil
}

func (f *fakeProfiles) UpdateRole(ctx context.Context, id string, role models.Role) error {
	return nil
}

func (f *fakeProfiles) ListByRole(ctx context.Context, role models.Role) ([]*models.Profile, error) {
	return nil, nil
}

func TestActorMiddleware(t *testing.T) {
	profiles := &fakeProfiles{profiles: map[string]*models.Profile{
		"driver-1": {ID: "driver-1", Role: models.RoleDriver},
	}}

	var seen models.Actor
	var seenOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, seenOK = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Actor(profiles)(next)

	tests := []struct {
		name       string
		userID     string
		wantStatus int
	}{
		{"Known user", "driver-1", http.StatusOK},
		{"Unknown user", "nobody", http.StatusUnauthorized},
		{"Missing header", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, seenOK = models.Actor{}, false

			req := httptest.NewRequest(http.MethodGet, "/v1/rides/active", nil)
			if tt.userID != "" {
				req.Header.Set(ActorHeader, tt.userID)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if !seenOK || seen.ID != tt.userID || seen.Role != models.RoleDriver {
					t.Errorf("actor = %+v (ok=%v), want %s as driver", seen, seenOK, tt.userID)
				}
			} else if seenOK {
				t.Error("handler should not run for rejected requests")
			}
		})
	}
}
