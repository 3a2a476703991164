package models

import (
	"testing"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"Requested to assigned", StateRequested, StateAssigned, true},
		{"Requested to cancelled", StateRequested, StateCancelled, true},
		{"Assigned to arrived", StateAssigned, StateArrivedAtPickup, true},
		{"Arrived to in progress", StateArrivedAtPickup, StateInProgress, true},
		{"In progress to completed", StateInProgress, StateCompleted, true},
		{"In progress to cancelled", StateInProgress, StateCancelled, true},

		// No skipping stops along the way
		{"Assigned straight to in progress", StateAssigned, StateInProgress, false},
		{"Assigned straight to completed", StateAssigned, StateCompleted, false},
		{"Requested straight to completed", StateRequested, StateCompleted, false},
		{"Arrived straight to completed", StateArrivedAtPickup, StateCompleted, false},

		// No moving backwards
		{"Assigned back to requested", StateAssigned, StateRequested, false},
		{"In progress back to arrived", StateInProgress, StateArrivedAtPickup, false},

		// Terminal states are final
		{"Completed to anything", StateCompleted, StateAssigned, false},
		{"Completed to cancelled", StateCompleted, StateCancelled, false},
		{"Cancelled to requested", StateCancelled, StateRequested, false},

		{"Unknown state", "limbo", StateAssigned, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ride := &Ride{State: tt.from}
			if got := ride.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%q) from %q = %v, want %v", tt.to, tt.from, got, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, state := range []string{StateRequested, StateAssigned, StateArrivedAtPickup, StateInProgress} {
		if IsTerminal(state) {
			t.Errorf("IsTerminal(%q) = true, want false", state)
		}
	}
	for _, state := range []string{StateCompleted, StateCancelled} {
		if !IsTerminal(state) {
			t.Errorf("IsTerminal(%q) = false, want true", state)
		}
	}
}

func TestTracksDriver(t *testing.T) {
	tests := []struct {
		state string
		want  bool
	}{
		{StateRequested, false},
		{StateAssigned, true},
		{StateArrivedAtPickup, true},
		{StateInProgress, true},
		{StateCompleted, false},
		{StateCancelled, false},
	}

	for _, tt := range tests {
		if got := TracksDriver(tt.state); got != tt.want {
			t.Errorf("TracksDriver(%q) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestToResponse(t *testing.T) {
	addr := "Av. Principal 12"
	driverID := "driver-1"
	lat, lng := 9.2101, -66.0150

	ride := &Ride{
		ID:            "ride-1",
		PassengerID:   "passenger-1",
		DriverID:      &driverID,
		PickupLat:     9.2132,
		PickupLng:     -66.0125,
		PickupAddress: &addr,
		State:         StateInProgress,
		DriverLat:     &lat,
		DriverLng:     &lng,
	}

	resp := ride.ToResponse()

	if resp.Pickup.Address != addr {
		t.Errorf("Pickup.Address = %q, want %q", resp.Pickup.Address, addr)
	}
	if resp.Dropoff != nil {
		t.Error("Dropoff should be nil for a pickup-only ride")
	}
	if resp.DriverLocation == nil || resp.DriverLocation.Lat != lat {
		t.Errorf("DriverLocation = %+v, want lat %v", resp.DriverLocation, lat)
	}
}

func TestToResponseWithoutDriverLocation(t *testing.T) {
	ride := &Ride{
		ID:          "ride-1",
		PassengerID: "passenger-1",
		PickupLat:   9.2132,
		PickupLng:   -66.0125,
		State:       StateRequested,
	}

	resp := ride.ToResponse()

	if resp.DriverLocation != nil {
		t.Error("DriverLocation should be nil before any report")
	}
	if resp.DriverID != nil {
		t.Error("DriverID should be nil for an unclaimed ride")
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in     string
		want   Role
		wantOK bool
	}{
		{"passenger", RolePassenger, true},
		{"driver", RoleDriver, true},
		{"admin", RoleAdmin, true},
		{"rider", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if ok != tt.wantOK {
			t.Errorf("ParseRole(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if tt.wantOK && got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
