package models

import (
	"time"
)

// Ride state constants
const (
	StateRequested       = "requested"
	StateAssigned        = "assigned"
	StateArrivedAtPickup = "arrived_at_pickup"
	StateInProgress      = "in_progress"
	StateCompleted       = "completed"
	StateCancelled       = "cancelled"
)

// ValidTransitions maps each state to the states a ride may move into.
// The lifecycle is monotonic; completed and cancelled are terminal.
var ValidTransitions = map[string][]string{
	StateRequested:       {StateAssigned, StateCancelled},
	StateAssigned:        {StateArrivedAtPickup, StateCancelled},
	StateArrivedAtPickup: {StateInProgress, StateCancelled},
	StateInProgress:      {StateCompleted, StateCancelled},
	StateCompleted:       {},
	StateCancelled:       {},
}

// Cancellation actors recorded on the ride
const (
	CancelledByPassenger = "passenger"
	CancelledByDriver    = "driver"
	CancelledByAdmin     = "admin"
	CancelledBySystem    = "system"
)

// Location carries a coordinate pair on request bodies. The required tags
// also treat a literal 0 as absent. That is deliberate: the service operates
// nowhere near the equator or the prime meridian, and a zero coordinate only
// ever means the client left the field out.
type Location struct {
	Lat     float64 `json:"lat" validate:"required,latitude"`
	Lng     float64 `json:"lng" validate:"required,longitude"`
	Address string  `json:"address,omitempty"`
}

type Ride struct {
	ID                 string     `db:"id" json:"id"`
	PassengerID        string     `db:"passenger_id" json:"passenger_id"`
	DriverID           *string    `db:"driver_id" json:"driver_id,omitempty"`
	PickupLat          float64    `db:"pickup_lat" json:"pickup_lat"`
	PickupLng          float64    `db:"pickup_lng" json:"pickup_lng"`
	PickupAddress      *string    `db:"pickup_address" json:"pickup_address,omitempty"`
	DropoffLat         *float64   `db:"dropoff_lat" json:"dropoff_lat,omitempty"`
	DropoffLng         *float64   `db:"dropoff_lng" json:"dropoff_lng,omitempty"`
	DropoffAddress     *string    `db:"dropoff_address" json:"dropoff_address,omitempty"`
	FareEstimate       *float64   `db:"fare_estimate" json:"fare_estimate,omitempty"`
	State              string     `db:"state" json:"state"`
	DriverLat          *float64   `db:"driver_lat" json:"driver_lat,omitempty"`
	DriverLng          *float64   `db:"driver_lng" json:"driver_lng,omitempty"`
	DriverLocationAt   *time.Time `db:"driver_location_at" json:"driver_location_at,omitempty"`
	CancelledBy        *string    `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// RequestRideRequest creates a ride. Pickup coordinates are mandatory;
// dropoff is optional (pickup-only hails are allowed) and may instead be
// given as a free-text address to be geocoded.
type RequestRideRequest struct {
	Pickup         Location  `json:"pickup" validate:"required"`
	Dropoff        *Location `json:"dropoff,omitempty"`
	DropoffAddress string    `json:"dropoff_address,omitempty" validate:"max=300"`
}

type AdvanceStateRequest struct {
	TargetState string `json:"target_state" validate:"required,oneof=arrived_at_pickup in_progress completed"`
}

type CancelRideRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type ReportLocationRequest struct {
	Lat float64 `json:"lat" validate:"required,latitude"`
	Lng float64 `json:"lng" validate:"required,longitude"`
}

type RideResponse struct {
	ID             string     `json:"id"`
	State          string     `json:"state"`
	PassengerID    string     `json:"passenger_id"`
	DriverID       *string    `json:"driver_id,omitempty"`
	Pickup         Location   `json:"pickup"`
	Dropoff        *Location  `json:"dropoff,omitempty"`
	FareEstimate   *float64   `json:"fare_estimate,omitempty"`
	DriverLocation *Location  `json:"driver_location,omitempty"`
	LocationAt     *time.Time `json:"driver_location_at,omitempty"`
	CancelledBy    *string    `json:"cancelled_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (r *Ride) ToResponse() *RideResponse {
	resp := &RideResponse{
		ID:           r.ID,
		State:        r.State,
		PassengerID:  r.PassengerID,
		DriverID:     r.DriverID,
		Pickup:       Location{Lat: r.PickupLat, Lng: r.PickupLng},
		FareEstimate: r.FareEstimate,
		CancelledBy:  r.CancelledBy,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}

	if r.PickupAddress != nil {
		resp.Pickup.Address = *r.PickupAddress
	}
	if r.DropoffLat != nil && r.DropoffLng != nil {
		resp.Dropoff = &Location{Lat: *r.DropoffLat, Lng: *r.DropoffLng}
		if r.DropoffAddress != nil {
			resp.Dropoff.Address = *r.DropoffAddress
		}
	}
	if r.DriverLat != nil && r.DriverLng != nil {
		resp.DriverLocation = &Location{Lat: *r.DriverLat, Lng: *r.DriverLng}
		resp.LocationAt = r.DriverLocationAt
	}

	return resp
}

// CanTransitionTo checks if a ride can move to a new state
func (r *Ride) CanTransitionTo(newState string) bool {
	validNext, exists := ValidTransitions[r.State]
	if !exists {
		return false
	}

	for _, state := range validNext {
		if state == newState {
			return true
		}
	}
	return false
}

// IsTerminal returns true for completed and cancelled states
func IsTerminal(state string) bool {
	return state == StateCompleted || state == StateCancelled
}

// IsActive returns true if the ride is not in a terminal state
func (r *Ride) IsActive() bool {
	return !IsTerminal(r.State)
}

// TracksDriver reports whether driver location updates are accepted
// in the given state.
func TracksDriver(state string) bool {
	return state == StateAssigned || state == StateArrivedAtPickup || state == StateInProgress
}
