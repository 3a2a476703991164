package models

import (
	"time"
)

// Ride event types delivered over the fan-out channel
const (
	EventRideRequested  = "ride_requested"
	EventRideAssigned   = "ride_assigned"
	EventOfferWithdrawn = "offer_withdrawn"
	EventStateChanged   = "state_changed"
	EventLocationUpdate = "location_update"
	EventRideCancelled  = "ride_cancelled"
	EventRideCompleted  = "ride_completed"
)

// RideEvent is the wire format published on the rides:events channel and
// delivered to subscribed clients. Routing is derived from the event, never
// from subscriber-side caches: the passenger and the assigned driver always
// receive it; the idle-driver pool only receives events whose state is
// requested, plus the offer_withdrawn notice when a ride leaves that state.
type RideEvent struct {
	Type         string    `json:"type"`
	RideID       string    `json:"ride_id"`
	State        string    `json:"state"`
	PassengerID  string    `json:"passenger_id"`
	DriverID     string    `json:"driver_id,omitempty"`
	Pickup       *Location `json:"pickup,omitempty"`
	Dropoff      *Location `json:"dropoff,omitempty"`
	DriverLat    *float64  `json:"driver_lat,omitempty"`
	DriverLng    *float64  `json:"driver_lng,omitempty"`
	FareEstimate *float64  `json:"fare_estimate,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewRideEvent builds an event snapshot from a ride.
func NewRideEvent(eventType string, ride *Ride) *RideEvent {
	ev := &RideEvent{
		Type:         eventType,
		RideID:       ride.ID,
		State:        ride.State,
		PassengerID:  ride.PassengerID,
		Pickup:       &Location{Lat: ride.PickupLat, Lng: ride.PickupLng},
		FareEstimate: ride.FareEstimate,
		Timestamp:    time.Now().UTC(),
	}
	if ride.DriverID != nil {
		ev.DriverID = *ride.DriverID
	}
	if ride.DropoffLat != nil && ride.DropoffLng != nil {
		ev.Dropoff = &Location{Lat: *ride.DropoffLat, Lng: *ride.DropoffLng}
	}
	if ride.DriverLat != nil && ride.DriverLng != nil {
		ev.DriverLat = ride.DriverLat
		ev.DriverLng = ride.DriverLng
	}
	return ev
}
