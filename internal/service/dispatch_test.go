package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/taxinsta/dispatch/internal/cache"
	apperrors "github.com/taxinsta/dispatch/internal/errors"
	"github.com/taxinsta/dispatch/internal/models"
	"github.com/taxinsta/dispatch/internal/repository"
)

// fakeRideRepo is an in-memory store with the same conditional-write
// semantics as the SQL layer: mutations only apply when the stored state
// matches, and a missed condition returns nil, nil.
type fakeRideRepo struct {
	mu    sync.Mutex
	rides map[string]*models.Ride
	seq   int
}

func newFakeRideRepo() *fakeRideRepo {
	return &fakeRideRepo{rides: make(map[string]*models.Ride)}
}

func (f *fakeRideRepo) Create(ctx context.Context, ride *models.Ride) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.rides {
		if existing.PassengerID == ride.PassengerID && !models.IsTerminal(existing.State) {
			return apperrors.ErrAlreadyActive
		}
	}

	if ride.ID == "" {
		f.seq++
		ride.ID = fmt.Sprintf("ride-%d", f.seq)
	}
	ride.State = models.StateRequested
	ride.CreatedAt = time.Now()
	ride.UpdatedAt = ride.CreatedAt

	cp := *ride
	f.rides[ride.ID] = &cp
	return nil
}

func (f *fakeRideRepo) GetByID(ctx context.Context, id string) (*models.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ride, ok := f.rides[id]
	if !ok {
		return nil, nil
	}
	cp := *ride
	return &cp, nil
}

func (f *fakeRideRepo) GetActiveByPassengerID(ctx context.Context, passengerID string) (*models.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ride := range f.rides {
		if ride.PassengerID == passengerID && !models.IsTerminal(ride.State) {
			cp := *ride
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRideRepo) GetActiveByDriverID(ctx context.Context, driverID string) (*models.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ride := range f.rides {
		if ride.DriverID != nil && *ride.DriverID == driverID && !models.IsTerminal(ride.State) {
			cp := *ride
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRideRepo) ListRequested(ctx context.Context) ([]*models.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Ride
	for _, ride := range f.rides {
		if ride.State == models.StateRequested {
			cp := *ride
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRideRepo) Claim(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ride, ok := f.rides[rideID]
	if !ok || ride.State != models.StateRequested || ride.DriverID != nil {
		return nil, nil
	}
	for _, busy := range f.rides {
		if busy.DriverID != nil && *busy.DriverID == driverID && !models.IsTerminal(busy.State) {
			return nil, nil
		}
	}

	ride.State = models.StateAssigned
	ride.DriverID = &driverID
	ride.UpdatedAt = time.Now()

	cp := *ride
	return &cp, nil
}

func (f *fakeRideRepo) UpdateState(ctx context.Context, id, expected, next string, change repository.StateChange) (*models.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ride, ok := f.rides[id]
	if !ok || ride.State != expected {
		return nil, nil
	}

	ride.State = next
	if change.CancelledBy != nil {
		ride.CancelledBy = change.CancelledBy
	}
	if change.CancellationReason != nil {
		ride.CancellationReason = change.CancellationReason
	}
	if change.ClearDriverLocation {
		ride.DriverLat = nil
		ride.DriverLng = nil
		ride.DriverLocationAt = nil
	}
	ride.UpdatedAt = time.Now()

	cp := *ride
	return &cp, nil
}

func (f *fakeRideRepo) UpdateDriverLocation(ctx context.Context, rideID, driverID string, lat, lng float64) (*models.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ride, ok := f.rides[rideID]
	if !ok || ride.DriverID == nil || *ride.DriverID != driverID || !models.TracksDriver(ride.State) {
		return nil, nil
	}

	now := time.Now()
	ride.DriverLat = &lat
	ride.DriverLng = &lng
	ride.DriverLocationAt = &now
	ride.UpdatedAt = now

	cp := *ride
	return &cp, nil
}

type fakeRideCache struct {
	mu   sync.Mutex
	idle map[string]bool
	locs map[string]*cache.DriverLocation
}

func newFakeRideCache() *fakeRideCache {
	return &fakeRideCache{
		idle: make(map[string]bool),
		locs: make(map[string]*cache.DriverLocation),
	}
}

func (f *fakeRideCache) MarkIdle(ctx context.Context, driverID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idle[driverID] = true
	return nil
}

func (f *fakeRideCache) MarkBusy(ctx context.Context, driverID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.idle, driverID)
	return nil
}

func (f *fakeRideCache) IsIdle(ctx context.Context, driverID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idle[driverID], nil
}

func (f *fakeRideCache) IdleDrivers(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.idle))
	for id := range f.idle {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeRideCache) SetRideLocation(ctx context.Context, rideID string, lat, lng float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locs[rideID] = &cache.DriverLocation{Lat: lat, Lng: lng, UpdatedAt: time.Now().Unix()}
	return nil
}

func (f *fakeRideCache) GetRideLocation(ctx context.Context, rideID string) (*cache.DriverLocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locs[rideID], nil
}

func (f *fakeRideCache) ClearRideLocation(ctx context.Context, rideID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locs, rideID)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.RideEvent
}

func (f *fakePublisher) Publish(ctx context.Context, ev *models.RideEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) eventsOfType(eventType string) []*models.RideEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RideEvent
	for _, ev := range f.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type fakeGeocoder struct {
	result *models.Location
}

func (f *fakeGeocoder) Lookup(ctx context.Context, address string) (*models.Location, error) {
	return f.result, nil
}

func newTestDispatch(t *testing.T) (DispatchService, *fakeRideRepo, *fakeRideCache, *fakePublisher) {
	t.Helper()
	repo := newFakeRideRepo()
	rc := newFakeRideCache()
	pub := &fakePublisher{}
	svc := NewDispatchService(repo, rc, &fakeGeocoder{}, NewFareEstimator(), pub, time.Second)
	return svc, repo, rc, pub
}

var (
	passenger = models.Actor{ID: "passenger-1", Role: models.RolePassenger}
	driver    = models.Actor{ID: "driver-1", Role: models.RoleDriver}
	admin     = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
)

// seedRide walks a ride into the given state through the real operations.
func seedRide(t *testing.T, svc DispatchService, state string) *models.Ride {
	t.Helper()
	ctx := context.Background()

	ride, err := svc.RequestRide(ctx, passenger, &models.RequestRideRequest{
		Pickup: models.Location{Lat: 9.2132, Lng: -66.0125},
	})
	if err != nil {
		t.Fatalf("RequestRide() error = %v", err)
	}
	if state == models.StateRequested {
		return ride
	}

	ride, err = svc.ClaimRide(ctx, driver, ride.ID)
	if err != nil {
		t.Fatalf("ClaimRide() error = %v", err)
	}

	for _, next := range []string{models.StateArrivedAtPickup, models.StateInProgress, models.StateCompleted} {
		if ride.State == state {
			return ride
		}
		ride, err = svc.AdvanceState(ctx, driver, ride.ID, next)
		if err != nil {
			t.Fatalf("AdvanceState(%s) error = %v", next, err)
		}
	}
	if ride.State != state {
		t.Fatalf("could not seed ride into state %q", state)
	}
	return ride
}

func TestRequestRidePickupOnly(t *testing.T) {
	svc, _, _, pub := newTestDispatch(t)
	ctx := context.Background()

	ride, err := svc.RequestRide(ctx, passenger, &models.RequestRideRequest{
		Pickup: models.Location{Lat: 9.2132, Lng: -66.0125, Address: "Plaza Bolivar"},
	})
	if err != nil {
		t.Fatalf("RequestRide() error = %v", err)
	}

	if ride.State != models.StateRequested {
		t.Errorf("State = %q, want %q", ride.State, models.StateRequested)
	}
	if ride.DropoffLat != nil || ride.FareEstimate != nil {
		t.Error("pickup-only ride should have no dropoff and no fare estimate")
	}
	if got := pub.eventsOfType(models.EventRideRequested); len(got) != 1 {
		t.Errorf("ride_requested events = %d, want 1", len(got))
	}
}

func TestRequestRideWithDropoffEstimatesFare(t *testing.T) {
	svc, _, _, _ := newTestDispatch(t)
	ctx := context.Background()

	ride, err := svc.RequestRide(ctx, passenger, &models.RequestRideRequest{
		Pickup:  models.Location{Lat: 9.2132, Lng: -66.0125},
		Dropoff: &models.Location{Lat: 9.2632, Lng: -66.0625},
	})
	if err != nil {
		t.Fatalf("RequestRide() error = %v", err)
	}

	if ride.FareEstimate == nil || *ride.FareEstimate <= 0 {
		t.Errorf("FareEstimate = %v, want a positive estimate", ride.FareEstimate)
	}
}

func TestRequestRideGeocodesDropoffAddress(t *testing.T) {
	repo := newFakeRideRepo()
	pub := &fakePublisher{}
	geo := &fakeGeocoder{result: &models.Location{Lat: 9.25, Lng: -66.05}}
	svc := NewDispatchService(repo, newFakeRideCache(), geo, NewFareEstimator(), pub, time.Second)

	ride, err := svc.RequestRide(context.Background(), passenger, &models.RequestRideRequest{
		Pickup:         models.Location{Lat: 9.2132, Lng: -66.0125},
		DropoffAddress: "Terminal de Oriente",
	})
	if err != nil {
		t.Fatalf("RequestRide() error = %v", err)
	}

	if ride.DropoffLat == nil || *ride.DropoffLat != 9.25 {
		t.Errorf("DropoffLat = %v, want 9.25", ride.DropoffLat)
	}
	if ride.FareEstimate == nil {
		t.Error("geocoded dropoff should produce a fare estimate")
	}
}

func TestRequestRideGeocodeMissStaysPickupOnly(t *testing.T) {
	svc, _, _, _ := newTestDispatch(t)

	ride, err := svc.RequestRide(context.Background(), passenger, &models.RequestRideRequest{
		Pickup:         models.Location{Lat: 9.2132, Lng: -66.0125},
		DropoffAddress: "nowhere in particular",
	})
	if err != nil {
		t.Fatalf("RequestRide() error = %v", err)
	}

	if ride.DropoffLat != nil {
		t.Error("unresolvable address should leave the ride pickup-only")
	}
	if ride.DropoffAddress == nil {
		t.Error("the raw address text should still be recorded")
	}
}

func TestRequestRideRejectsMissingPickup(t *testing.T) {
	svc, _, _, _ := newTestDispatch(t)

	_, err := svc.RequestRide(context.Background(), passenger, &models.RequestRideRequest{})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestRequestRideRejectsNonPassengers(t *testing.T) {
	svc, _, _, _ := newTestDispatch(t)
	req := &models.RequestRideRequest{Pickup: models.Location{Lat: 9.2132, Lng: -66.0125}}

	for _, actor := range []models.Actor{driver, admin} {
		if _, err := svc.RequestRide(context.Background(), actor, req); !errors.Is(err, apperrors.ErrNotAuthorized) {
			t.Errorf("role %s: error = %v, want ErrNotAuthorized", actor.Role, err)
		}
	}
}

func TestRequestRideAlreadyActive(t *testing.T) {
	svc, _, _, _ := newTestDispatch(t)
	seedRide(t, svc, models.StateRequested)

	_, err := svc.RequestRide(context.Background(), passenger, &models.RequestRideRequest{
		Pickup: models.Location{Lat: 9.2132, Lng: -66.0125},
	})
	if !errors.Is(err, apperrors.ErrAlreadyActive) {
		t.Errorf("error = %v, want ErrAlreadyActive", err)
	}
}

func TestRequestRideConcurrentDuplicates(t *testing.T) {
	svc, repo, _, _ := newTestDispatch(t)

	const racers = 8
	var wg sync.WaitGroup
	results := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.RequestRide(context.Background(), passenger, &models.RequestRideRequest{
				Pickup: models.Location{Lat: 9.2132, Lng: -66.0125},
			})
		}(i)
	}
	wg.Wait()

	wins, rejections := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, apperrors.ErrAlreadyActive):
			rejections++
		default:
			t.Errorf("unexpected request error: %v", err)
		}
	}

	if wins != 1 {
		t.Errorf("created rides = %d, want exactly 1", wins)
	}
	if rejections != racers-1 {
		t.Errorf("rejections = %d, want %d", rejections, racers-1)
	}

	open := 0
	for _, ride := range repo.rides {
		if ride.PassengerID == passenger.ID && !models.IsTerminal(ride.State) {
			open++
		}
	}
	if open != 1 {
		t.Errorf("non-terminal rides for passenger = %d, want 1", open)
	}
}

func TestClaimRideExactlyOneWinner(t *testing.T) {
	svc, _, _, pub := newTestDispatch(t)
	ride := seedRide(t, svc, models.StateRequested)

	const racers = 16
	var wg sync.WaitGroup
	results := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := models.Actor{ID: fmt.Sprintf("racer-%d", i), Role: models.RoleDriver}
			_, results[i] = svc.ClaimRide(context.Background(), actor, ride.ID)
		}(i)
	}
	wg.Wait()

	wins, losses := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, apperrors.ErrClaimLost):
			losses++
		default:
			t.Errorf("unexpected claim error: %v", err)
		}
	}

	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
	if losses != racers-1 {
		t.Errorf("losers = %d, want %d", losses, racers-1)
	}
	if got := pub.eventsOfType(models.EventRideAssigned); len(got) != 1 {
		t.Errorf("ride_assigned events = %d, want 1", len(got))
	}

	claimed, err := svc.GetRide(context.Background(), ride.ID)
	if err != nil {
		t.Fatalf("GetRide() error = %v", err)
	}
	if claimed.State != models.StateAssigned || claimed.DriverID == nil {
		t.Errorf("ride after race: state = %q, driver = %v", claimed.State, claimed.DriverID)
	}
}

func TestClaimRideConcurrentAcrossRides(t *testing.T) {
	svc, _, _, _ := newTestDispatch(t)
	first := seedRide(t, svc, models.StateRequested)

	other := models.Actor{ID: "passenger-2", Role: models.RolePassenger}
	second, err := svc.RequestRide(context.Background(), other, &models.RequestRideRequest{
		Pickup: models.Location{Lat: 9.22, Lng: -66.01},
	})
	if err != nil {
		t.Fatalf("RequestRide() error = %v", err)
	}

	// One driver races themselves onto two open rides. The busy guard in the
	// store lets at most one of the claims land.
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, rideID := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, rideID string) {
			defer wg.Done()
			_, results[i] = svc.ClaimRide(context.Background(), driver, rideID)
		}(i, rideID)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, apperrors.ErrClaimLost), errors.Is(err, apperrors.ErrAlreadyActive):
		default:
			t.Errorf("unexpected claim error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}

	got, err := svc.ActiveRide(context.Background(), driver)
	if err != nil {
		t.Fatalf("ActiveRide() error = %v", err)
	}
	if got == nil {
		t.Fatal("driver should hold exactly one assigned ride")
	}
}

func TestClaimRideNotFound(t *testing.T) {
	svc, _, _, _ := newTestDispatch(t)

	_, err := svc.ClaimRide(context.Background(), driver, "no-such-ride")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestClaimRideRejectsPassenger(t *testing.T) {
	svc, _, _, _ := newTestDispatch(t)
	ride := seedRide(t, svc, models.StateRequested)

	_, err := svc.ClaimRide(context.Background(), passenger, ride.ID)
	if !errors.Is(err, apperrors.ErrNotAuthorized) {
		t.Errorf("error = %v, want ErrNotAuthorized", err)
	}
}

func TestClaimRideWithActiveRide(t *testing.T) {
	svc, _, _, _ := newTestDispatch(t)
	seedRide(t, svc, models.StateAssigned)

	other := models.Actor{ID: "passenger-2", Role: models.RolePassenger}
	second, err := svc.RequestRide(context.Background(), other, &models.RequestRideRequest{
		Pickup: models.Location{Lat: 9.2, Lng: -66.0},
	})
	if err != nil {
		t.Fatalf("RequestRide() error = %v", err)
	}

	_, err = svc.ClaimRide(context.Background(), driver, second.ID)
	if !errors.Is(err, apperrors.ErrAlreadyActive) {
		t.Errorf("error = %v, want ErrAlreadyActive", err)
	}
}

func TestClaimRideMarksDriverBusy(t *testing.T) {
	svc, _, rc, _ := newTestDispatch(t)
	ride := seedRide(t, svc, models.StateRequested)
	rc.MarkIdle(context.Background(), driver.ID)

	if _, err := svc.ClaimRide(context.Background(), driver, ride.ID); err != nil {
		t.Fatalf("ClaimRide() error = %v", err)
	}

	idle, _ := rc.IsIdle(context.Background(), driver.ID)
	if idle {
		t.Error("claiming driver should leave the idle pool")
	}
}

func TestAdvanceStateFullLifecycle(t *testing.T) {
	svc, _, rc, pub := newTestDispatch(t)
	ride := seedRide(t, svc, models.StateAssigned)
	ctx := context.Background()

	for _, next := range []string{models.StateArrivedAtPickup, models.StateInProgress, models.StateCompleted} {
		updated, err := svc.AdvanceState(ctx, driver, ride.ID, next)
		if err != nil {
			t.Fatalf("AdvanceState(%s) error = %v", next, err)
		}
		if updated.State != next {
			t.Fatalf("State = %q, want %q", updated.State, next)
		}
	}

	if got := pub.eventsOfType(models.EventRideCompleted); len(got) != 1 {
		t.Errorf("ride_completed events = %d, want 1", len(got))
	}
	idle, _ := rc.IsIdle(ctx, driver.ID)
	if !idle {
		t.Error("completing driver should rejoin the idle pool")
	}
}

func TestAdvanceStateNoSkipping(t *testing.T) {
	tests := []struct {
		name   string
		from   string
		target string
	}{
		{"Assigned to in progress", models.StateAssigned, models.StateInProgress},
		{"Assigned to completed", models.StateAssigned, models.StateCompleted},
		{"Arrived to completed", models.StateArrivedAtPickup, models.StateCompleted},
		{"Backwards from in progress", models.StateInProgress, models.StateArrivedAtPickup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _, _ := newTestDispatch(t)
			ride := seedRide(t, svc, tt.from)

			_, err := svc.AdvanceState(context.Background(), driver, ride.ID, tt.target)
			if !errors.Is(err, apperrors.ErrIllegalTransition) {
				t.Errorf("error = %v, want ErrIllegalTransition", err)
			}
		})
	}
}

func TestAdvanceStateRejectsCancelTarget(t *testing.T) {
	svc, _, _, _ := newTestDispatch(t)
	ride := seedRide(t, svc, models.StateAssigned)

	_, err := svc.AdvanceState(context.Background(), driver, ride.ID, models.StateCancelled)
	if !errors.Is(err, apperrors.ErrIllegalTransition) {
		t.Errorf("error = %v, want ErrIllegalTransition", err)
	}
}

func TestAdvanceStateWrongDriver(t *testing.T) {
	svc, _, _, _ := newTestDispatch(t)
	ride := seedRide(t, svc, models.StateAssigned)

	imposter := models.Actor{ID: "driver-2", Role: models.RoleDriver}
	_, err := svc.AdvanceState(context.Background(), imposter, ride.ID, models.StateArrivedAtPickup)
	if !errors.Is(err, apperrors.ErrNotAuthorized) {
		t.Errorf("error = %v, want ErrNotAuthorized", err)
	}
}

func TestAdvanceStateConflictWhenStateMoved(t *testing.T) {
	svc, repo, _, _ := newTestDispatch(t)
	ride := seedRide(t, svc, models.StateAssigned)

	// Another writer moves the ride between this driver's read and write.
	repo.mu.Lock()
	repo.rides[ride.ID].State = models.StateCancelled
	repo.mu.Unlock()

	_, err := svc.AdvanceState(context.Background(), driver, ride.ID, models.StateArrivedAtPickup)
	if err == nil {
		t.Fatal("expected an error after a concurrent state change")
	}
}

func TestCancelRidePolicies(t *testing.T) {
	otherPassenger := models.Actor{ID: "passenger-2", Role: models.RolePassenger}

	tests := []struct {
		name    string
		state   string
		actor   models.Actor
		wantErr error
		wantBy  string
	}{
		{"Passenger cancels own requested ride", models.StateRequested, passenger, nil, models.CancelledByPassenger},
		{"Passenger cancels before pickup", models.StateArrivedAtPickup, passenger, nil, models.CancelledByPassenger},
		{"Passenger cannot cancel in progress", models.StateInProgress, passenger, apperrors.ErrIllegalTransition, ""},
		{"Stranger cannot cancel", models.StateRequested, otherPassenger, apperrors.ErrNotAuthorized, ""},
		{"Driver cancels own ride", models.StateAssigned, driver, nil, models.CancelledByDriver},
		{"Driver cancels mid trip", models.StateInProgress, driver, nil, models.CancelledByDriver},
		{"Admin cancels any ride", models.StateInProgress, admin, nil, models.CancelledByAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _, pub := newTestDispatch(t)
			ride := seedRide(t, svc, tt.state)

			updated, err := svc.CancelRide(context.Background(), tt.actor, ride.ID, "change of plans")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("CancelRide() error = %v", err)
			}
			if updated.State != models.StateCancelled {
				t.Errorf("State = %q, want cancelled", updated.State)
			}
			if updated.CancelledBy == nil || *updated.CancelledBy != tt.wantBy {
				t.Errorf("CancelledBy = %v, want %q", updated.CancelledBy, tt.wantBy)
			}
			if got := pub.eventsOfType(models.EventRideCancelled); len(got) != 1 {
				t.Errorf("ride_cancelled events = %d, want 1", len(got))
			}
		})
	}
}

func TestCancelRideTerminalState(t *testing.T) {
	svc, _, _, _ := newTestDispatch(t)
	ride := seedRide(t, svc, models.StateCompleted)

	_, err := svc.CancelRide(context.Background(), admin, ride.ID, "")
	if !errors.Is(err, apperrors.ErrIllegalTransition) {
		t.Errorf("error = %v, want ErrIllegalTransition", err)
	}
}

func TestCancelRideFreesDriver(t *testing.T) {
	svc, _, rc, _ := newTestDispatch(t)
	ride := seedRide(t, svc, models.StateAssigned)
	ctx := context.Background()

	if _, err := svc.CancelRide(ctx, driver, ride.ID, "vehicle trouble"); err != nil {
		t.Fatalf("CancelRide() error = %v", err)
	}

	idle, _ := rc.IsIdle(ctx, driver.ID)
	if !idle {
		t.Error("cancelled ride should return the driver to the idle pool")
	}
}

func TestActiveRide(t *testing.T) {
	svc, _, _, _ := newTestDispatch(t)
	ride := seedRide(t, svc, models.StateAssigned)
	ctx := context.Background()

	got, err := svc.ActiveRide(ctx, passenger)
	if err != nil || got == nil || got.ID != ride.ID {
		t.Errorf("passenger ActiveRide() = %v, %v, want ride %s", got, err, ride.ID)
	}

	got, err = svc.ActiveRide(ctx, driver)
	if err != nil || got == nil || got.ID != ride.ID {
		t.Errorf("driver ActiveRide() = %v, %v, want ride %s", got, err, ride.ID)
	}

	if _, err := svc.ActiveRide(ctx, admin); !errors.Is(err, apperrors.ErrNotAuthorized) {
		t.Errorf("admin ActiveRide() error = %v, want ErrNotAuthorized", err)
	}
}

func TestActiveRideNoneOpen(t *testing.T) {
	svc, _, _, _ := newTestDispatch(t)

	got, err := svc.ActiveRide(context.Background(), passenger)
	if err != nil {
		t.Fatalf("ActiveRide() error = %v", err)
	}
	if got != nil {
		t.Errorf("ActiveRide() = %v, want nil", got)
	}
}

func TestOpenRides(t *testing.T) {
	svc, _, _, _ := newTestDispatch(t)
	seedRide(t, svc, models.StateRequested)

	rides, err := svc.OpenRides(context.Background())
	if err != nil {
		t.Fatalf("OpenRides() error = %v", err)
	}
	if len(rides) != 1 {
		t.Errorf("OpenRides() = %d rides, want 1", len(rides))
	}
}

func TestSetDriverAvailability(t *testing.T) {
	svc, _, rc, _ := newTestDispatch(t)
	ctx := context.Background()

	if err := svc.SetDriverAvailability(ctx, driver, true); err != nil {
		t.Fatalf("SetDriverAvailability(online) error = %v", err)
	}
	if idle, _ := rc.IsIdle(ctx, driver.ID); !idle {
		t.Error("driver should be idle after going online")
	}

	if err := svc.SetDriverAvailability(ctx, driver, false); err != nil {
		t.Fatalf("SetDriverAvailability(offline) error = %v", err)
	}
	if idle, _ := rc.IsIdle(ctx, driver.ID); idle {
		t.Error("driver should not be idle after going offline")
	}

	if err := svc.SetDriverAvailability(ctx, passenger, true); !errors.Is(err, apperrors.ErrNotAuthorized) {
		t.Errorf("passenger online error = %v, want ErrNotAuthorized", err)
	}
}

func TestSetDriverAvailabilityWithActiveRide(t *testing.T) {
	svc, _, _, _ := newTestDispatch(t)
	seedRide(t, svc, models.StateInProgress)

	err := svc.SetDriverAvailability(context.Background(), driver, true)
	if !errors.Is(err, apperrors.ErrAlreadyActive) {
		t.Errorf("error = %v, want ErrAlreadyActive", err)
	}
}
