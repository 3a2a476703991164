package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/taxinsta/dispatch/internal/cache"
	apperrors "github.com/taxinsta/dispatch/internal/errors"
	"github.com/taxinsta/dispatch/internal/geocode"
	"github.com/taxinsta/dispatch/internal/models"
	"github.com/taxinsta/dispatch/internal/repository"
)

const defaultOperationTimeout = 5 * time.Second

// EventPublisher hands finished mutations to the fan-out.
type EventPublisher interface {
	Publish(ctx context.Context, ev *models.RideEvent) error
}

// DispatchService owns the ride lifecycle: request, claim, advance, cancel.
// Exclusivity under concurrent claims rests entirely on the store's
// conditional writes — this layer never holds a lock around a mutation.
type DispatchService interface {
	RequestRide(ctx context.Context, actor models.Actor, req *models.RequestRideRequest) (*models.Ride, error)
	ClaimRide(ctx context.Context, actor models.Actor, rideID string) (*models.Ride, error)
	AdvanceState(ctx context.Context, actor models.Actor, rideID, targetState string) (*models.Ride, error)
	CancelRide(ctx context.Context, actor models.Actor, rideID, reason string) (*models.Ride, error)
	GetRide(ctx context.Context, id string) (*models.Ride, error)
	ActiveRide(ctx context.Context, actor models.Actor) (*models.Ride, error)
	OpenRides(ctx context.Context) ([]*models.Ride, error)
	SetDriverAvailability(ctx context.Context, actor models.Actor, online bool) error
}

type dispatchService struct {
	rideRepo  repository.RideRepository
	rideCache cache.RideCache
	geocoder  geocode.Geocoder
	fares     FareEstimator
	publisher EventPublisher
	timeout   time.Duration
}

func NewDispatchService(
	rideRepo repository.RideRepository,
	rideCache cache.RideCache,
	geocoder geocode.Geocoder,
	fares FareEstimator,
	publisher EventPublisher,
	timeout time.Duration,
) DispatchService {
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return &dispatchService{
		rideRepo:  rideRepo,
		rideCache: rideCache,
		geocoder:  geocoder,
		fares:     fares,
		publisher: publisher,
		timeout:   timeout,
	}
}

func (s *dispatchService) RequestRide(ctx context.Context, actor models.Actor, req *models.RequestRideRequest) (*models.Ride, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch actor.Role {
	case models.RolePassenger:
	case models.RoleDriver, models.RoleAdmin:
		return nil, apperrors.ErrNotAuthorized
	default:
		return nil, apperrors.ErrNotAuthorized
	}

	// (0, 0) means the client never filled in the pickup. The service area
	// sits well away from the equator and the prime meridian, so a literal
	// zero coordinate is never a real location here.
	if req.Pickup.Lat == 0 && req.Pickup.Lng == 0 {
		return nil, apperrors.ErrValidation
	}

	// Fast path only. The store's conditional insert is what actually keeps
	// concurrent requests from creating a second active ride.
	active, err := s.rideRepo.GetActiveByPassengerID(ctx, actor.ID)
	if err != nil {
		return nil, translate(err)
	}
	if active != nil {
		return nil, apperrors.ErrAlreadyActive
	}

	ride := &models.Ride{
		PassengerID: actor.ID,
		PickupLat:   req.Pickup.Lat,
		PickupLng:   req.Pickup.Lng,
	}
	if req.Pickup.Address != "" {
		ride.PickupAddress = &req.Pickup.Address
	}

	// Dropoff is optional: coordinates if given, otherwise a best-effort
	// geocode of the free-text address. A miss leaves the ride pickup-only.
	switch {
	case req.Dropoff != nil:
		ride.DropoffLat = &req.Dropoff.Lat
		ride.DropoffLng = &req.Dropoff.Lng
		if req.Dropoff.Address != "" {
			ride.DropoffAddress = &req.Dropoff.Address
		}
	case req.DropoffAddress != "":
		ride.DropoffAddress = &req.DropoffAddress
		if loc, _ := s.geocoder.Lookup(ctx, req.DropoffAddress); loc != nil {
			ride.DropoffLat = &loc.Lat
			ride.DropoffLng = &loc.Lng
		}
	}

	if ride.DropoffLat != nil && ride.DropoffLng != nil {
		fare := s.fares.Estimate(ride.PickupLat, ride.PickupLng, *ride.DropoffLat, *ride.DropoffLng)
		ride.FareEstimate = &fare
	}

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		return nil, translate(err)
	}

	if idle, err := s.rideCache.IdleDrivers(ctx); err == nil && len(idle) == 0 {
		log.Printf("ride %s requested with no idle drivers online", ride.ID)
	}

	s.publish(ctx, models.NewRideEvent(models.EventRideRequested, ride))

	return ride, nil
}

func (s *dispatchService) ClaimRide(ctx context.Context, actor models.Actor, rideID string) (*models.Ride, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch actor.Role {
	case models.RoleDriver:
	case models.RolePassenger, models.RoleAdmin:
		return nil, apperrors.ErrNotAuthorized
	default:
		return nil, apperrors.ErrNotAuthorized
	}

	// Fast path only. The claim's busy-driver guard in the store is what
	// actually keeps a driver from winning two rides at once.
	active, err := s.rideRepo.GetActiveByDriverID(ctx, actor.ID)
	if err != nil {
		return nil, translate(err)
	}
	if active != nil {
		return nil, apperrors.ErrAlreadyActive
	}

	ride, err := s.rideRepo.Claim(ctx, rideID, actor.ID)
	if err != nil {
		return nil, translate(err)
	}
	if ride == nil {
		// The conditional write matched nothing: the ride is gone, another
		// driver won, or this driver picked up a ride since the check above.
		// Losing is a normal outcome, not a fault.
		existing, err := s.rideRepo.GetByID(ctx, rideID)
		if err != nil {
			return nil, translate(err)
		}
		if existing == nil {
			return nil, apperrors.ErrNotFound
		}
		if active, err := s.rideRepo.GetActiveByDriverID(ctx, actor.ID); err == nil && active != nil {
			return nil, apperrors.ErrAlreadyActive
		}
		return nil, apperrors.ErrClaimLost
	}

	if err := s.rideCache.MarkBusy(ctx, actor.ID); err != nil {
		log.Printf("failed to mark driver %s busy: %v", actor.ID, err)
	}

	s.publish(ctx, models.NewRideEvent(models.EventRideAssigned, ride))

	return ride, nil
}

func (s *dispatchService) AdvanceState(ctx context.Context, actor models.Actor, rideID, targetState string) (*models.Ride, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch actor.Role {
	case models.RoleDriver:
	case models.RolePassenger, models.RoleAdmin:
		return nil, apperrors.ErrNotAuthorized
	default:
		return nil, apperrors.ErrNotAuthorized
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, translate(err)
	}
	if ride == nil {
		return nil, apperrors.ErrNotFound
	}
	if ride.DriverID == nil || *ride.DriverID != actor.ID {
		return nil, apperrors.ErrNotAuthorized
	}

	// Cancellation has its own operation; every other transition must follow
	// the table exactly — no skipping intermediate states.
	if targetState == models.StateCancelled || !ride.CanTransitionTo(targetState) {
		return nil, apperrors.ErrIllegalTransition
	}

	change := repository.StateChange{
		ClearDriverLocation: targetState == models.StateCompleted,
	}
	updated, err := s.rideRepo.UpdateState(ctx, rideID, ride.State, targetState, change)
	if err != nil {
		return nil, translate(err)
	}
	if updated == nil {
		// The state moved under us between the read and the write.
		return nil, apperrors.ErrConflict
	}

	eventType := models.EventStateChanged
	if targetState == models.StateCompleted {
		eventType = models.EventRideCompleted
		if err := s.rideCache.MarkIdle(ctx, actor.ID); err != nil {
			log.Printf("failed to mark driver %s idle: %v", actor.ID, err)
		}
		if err := s.rideCache.ClearRideLocation(ctx, rideID); err != nil {
			log.Printf("failed to clear location for ride %s: %v", rideID, err)
		}
	}

	s.publish(ctx, models.NewRideEvent(eventType, updated))

	return updated, nil
}

func (s *dispatchService) CancelRide(ctx context.Context, actor models.Actor, rideID, reason string) (*models.Ride, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, translate(err)
	}
	if ride == nil {
		return nil, apperrors.ErrNotFound
	}
	if !ride.IsActive() {
		return nil, apperrors.ErrIllegalTransition
	}

	var cancelledBy string
	switch actor.Role {
	case models.RolePassenger:
		if ride.PassengerID != actor.ID {
			return nil, apperrors.ErrNotAuthorized
		}
		// Passengers can only bail out before the trip starts.
		if ride.State == models.StateInProgress {
			return nil, apperrors.ErrIllegalTransition
		}
		cancelledBy = models.CancelledByPassenger
	case models.RoleDriver:
		if ride.DriverID == nil || *ride.DriverID != actor.ID {
			return nil, apperrors.ErrNotAuthorized
		}
		cancelledBy = models.CancelledByDriver
	case models.RoleAdmin:
		cancelledBy = models.CancelledByAdmin
	default:
		return nil, apperrors.ErrNotAuthorized
	}

	change := repository.StateChange{
		CancelledBy:         &cancelledBy,
		ClearDriverLocation: true,
	}
	if reason != "" {
		change.CancellationReason = &reason
	}

	updated, err := s.rideRepo.UpdateState(ctx, rideID, ride.State, models.StateCancelled, change)
	if err != nil {
		return nil, translate(err)
	}
	if updated == nil {
		return nil, apperrors.ErrConflict
	}

	if updated.DriverID != nil {
		if err := s.rideCache.MarkIdle(ctx, *updated.DriverID); err != nil {
			log.Printf("failed to mark driver %s idle: %v", *updated.DriverID, err)
		}
		if err := s.rideCache.ClearRideLocation(ctx, rideID); err != nil {
			log.Printf("failed to clear location for ride %s: %v", rideID, err)
		}
	}

	s.publish(ctx, models.NewRideEvent(models.EventRideCancelled, updated))

	return updated, nil
}

func (s *dispatchService) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ride, err := s.rideRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if ride == nil {
		return nil, apperrors.ErrNotFound
	}
	return ride, nil
}

// ActiveRide is the authoritative pull path: clients poll it as the backstop
// behind the push feed.
func (s *dispatchService) ActiveRide(ctx context.Context, actor models.Actor) (*models.Ride, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch actor.Role {
	case models.RolePassenger:
		ride, err := s.rideRepo.GetActiveByPassengerID(ctx, actor.ID)
		return ride, translate(err)
	case models.RoleDriver:
		ride, err := s.rideRepo.GetActiveByDriverID(ctx, actor.ID)
		return ride, translate(err)
	case models.RoleAdmin:
		return nil, apperrors.ErrNotAuthorized
	default:
		return nil, apperrors.ErrNotAuthorized
	}
}

// OpenRides lists the unclaimed pool, for drivers (re)connecting after the
// broadcast already went out.
func (s *dispatchService) OpenRides(ctx context.Context) ([]*models.Ride, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rides, err := s.rideRepo.ListRequested(ctx)
	return rides, translate(err)
}

func (s *dispatchService) SetDriverAvailability(ctx context.Context, actor models.Actor, online bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if actor.Role != models.RoleDriver {
		return apperrors.ErrNotAuthorized
	}

	if !online {
		return translate(s.rideCache.MarkBusy(ctx, actor.ID))
	}

	// A driver with an active ride cannot rejoin the offer pool.
	active, err := s.rideRepo.GetActiveByDriverID(ctx, actor.ID)
	if err != nil {
		return translate(err)
	}
	if active != nil {
		return apperrors.ErrAlreadyActive
	}

	return translate(s.rideCache.MarkIdle(ctx, actor.ID))
}

// publish is best-effort: the store already committed, and clients have the
// pull API as the consistency backstop.
func (s *dispatchService) publish(ctx context.Context, ev *models.RideEvent) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("failed to publish %s for ride %s: %v", ev.Type, ev.RideID, err)
	}
}

// translate maps transport-level failures into the taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.ErrTimeout
	default:
		return err
	}
}
