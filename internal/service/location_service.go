package service

import (
	"context"
	"log"
	"time"

	"github.com/taxinsta/dispatch/internal/cache"
	apperrors "github.com/taxinsta/dispatch/internal/errors"
	"github.com/taxinsta/dispatch/internal/models"
	"github.com/taxinsta/dispatch/internal/repository"
)

// LocationService relays driver position reports to the passenger. Reports
// are high-frequency and fire-and-forget: the conditional write both
// authorizes and applies them, last write wins, and fan-out failures never
// bounce back to the driver.
type LocationService interface {
	ReportLocation(ctx context.Context, actor models.Actor, rideID string, req *models.ReportLocationRequest) (*models.Ride, error)
	LastKnownLocation(ctx context.Context, actor models.Actor, rideID string) (*cache.DriverLocation, error)
}

type locationService struct {
	rideRepo  repository.RideRepository
	rideCache cache.RideCache
	publisher EventPublisher
	timeout   time.Duration
}

func NewLocationService(
	rideRepo repository.RideRepository,
	rideCache cache.RideCache,
	publisher EventPublisher,
	timeout time.Duration,
) LocationService {
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return &locationService{
		rideRepo:  rideRepo,
		rideCache: rideCache,
		publisher: publisher,
		timeout:   timeout,
	}
}

func (s *locationService) ReportLocation(ctx context.Context, actor models.Actor, rideID string, req *models.ReportLocationRequest) (*models.Ride, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if actor.Role != models.RoleDriver {
		return nil, apperrors.ErrNotAuthorized
	}

	ride, err := s.rideRepo.UpdateDriverLocation(ctx, rideID, actor.ID, req.Lat, req.Lng)
	if err != nil {
		return nil, translate(err)
	}
	if ride == nil {
		// No row matched: the ride is gone, belongs to another driver, or is
		// not in a trackable state.
		existing, err := s.rideRepo.GetByID(ctx, rideID)
		if err != nil {
			return nil, translate(err)
		}
		if existing == nil {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.ErrNotAuthorized
	}

	if err := s.rideCache.SetRideLocation(ctx, rideID, req.Lat, req.Lng); err != nil {
		log.Printf("failed to cache location for ride %s: %v", rideID, err)
	}

	ev := models.NewRideEvent(models.EventLocationUpdate, ride)
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("failed to publish location for ride %s: %v", rideID, err)
	}

	return ride, nil
}

// LastKnownLocation serves the poll path from the cache when fresh, falling
// back to the ride row.
func (s *locationService) LastKnownLocation(ctx context.Context, actor models.Actor, rideID string) (*cache.DriverLocation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, translate(err)
	}
	if ride == nil {
		return nil, apperrors.ErrNotFound
	}

	authorized := ride.PassengerID == actor.ID ||
		(ride.DriverID != nil && *ride.DriverID == actor.ID) ||
		actor.Role == models.RoleAdmin
	if !authorized {
		return nil, apperrors.ErrNotAuthorized
	}

	if loc, err := s.rideCache.GetRideLocation(ctx, rideID); err == nil && loc != nil {
		return loc, nil
	}

	if ride.DriverLat == nil || ride.DriverLng == nil {
		return nil, nil
	}
	loc := &cache.DriverLocation{
		Lat: *ride.DriverLat,
		Lng: *ride.DriverLng,
	}
	if ride.DriverLocationAt != nil {
		loc.UpdatedAt = ride.DriverLocationAt.Unix()
	}
	return loc, nil
}
