package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	apperrors "github.com/taxinsta/dispatch/internal/errors"
	"github.com/taxinsta/dispatch/internal/models"
	"github.com/taxinsta/dispatch/pkg/utils"
)

// StateChange carries the optional fields applied together with a state
// transition. All of it lands in a single conditional UPDATE.
type StateChange struct {
	CancelledBy         *string
	CancellationReason  *string
	ClearDriverLocation bool
}

// RideRepository is the single source of truth for rides. Every mutation is
// a conditional write: the UPDATE only matches when the stored state equals
// the expected one, so concurrent writers are serialized by the database and
// never by in-process locks.
type RideRepository interface {
	Create(ctx context.Context, ride *models.Ride) error
	GetByID(ctx context.Context, id string) (*models.Ride, error)
	GetActiveByPassengerID(ctx context.Context, passengerID string) (*models.Ride, error)
	GetActiveByDriverID(ctx context.Context, driverID string) (*models.Ride, error)
	ListRequested(ctx context.Context) ([]*models.Ride, error)
	Claim(ctx context.Context, rideID, driverID string) (*models.Ride, error)
	UpdateState(ctx context.Context, id, expected, next string, change StateChange) (*models.Ride, error)
	UpdateDriverLocation(ctx context.Context, rideID, driverID string, lat, lng float64) (*models.Ride, error)
}

type rideRepository struct {
	db *sqlx.DB
}

func NewRideRepository(db *sqlx.DB) RideRepository {
	return &rideRepository{db: db}
}

// Create inserts a new requested ride. The NOT EXISTS guard makes the
// insert conditional on the passenger having no other non-terminal ride, so
// two concurrent requests from the same passenger cannot both land. A zero
// row count means the guard fired and the caller gets ErrAlreadyActive.
func (r *rideRepository) Create(ctx context.Context, ride *models.Ride) error {
	if ride.ID == "" {
		ride.ID = utils.GenerateID()
	}
	ride.CreatedAt = time.Now()
	ride.UpdatedAt = ride.CreatedAt
	ride.State = models.StateRequested

	query := `
		INSERT INTO rides (id, passenger_id, pickup_lat, pickup_lng, pickup_address,
			dropoff_lat, dropoff_lng, dropoff_address, fare_estimate, state,
			created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		WHERE NOT EXISTS (
			SELECT 1 FROM rides
			WHERE passenger_id = $2 AND state NOT IN ($13, $14)
		)
	`
	res, err := r.db.ExecContext(ctx, query,
		ride.ID, ride.PassengerID, ride.PickupLat, ride.PickupLng, ride.PickupAddress,
		ride.DropoffLat, ride.DropoffLng, ride.DropoffAddress, ride.FareEstimate, ride.State,
		ride.CreatedAt, ride.UpdatedAt,
		models.StateCompleted, models.StateCancelled)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperrors.ErrAlreadyActive
	}
	return nil
}

func (r *rideRepository) GetByID(ctx context.Context, id string) (*models.Ride, error) {
	var ride models.Ride
	query := `SELECT * FROM rides WHERE id = $1`
	err := r.db.GetContext(ctx, &ride, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &ride, err
}

func (r *rideRepository) GetActiveByPassengerID(ctx context.Context, passengerID string) (*models.Ride, error) {
	var ride models.Ride
	query := `
		SELECT * FROM rides
		WHERE passenger_id = $1 AND state NOT IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &ride, query, passengerID, models.StateCompleted, models.StateCancelled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &ride, err
}

func (r *rideRepository) GetActiveByDriverID(ctx context.Context, driverID string) (*models.Ride, error) {
	var ride models.Ride
	query := `
		SELECT * FROM rides
		WHERE driver_id = $1 AND state NOT IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &ride, query, driverID, models.StateCompleted, models.StateCancelled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &ride, err
}

// ListRequested returns the open pool of unclaimed rides, oldest first.
func (r *rideRepository) ListRequested(ctx context.Context) ([]*models.Ride, error) {
	var rides []*models.Ride
	query := `
		SELECT * FROM rides
		WHERE state = $1
		ORDER BY created_at ASC
	`
	err := r.db.SelectContext(ctx, &rides, query, models.StateRequested)
	return rides, err
}

// Claim atomically assigns a driver to a requested ride. The driver_id IS
// NULL guard makes exactly one of any number of concurrent claims match,
// and the NOT EXISTS guard refuses the claim while the driver still has a
// non-terminal ride of their own. Every loser gets nil, nil.
func (r *rideRepository) Claim(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	var ride models.Ride
	query := `
		UPDATE rides
		SET state = $3, driver_id = $2, updated_at = $4
		WHERE id = $1 AND state = $5 AND driver_id IS NULL
			AND NOT EXISTS (
				SELECT 1 FROM rides busy
				WHERE busy.driver_id = $2 AND busy.state NOT IN ($6, $7)
			)
		RETURNING *
	`
	err := r.db.GetContext(ctx, &ride, query,
		rideID, driverID, models.StateAssigned, time.Now(), models.StateRequested,
		models.StateCompleted, models.StateCancelled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &ride, err
}

// UpdateState applies a lifecycle transition as a compare-and-swap on the
// state column. nil, nil means the stored state no longer matched expected
// (or the ride does not exist); the caller disambiguates with GetByID.
func (r *rideRepository) UpdateState(ctx context.Context, id, expected, next string, change StateChange) (*models.Ride, error) {
	var ride models.Ride
	query := `
		UPDATE rides
		SET state = $3,
			cancelled_by = COALESCE($4, cancelled_by),
			cancellation_reason = COALESCE($5, cancellation_reason),
			driver_lat = CASE WHEN $6 THEN NULL ELSE driver_lat END,
			driver_lng = CASE WHEN $6 THEN NULL ELSE driver_lng END,
			driver_location_at = CASE WHEN $6 THEN NULL ELSE driver_location_at END,
			updated_at = $7
		WHERE id = $1 AND state = $2
		RETURNING *
	`
	err := r.db.GetContext(ctx, &ride, query,
		id, expected, next,
		change.CancelledBy, change.CancellationReason, change.ClearDriverLocation,
		time.Now())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &ride, err
}

// UpdateDriverLocation writes a position report. Authorization (right driver,
// trackable state) is part of the WHERE clause, so a stale or foreign report
// simply matches no row. Last write wins.
func (r *rideRepository) UpdateDriverLocation(ctx context.Context, rideID, driverID string, lat, lng float64) (*models.Ride, error) {
	var ride models.Ride
	query := `
		UPDATE rides
		SET driver_lat = $3, driver_lng = $4, driver_location_at = $5, updated_at = $5
		WHERE id = $1 AND driver_id = $2 AND state IN ($6, $7, $8)
		RETURNING *
	`
	err := r.db.GetContext(ctx, &ride, query,
		rideID, driverID, lat, lng, time.Now(),
		models.StateAssigned, models.StateArrivedAtPickup, models.StateInProgress)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &ride, err
}
