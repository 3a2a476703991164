package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idleDriversKey     = "drivers:idle"
	rideLocationPrefix = "ride:location:"
	defaultLocationTTL = 5 * time.Minute
)

// DriverLocation is the last position reported for a ride's driver. It is a
// read-side convenience only; the rides table stays authoritative.
type DriverLocation struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	UpdatedAt int64   `json:"updated_at"`
}

// RideCache keeps advisory dispatch state in redis: the idle-driver pool for
// offer broadcasts and the freshest driver position per ride. Nothing here is
// treated as authoritative.
type RideCache interface {
	MarkIdle(ctx context.Context, driverID string) error
	MarkBusy(ctx context.Context, driverID string) error
	IsIdle(ctx context.Context, driverID string) (bool, error)
	IdleDrivers(ctx context.Context) ([]string, error)
	SetRideLocation(ctx context.Context, rideID string, lat, lng float64) error
	GetRideLocation(ctx context.Context, rideID string) (*DriverLocation, error)
	ClearRideLocation(ctx context.Context, rideID string) error
}

type rideCache struct {
	redis       *redis.Client
	locationTTL time.Duration
}

func NewRideCache(redisClient *redis.Client, locationTTL time.Duration) RideCache {
	if locationTTL <= 0 {
		locationTTL = defaultLocationTTL
	}
	return &rideCache{redis: redisClient, locationTTL: locationTTL}
}

func (c *rideCache) MarkIdle(ctx context.Context, driverID string) error {
	return c.redis.SAdd(ctx, idleDriversKey, driverID).Err()
}

func (c *rideCache) MarkBusy(ctx context.Context, driverID string) error {
	return c.redis.SRem(ctx, idleDriversKey, driverID).Err()
}

func (c *rideCache) IsIdle(ctx context.Context, driverID string) (bool, error) {
	return c.redis.SIsMember(ctx, idleDriversKey, driverID).Result()
}

func (c *rideCache) IdleDrivers(ctx context.Context) ([]string, error) {
	return c.redis.SMembers(ctx, idleDriversKey).Result()
}

func (c *rideCache) SetRideLocation(ctx context.Context, rideID string, lat, lng float64) error {
	loc := DriverLocation{
		Lat:       lat,
		Lng:       lng,
		UpdatedAt: time.Now().Unix(),
	}

	locJSON, err := json.Marshal(loc)
	if err != nil {
		return err
	}

	return c.redis.Set(ctx, rideLocationPrefix+rideID, locJSON, c.locationTTL).Err()
}

func (c *rideCache) GetRideLocation(ctx context.Context, rideID string) (*DriverLocation, error) {
	data, err := c.redis.Get(ctx, rideLocationPrefix+rideID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var loc DriverLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, err
	}

	return &loc, nil
}

func (c *rideCache) ClearRideLocation(ctx context.Context, rideID string) error {
	return c.redis.Del(ctx, rideLocationPrefix+rideID).Err()
}
