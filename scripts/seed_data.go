//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/taxinsta/dispatch/internal/cache"
	"github.com/taxinsta/dispatch/internal/config"
	"github.com/taxinsta/dispatch/internal/database"
	"github.com/taxinsta/dispatch/internal/models"
	"github.com/taxinsta/dispatch/internal/repository"
)

// Caracas area coordinates
const (
	baseLat = 9.2132
	baseLng = -66.0125
)

var (
	firstNames = []string{"Maria", "Jose", "Luis", "Carmen", "Pedro", "Ana", "Carlos", "Rosa", "Miguel", "Elena",
		"Juan", "Sofia", "Diego", "Lucia", "Andres", "Valeria", "Rafael", "Isabel", "Hector", "Paula"}
	lastNames = []string{"Garcia", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez", "Perez", "Sanchez", "Ramirez", "Torres"}
)

func main() {
	rand.Seed(time.Now().UnixNano())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.DatabaseURL, cfg.DBMaxConnections, cfg.DBMaxIdleConnections)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	redis, err := database.NewRedis(cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	ctx := context.Background()

	profileRepo := repository.NewProfileRepository(db.DB)
	rideRepo := repository.NewRideRepository(db.DB)
	rideCache := cache.NewRideCache(redis.Client, cfg.LocationTTL)

	// Create passengers
	log.Println("Creating 30 passengers...")
	passengerIDs := make([]string, 0)
	for i := 0; i < 30; i++ {
		phone := fmt.Sprintf("0414%07d", rand.Intn(10000000))
		profile := &models.Profile{
			DisplayName: fmt.Sprintf("%s %s", firstNames[rand.Intn(len(firstNames))], lastNames[rand.Intn(len(lastNames))]),
			Phone:       &phone,
			Role:        models.RolePassenger,
		}

		if err := profileRepo.Create(ctx, profile); err != nil {
			log.Printf("Failed to create passenger: %v", err)
			continue
		}
		passengerIDs = append(passengerIDs, profile.ID)
	}
	log.Printf("Created %d passengers", len(passengerIDs))

	// Create drivers, half of them idle in the pool
	log.Println("Creating 20 drivers...")
	driverIDs := make([]string, 0)
	for i := 0; i < 20; i++ {
		phone := fmt.Sprintf("0424%07d", rand.Intn(10000000))
		profile := &models.Profile{
			DisplayName: fmt.Sprintf("%s %s", firstNames[rand.Intn(len(firstNames))], lastNames[rand.Intn(len(lastNames))]),
			Phone:       &phone,
			Role:        models.RoleDriver,
		}

		if err := profileRepo.Create(ctx, profile); err != nil {
			log.Printf("Failed to create driver: %v", err)
			continue
		}
		driverIDs = append(driverIDs, profile.ID)

		if rand.Float64() > 0.5 {
			rideCache.MarkIdle(ctx, profile.ID)
		}
	}
	log.Printf("Created %d drivers", len(driverIDs))

	// Create a handful of open ride requests around the base point
	log.Println("Creating 10 open ride requests...")
	rideIDs := make([]string, 0)
	for i := 0; i < 10; i++ {
		lat := baseLat + (rand.Float64()-0.5)*0.1 // +/- 0.05 degrees (~5km)
		lng := baseLng + (rand.Float64()-0.5)*0.1
		addr := fmt.Sprintf("Calle %d, Sector %d", rand.Intn(50)+1, rand.Intn(9)+1)

		// Distinct passengers: the store refuses a second open ride per
		// passenger.
		ride := &models.Ride{
			PassengerID:   passengerIDs[i],
			PickupLat:     lat,
			PickupLng:     lng,
			PickupAddress: &addr,
			State:         models.StateRequested,
		}

		if err := rideRepo.Create(ctx, ride); err != nil {
			log.Printf("Failed to create ride: %v", err)
			continue
		}
		rideIDs = append(rideIDs, ride.ID)
	}
	log.Printf("Created %d ride requests", len(rideIDs))

	// Summary
	log.Println("\n=== Seed Data Summary ===")
	log.Printf("Passengers created: %d", len(passengerIDs))
	log.Printf("Drivers created: %d", len(driverIDs))
	log.Printf("Open rides created: %d", len(rideIDs))
	log.Println("\nSample Passenger ID:", passengerIDs[0])
	log.Println("Sample Driver ID:", driverIDs[0])
	log.Println("Sample Ride ID:", rideIDs[0])
	log.Println("\nYou can now test with these IDs!")
}
