package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/taxinsta/dispatch/internal/cache"
	"github.com/taxinsta/dispatch/internal/config"
	"github.com/taxinsta/dispatch/internal/database"
	"github.com/taxinsta/dispatch/internal/geocode"
	"github.com/taxinsta/dispatch/internal/handler"
	"github.com/taxinsta/dispatch/internal/hub"
	"github.com/taxinsta/dispatch/internal/middleware"
	"github.com/taxinsta/dispatch/internal/repository"
	"github.com/taxinsta/dispatch/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize New Relic (optional)
	var nrApp *newrelic.Application
	if cfg.NewRelicEnabled && cfg.NewRelicLicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelicAppName),
			newrelic.ConfigLicense(cfg.NewRelicLicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
			newrelic.ConfigInfoLogger(os.Stdout),
		)
		if err != nil {
			log.Printf("Warning: Failed to initialize New Relic: %v", err)
		} else if err := nrApp.WaitForConnection(10 * time.Second); err != nil {
			log.Printf("Warning: New Relic connection timeout: %v", err)
		}
	}

	// Initialize PostgreSQL
	db, err := database.NewPostgres(
		cfg.DatabaseURL,
		cfg.DBMaxConnections,
		cfg.DBMaxIdleConnections,
	)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	// Initialize Redis
	redis, err := database.NewRedis(cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()
	log.Println("Connected to Redis")

	// Geocoder collaborator (disabled without an API key)
	geocoder, err := geocode.New(cfg.GoogleMapsAPIKey)
	if err != nil {
		log.Fatalf("Failed to create geocoder: %v", err)
	}

	// Initialize repositories and caches
	rideRepo := repository.NewRideRepository(db.DB)
	profileRepo := repository.NewProfileRepository(db.DB)
	rideCache := cache.NewRideCache(redis.Client, cfg.LocationTTL)

	// Fan-out hub: events flow through redis pub/sub so every instance
	// routes the same stream to its own connections.
	eventHub := hub.New(redis.Client)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go eventHub.Run(hubCtx)

	// Initialize services
	fares := service.NewFareEstimator()
	dispatchService := service.NewDispatchService(rideRepo, rideCache, geocoder, fares, eventHub, cfg.OperationTimeout)
	locationService := service.NewLocationService(rideRepo, rideCache, eventHub, cfg.OperationTimeout)

	// Initialize handlers
	rideHandler := handler.NewRideHandler(dispatchService)
	driverHandler := handler.NewDriverHandler(dispatchService, locationService, eventHub)
	profileHandler := handler.NewProfileHandler(profileRepo)
	streamHandler := handler.NewStreamHandler(eventHub, dispatchService, cfg.StreamHeartbeat)
	geocodeHandler := handler.NewGeocodeHandler(geocoder)

	// Create router
	r := chi.NewRouter()

	// Apply middleware
	r.Use(middleware.Recovery)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-User-ID"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// New Relic middleware
	if nrApp != nil {
		r.Use(middleware.NewRelicMiddleware(nrApp))
	}

	// Rate limiter
	rateLimiter := middleware.NewRateLimiter(redis.Client, cfg.RateLimitRequests, cfg.RateLimitWindow)
	r.Use(rateLimiter.Handler)

	// Idempotency middleware
	idempotencyMw := middleware.NewIdempotencyMiddleware(redis.Client)
	r.Use(idempotencyMw.Handler)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if err := db.Health(ctx); err != nil {
			http.Error(w, "database unhealthy", http.StatusServiceUnavailable)
			return
		}
		if err := redis.Health(ctx); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","services":{"database":"up","redis":"up"}}`))
	})

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Open endpoints: profile bootstrap and geocoding
		profileHandler.RegisterRoutes(r)
		geocodeHandler.RegisterRoutes(r)

		// Everything else requires an authenticated actor
		r.Group(func(r chi.Router) {
			r.Use(middleware.Actor(profileRepo))
			rideHandler.RegisterRoutes(r)
			driverHandler.RegisterRoutes(r)
			streamHandler.RegisterRoutes(r)
			profileHandler.RegisterAdminRoutes(r)
		})
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		stopHub()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	log.Printf("Dispatch server starting on port %s", cfg.Port)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped gracefully")
}
