//go:build ignore

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	baseURL = "http://localhost:8080"
	baseLat = 9.2132
	baseLng = -66.0125
)

type Stats struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalLatency    int64
	MinLatency      int64
	MaxLatency      int64
}

func main() {
	rand.Seed(time.Now().UnixNano())

	fmt.Println("TaxiInsta Dispatch Load Test")
	fmt.Println("============================")

	fmt.Println("\n1. Creating test profiles...")
	passengerIDs, driverIDs := createTestProfiles()

	if len(passengerIDs) == 0 || len(driverIDs) == 0 {
		log.Fatal("Failed to create test profiles")
	}

	fmt.Printf("Created %d passengers and %d drivers\n", len(passengerIDs), len(driverIDs))

	fmt.Println("\n2. Testing Ride Requests (100 rides, 10 concurrent)...")
	stats, rideIDs := testRideRequests(passengerIDs, 100, 10)
	printStats("Ride Requests", stats)

	fmt.Println("\n3. Testing Claim Contention (every driver races for every open ride)...")
	stats = testClaimContention(driverIDs, rideIDs)
	printStats("Claims", stats)

	fmt.Println("\n4. Testing Location Updates (1000 updates, 50 concurrent)...")
	stats = testLocationUpdates(driverIDs, rideIDs, 1000, 50)
	printStats("Location Updates", stats)

	fmt.Println("\nLoad test completed!")
}

func createTestProfiles() ([]string, []string) {
	passengerIDs := make([]string, 0)
	driverIDs := make([]string, 0)

	for i := 0; i < 20; i++ {
		body, _ := json.Marshal(map[string]string{
			"display_name": fmt.Sprintf("LoadTest Passenger %d", i),
			"phone":        fmt.Sprintf("0414%07d", rand.Intn(10000000)),
			"role":         "passenger",
		})
		resp, err := http.Post(baseURL+"/v1/profiles", "application/json", bytes.NewBuffer(body))
		if err != nil {
			continue
		}
		if id := extractID(resp); id != "" {
			passengerIDs = append(passengerIDs, id)
		}
	}

	for i := 0; i < 20; i++ {
		body, _ := json.Marshal(map[string]string{
			"display_name": fmt.Sprintf("LoadTest Driver %d", i),
			"phone":        fmt.Sprintf("0424%07d", rand.Intn(10000000)),
			"role":         "driver",
		})
		resp, err := http.Post(baseURL+"/v1/profiles", "application/json", bytes.NewBuffer(body))
		if err != nil {
			continue
		}
		if id := extractID(resp); id != "" {
			driverIDs = append(driverIDs, id)
		}
	}

	// Put every driver in the idle pool
	for _, id := range driverIDs {
		doPost("/v1/drivers/online", id, nil)
	}

	return passengerIDs, driverIDs
}

func testRideRequests(passengerIDs []string, total, concurrency int) (*Stats, []string) {
	stats := &Stats{MinLatency: int64(^uint64(0) >> 1)}
	rideIDs := make([]string, 0, total)

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			passengerID := passengerIDs[rand.Intn(len(passengerIDs))]
			payload := map[string]interface{}{
				"pickup": map[string]interface{}{
					"lat":     baseLat + (rand.Float64()-0.5)*0.1,
					"lng":     baseLng + (rand.Float64()-0.5)*0.1,
					"address": fmt.Sprintf("Calle %d", rand.Intn(100)),
				},
			}

			start := time.Now()
			resp, err := doPost("/v1/rides", passengerID, payload)
			// Reusing a passenger with an open ride draws a 409, which is
			// the store doing its job rather than a failure.
			ok := err == nil && resp != nil &&
				(resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusConflict)
			recordLatency(stats, start, ok)

			if err == nil && resp != nil {
				if id := extractID(resp); id != "" {
					mu.Lock()
					rideIDs = append(rideIDs, id)
					mu.Unlock()
				}
			}
		}()
	}

	wg.Wait()
	return stats, rideIDs
}

func testClaimContention(driverIDs, rideIDs []string) *Stats {
	stats := &Stats{MinLatency: int64(^uint64(0) >> 1)}

	var wg sync.WaitGroup
	for _, rideID := range rideIDs {
		for _, driverID := range driverIDs {
			wg.Add(1)
			go func(rideID, driverID string) {
				defer wg.Done()

				start := time.Now()
				resp, err := doPost("/v1/rides/"+rideID+"/claim", driverID, nil)
				// 409s are the expected outcome for all but one racer
				ok := err == nil && resp != nil &&
					(resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusConflict)
				recordLatency(stats, start, ok)
			}(rideID, driverID)
		}
	}

	wg.Wait()
	return stats
}

func testLocationUpdates(driverIDs, rideIDs []string, total, concurrency int) *Stats {
	stats := &Stats{MinLatency: int64(^uint64(0) >> 1)}

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			driverID := driverIDs[rand.Intn(len(driverIDs))]
			rideID := rideIDs[rand.Intn(len(rideIDs))]
			payload := map[string]interface{}{
				"lat": baseLat + (rand.Float64()-0.5)*0.1,
				"lng": baseLng + (rand.Float64()-0.5)*0.1,
			}

			start := time.Now()
			resp, err := doPost("/v1/rides/"+rideID+"/location", driverID, payload)
			// Mismatched driver/ride pairs come back 403; that still exercises the path
			ok := err == nil && resp != nil && resp.StatusCode < http.StatusInternalServerError
			recordLatency(stats, start, ok)
		}()
	}

	wg.Wait()
	return stats
}

func doPost(path, userID string, payload interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBuffer(b)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func extractID(resp *http.Response) string {
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &payload); err != nil {
		return ""
	}
	return payload.ID
}

func recordLatency(stats *Stats, start time.Time, ok bool) {
	latency := time.Since(start).Microseconds()

	atomic.AddInt64(&stats.TotalRequests, 1)
	atomic.AddInt64(&stats.TotalLatency, latency)

	if ok {
		atomic.AddInt64(&stats.SuccessRequests, 1)
	} else {
		atomic.AddInt64(&stats.FailedRequests, 1)
	}

	for {
		min := atomic.LoadInt64(&stats.MinLatency)
		if latency >= min || atomic.CompareAndSwapInt64(&stats.MinLatency, min, latency) {
			break
		}
	}
	for {
		max := atomic.LoadInt64(&stats.MaxLatency)
		if latency <= max || atomic.CompareAndSwapInt64(&stats.MaxLatency, max, latency) {
			break
		}
	}
}

func printStats(name string, stats *Stats) {
	total := atomic.LoadInt64(&stats.TotalRequests)
	if total == 0 {
		fmt.Printf("%s: no requests recorded\n", name)
		return
	}

	avgLatency := atomic.LoadInt64(&stats.TotalLatency) / total

	fmt.Printf("%s Results:\n", name)
	fmt.Printf("  Total:      %d\n", total)
	fmt.Printf("  Success:    %d (%.1f%%)\n", stats.SuccessRequests, float64(stats.SuccessRequests)/float64(total)*100)
	fmt.Printf("  Failed:     %d\n", stats.FailedRequests)
	fmt.Printf("  Avg Latency: %.2fms\n", float64(avgLatency)/1000)
	fmt.Printf("  Min Latency: %.2fms\n", float64(stats.MinLatency)/1000)
	fmt.Printf("  Max Latency: %.2fms\n", float64(stats.MaxLatency)/1000)
}
