package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/taxinsta/dispatch/internal/models"
)

const (
	eventsChannel = "rides:events"
	subBuffer     = 16
)

// Subscription is a connected client's interest in ride events. It lives only
// in memory and dies with the connection.
type Subscription struct {
	UserID string
	Role   models.Role
	Events chan *models.RideEvent
}

// Hub routes ride events to connected clients: the ride's passenger, the
// ride's driver, and — only while a ride is still requested — every idle
// driver. Events travel through redis pub/sub so every process routes the
// same stream to its own connections.
type Hub struct {
	mu    sync.RWMutex
	subs  map[string]*Subscription
	idle  map[string]bool
	redis *redis.Client
}

// New creates a hub. A nil redis client keeps routing in-process, which is
// what the tests use.
func New(redisClient *redis.Client) *Hub {
	return &Hub{
		subs:  make(map[string]*Subscription),
		idle:  make(map[string]bool),
		redis: redisClient,
	}
}

// Run consumes the shared event channel until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.redis == nil {
		return
	}

	pubsub := h.redis.Subscribe(ctx, eventsChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev models.RideEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("hub: dropping malformed event: %v", err)
				continue
			}
			h.Route(&ev)
		}
	}
}

// Publish puts an event on the shared channel. Without redis it routes
// directly to local subscribers.
func (h *Hub) Publish(ctx context.Context, ev *models.RideEvent) error {
	if h.redis == nil {
		h.Route(ev)
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, eventsChannel, data).Err()
}

// Subscribe registers a client. A reconnect for the same user replaces the
// previous subscription.
func (h *Hub) Subscribe(userID string, role models.Role) *Subscription {
	sub := &Subscription{
		UserID: userID,
		Role:   role,
		Events: make(chan *models.RideEvent, subBuffer),
	}

	h.mu.Lock()
	if old, ok := h.subs[userID]; ok {
		close(old.Events)
	}
	h.subs[userID] = sub
	h.mu.Unlock()

	return sub
}

// Unsubscribe removes a client. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.subs[sub.UserID]; ok && current == sub {
		delete(h.subs, sub.UserID)
		close(sub.Events)
	}
}

// SetIdle flags a driver as eligible (or not) for pending-ride offers. The
// flag is advisory; the store remains the authority on who is busy.
func (h *Hub) SetIdle(driverID string, idle bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if idle {
		h.idle[driverID] = true
	} else {
		delete(h.idle, driverID)
	}
}

// Route delivers one event to every subscriber it concerns. Delivery is
// non-blocking, so holding the lock through it is cheap and keeps sends from
// racing a close on reconnect.
func (h *Hub) Route(ev *models.RideEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Assignment and terminal events flip the advisory idle flags before
	// routing, so the pool for this very event is already correct.
	switch ev.Type {
	case models.EventRideAssigned:
		delete(h.idle, ev.DriverID)
	case models.EventRideCompleted, models.EventRideCancelled:
		if ev.DriverID != "" {
			if _, connected := h.subs[ev.DriverID]; connected {
				h.idle[ev.DriverID] = true
			}
		}
	}

	passenger := h.subs[ev.PassengerID]
	var driver *Subscription
	if ev.DriverID != "" {
		driver = h.subs[ev.DriverID]
	}

	var pool []*Subscription
	poolEvent := ev
	switch {
	case ev.State == models.StateRequested:
		// Open offer: broadcast to every idle driver.
		pool = h.idlePoolLocked(ev.DriverID)
	case ev.Type == models.EventRideAssigned,
		ev.Type == models.EventRideCancelled && ev.DriverID == "":
		// The ride just left requested: withdraw the offer from everyone
		// who might still be looking at it.
		withdrawn := *ev
		withdrawn.Type = models.EventOfferWithdrawn
		poolEvent = &withdrawn
		pool = h.idlePoolLocked(ev.DriverID)
	}

	if passenger != nil {
		deliver(passenger, ev)
	}
	if driver != nil && driver != passenger {
		deliver(driver, ev)
	}
	for _, sub := range pool {
		if sub == passenger || sub == driver {
			continue
		}
		deliver(sub, poolEvent)
	}
}

// idlePoolLocked snapshots the connected idle drivers, minus the one named.
func (h *Hub) idlePoolLocked(exceptDriverID string) []*Subscription {
	pool := make([]*Subscription, 0, len(h.idle))
	for driverID := range h.idle {
		if driverID == exceptDriverID {
			continue
		}
		if sub, ok := h.subs[driverID]; ok && sub.Role == models.RoleDriver {
			pool = append(pool, sub)
		}
	}
	return pool
}

// deliver never blocks; a slow consumer just misses the event and catches up
// via the pull API.
func deliver(sub *Subscription, ev *models.RideEvent) {
	select {
	case sub.Events <- ev:
	default:
	}
}
