// Package notify fans out user-facing notifications to connected clients.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akabaki/saas-ui/internal/models"
)

// DefaultCapacity is the number of recent notifications kept for late readers.
const DefaultCapacity = 50

// Hub keeps a bounded list of recent notifications and delivers new ones
// to subscribers. Delivery never blocks; a full subscriber misses the message.
type Hub struct {
	mu       sync.RWMutex
	recent   []models.Notification
	capacity int
	subs     map[uint64]chan models.Notification
	nextSub  uint64
	now      func() time.Time
}

// NewHub creates a hub that remembers up to capacity notifications.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		recent:   make([]models.Notification, 0, capacity),
		capacity: capacity,
		subs:     make(map[uint64]chan models.Notification),
		now:      time.Now,
	}
}

// Publish assigns an id and timestamp to n, records it and delivers it.
func (h *Hub) Publish(n models.Notification) models.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = h.now()
	}

	if len(h.recent) == h.capacity {
		copy(h.recent, h.recent[1:])
		h.recent = h.recent[:h.capacity-1]
	}
	h.recent = append(h.recent, n)

	for _, ch := range h.subs {
		select {
		case ch <- n:
		default:
		}
	}
	return n
}

// Notify is shorthand for publishing a notification built from its parts.
func (h *Hub) Notify(level models.NotificationLevel, title, description string, duration time.Duration) models.Notification {
	return h.Publish(models.Notification{
		Level:       level,
		Title:       title,
		Description: description,
		DurationMs:  duration.Milliseconds(),
	})
}

// Subscribe returns a channel receiving every notification published from now on,
// and a cancel func that closes it.
func (h *Hub) Subscribe(buffer int) (<-chan models.Notification, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan models.Notification, buffer)

	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Recent returns a copy of the remembered notifications, oldest first.
func (h *Hub) Recent() []models.Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]models.Notification, len(h.recent))
	copy(out, h.recent)
	return out
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
