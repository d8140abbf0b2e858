package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"gigboard/internal/domain"
	"gigboard/internal/repo"
)

// Event is the payload pushed to a hired freelancer.
type Event struct {
	Kind     string `json:"kind"`
	GigID    string `json:"gig_id"`
	BidID    string `json:"bid_id"`
	GigTitle string `json:"gig_title"`
	Message  string `json:"message"`
}

// Dispatcher delivers a notification to a user. Delivery failures must never
// propagate into the operation that triggered them.
type Dispatcher interface {
	Notify(ctx context.Context, userID string, evt Event)
}

// Hub persists every notification and fans it out to live subscribers.
// A user with no open subscription still finds the notification queued
// in storage the next time they ask.
type Hub struct {
	Repo repo.Repo
	Now  func() time.Time

	mu   sync.Mutex
	subs map[string][]chan Event
}

func NewHub(r repo.Repo) *Hub {
	return &Hub{
		Repo: r,
		Now:  time.Now,
		subs: map[string][]chan Event{},
	}
}

func (h *Hub) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Subscribe registers a live channel for userID. The returned cancel func
// removes the subscription and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subs[userID] = append(h.subs[userID], ch)
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		chans := h.subs[userID]
		for i, c := range chans {
			if c == ch {
				h.subs[userID] = append(chans[:i], chans[i+1:]...)
				close(ch)
				break
			}
		}
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
	}
	return ch, cancel
}

// Notify stores the notification and pushes it to any live subscribers.
// Failures are logged and swallowed so the caller's commit stands.
func (h *Hub) Notify(ctx context.Context, userID string, evt Event) {
	now := h.now().UTC().Format(time.RFC3339)
	n := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      evt.Kind,
		GigID:     evt.GigID,
		BidID:     evt.BidID,
		GigTitle:  evt.GigTitle,
		Message:   evt.Message,
		CreatedAt: now,
	}

	delivered := false
	h.mu.Lock()
	for _, ch := range h.subs[userID] {
		select {
		case ch <- evt:
			delivered = true
		default:
			// Slow subscriber, skip rather than block the hire path.
		}
	}
	h.mu.Unlock()
	if delivered {
		n.DeliveredAt = &now
	}

	if err := h.Repo.InsertNotification(ctx, n); err != nil {
		log.Printf("notify: store notification for %s: %v", userID, err)
	}
}
