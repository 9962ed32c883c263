package app

import (
	"sync"

	"github.com/tempo/storefront-service/internal/domain"
)

// StatusHub fans subscription status changes out to per-user watchers.
// Each watcher holds at most one pending status; a newer one replaces it.
type StatusHub struct {
	mu   sync.Mutex
	next uint64
	subs map[string]map[uint64]chan domain.SubscriptionStatus
}

// NewStatusHub creates an empty hub.
func NewStatusHub() *StatusHub {
	return &StatusHub{subs: make(map[string]map[uint64]chan domain.SubscriptionStatus)}
}

// Subscribe registers a watcher for a user. The returned func unregisters it
// and closes the channel; it is safe to call more than once.
func (h *StatusHub) Subscribe(clerkUserID string) (<-chan domain.SubscriptionStatus, func()) {
	ch := make(chan domain.SubscriptionStatus, 1)

	h.mu.Lock()
	h.next++
	id := h.next
	if h.subs[clerkUserID] == nil {
		h.subs[clerkUserID] = make(map[uint64]chan domain.SubscriptionStatus)
	}
	h.subs[clerkUserID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[clerkUserID], id)
			if len(h.subs[clerkUserID]) == 0 {
				delete(h.subs, clerkUserID)
			}
			close(ch)
		})
	}
}

// Publish delivers status to every watcher of the user and reports how many there were.
func (h *StatusHub) Publish(clerkUserID string, status domain.SubscriptionStatus) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	watchers := h.subs[clerkUserID]
	for _, ch := range watchers {
		select {
		case ch <- status:
		default:
			// Drop the stale pending value, then deliver the latest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- status:
			default:
			}
		}
	}
	return len(watchers)
}
