package store

import (
	"context"
	"sync"
)

// Hub fans out snapshots to per-student subscribers. A slow subscriber only
// ever holds the latest snapshot.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Snapshot]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Snapshot]struct{})}
}

// Add registers a subscriber seeded with initial. The channel is closed once
// ctx is done.
func (h *Hub) Add(ctx context.Context, studentID string, initial Snapshot) <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	ch <- initial

	h.mu.Lock()
	if h.subs[studentID] == nil {
		h.subs[studentID] = make(map[chan Snapshot]struct{})
	}
	h.subs[studentID][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[studentID], ch)
		if len(h.subs[studentID]) == 0 {
			delete(h.subs, studentID)
		}
		close(ch)
		h.mu.Unlock()
	}()
	return ch
}

// Publish delivers snap to every subscriber of studentID without blocking.
func (h *Hub) Publish(studentID string, snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[studentID] {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Drop the stale snapshot and keep the latest.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Watched reports whether anyone subscribes to studentID.
func (h *Hub) Watched(studentID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[studentID]) > 0
}
