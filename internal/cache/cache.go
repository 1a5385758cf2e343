// Package cache holds the in-process caches used for reference data such as
// allowance configuration.
package cache

import (
	"log/slog"
	"sync"
	"time"
)

// Cache is a keyed cache with per-entry expiry.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Purge()
	Size() int
}

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically cleans registered caches.
type Janitor struct {
	mu      sync.Mutex
	caches  []Cleaner
	stop    chan struct{}
	done    chan struct{}
	started bool
}

func NewJanitor() *Janitor {
	return &Janitor{stop: make(chan struct{}), done: make(chan struct{})}
}

func (j *Janitor) Register(c Cleaner) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.caches = append(j.caches, c)
}

// Start runs cleanup every interval until Stop is called. Calling Start more
// than once has no effect.
func (j *Janitor) Start(interval time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.started = true
	go j.run(interval)
}

func (j *Janitor) run(interval time.Duration) {
	defer close(j.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := j.sweep(); n > 0 {
				slog.Debug("Cache cleanup completed", "component", "cache", "entries_removed", n)
			}
		case <-j.stop:
			return
		}
	}
}

func (j *Janitor) sweep() int {
	j.mu.Lock()
	caches := append([]Cleaner(nil), j.caches...)
	j.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop halts the cleanup goroutine and waits for it to exit.
func (j *Janitor) Stop() {
	j.mu.Lock()
	started := j.started
	j.started = false
	j.mu.Unlock()
	if !started {
		return
	}
	close(j.stop)
	<-j.done
}
