package cache

import (
	"testing"
	"time"
)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a = %v,%v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("Size = %d, want 2", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("fresh", "v")
	now = now.Add(30 * time.Second)
	c.Set("fresh", "v2")
	now = now.Add(45 * time.Second)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry returned")
	}
	if removed := c.CleanExpired(); removed != 0 {
		t.Fatalf("CleanExpired removed %d, want 0 (k already dropped on read)", removed)
	}
	now = now.Add(time.Minute)
	if removed := c.CleanExpired(); removed != 1 {
		t.Fatalf("CleanExpired removed %d, want 1", removed)
	}
}

func TestLRUCachePurgeAndDelete(t *testing.T) {
	c := NewLRUCache[int](5, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("deleted entry returned")
	}
	c.Purge()
	if c.Size() != 0 {
		t.Fatalf("Size after purge = %d", c.Size())
	}
}

func TestJanitorStartStop(t *testing.T) {
	j := NewJanitor()
	c := NewLRUCache[int](5, time.Nanosecond)
	j.Register(c)
	c.Set("a", 1)
	j.Start(time.Millisecond)
	j.Start(time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for c.Size() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	j.Stop()
	j.Stop()
	if c.Size() != 0 {
		t.Fatal("janitor did not clean expired entry")
	}
}
