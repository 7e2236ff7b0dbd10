package memo

import (
	"testing"
	"time"
)

func TestCacheExpiry(t *testing.T) {
	c := New()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("k", 42, time.Minute)

	if v, ok := c.Get("k"); !ok || v.(int) != 42 {
		t.Fatalf("Get after Set: got %v, %v", v, ok)
	}
	if ttl := c.TTL("k"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to expire")
	}
	if ttl := c.TTL("k"); ttl != 0 {
		t.Errorf("TTL after expiry = %v, want 0", ttl)
	}
}

func TestCacheDelete(t *testing.T) {
	c := New()
	c.Set("k", "v", time.Minute)
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to be gone after Delete")
	}
}
