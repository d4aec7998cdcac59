package backoffice

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterBurstAndRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, 2)
	rl.clockNow = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatalf("burst should admit two requests")
	}
	if rl.Allow("a") {
		t.Fatalf("third request within the same instant should be throttled")
	}
	if !rl.Allow("b") {
		t.Fatalf("clients must not share buckets")
	}
	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Fatalf("token should refill after one second")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !rl.Allow("a") {
			t.Fatalf("disabled limiter throttled request %d", i)
		}
	}
	var nilLimiter *RateLimiter
	if !nilLimiter.Allow("a") {
		t.Fatalf("nil limiter should admit")
	}
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, 1)
	rl.clockNow = func() time.Time { return now }

	rl.Allow("idle")
	now = now.Add(visitorTTL / 2)
	rl.Allow("active")
	now = now.Add(visitorTTL / 2)
	rl.Allow("active")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["idle"]; ok {
		t.Fatalf("idle visitor should be evicted")
	}
	if _, ok := rl.visitors["active"]; !ok {
		t.Fatalf("active visitor should be kept")
	}
}

func TestClientID(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/funds", nil)
	req.RemoteAddr = "198.51.100.7:4321"
	if got := clientID(req); got != "198.51.100.7" {
		t.Fatalf("remote addr: got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
	if got := clientID(req); got != "203.0.113.1" {
		t.Fatalf("forwarded: got %q", got)
	}
	req.Header.Set("X-Real-IP", "192.0.2.5")
	if got := clientID(req); got != "192.0.2.5" {
		t.Fatalf("real ip: got %q", got)
	}
}
