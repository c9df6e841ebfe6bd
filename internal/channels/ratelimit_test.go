package channels

import "testing"

func TestRateLimiterDisabledWhenRPMZero(t *testing.T) {
	r := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		if !r.Allow("key") {
			t.Fatal("rpm<=0 must always allow")
		}
	}
}

func TestRateLimiterAllowsUpToBurst(t *testing.T) {
	r := NewRateLimiter(60)
	allowed := 0
	for i := 0; i < 120; i++ {
		if r.Allow("same-key") {
			allowed++
		}
	}
	if allowed != 60 {
		t.Errorf("allowed = %d, want 60 (burst == rpm)", allowed)
	}
}

func TestRateLimiterTracksKeysIndependently(t *testing.T) {
	r := NewRateLimiter(1)
	if !r.Allow("a") {
		t.Error("first request for key a should be allowed")
	}
	if !r.Allow("b") {
		t.Error("first request for key b should be allowed, independent of key a's budget")
	}
	if r.Allow("a") {
		t.Error("second immediate request for key a should be throttled")
	}
}

func TestRateLimiterEvictsAtCap(t *testing.T) {
	r := NewRateLimiter(100)
	for i := 0; i < maxTrackedKeys+10; i++ {
		r.Allow(string(rune(i)))
	}
	if len(r.entries) > maxTrackedKeys {
		t.Errorf("entries = %d, want <= %d after eviction", len(r.entries), maxTrackedKeys)
	}
}
