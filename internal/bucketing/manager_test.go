package bucketing

import (
	"testing"
	"time"
)

func TestUserBucketIsStable(t *testing.T) {
	m := NewManager(64)

	first := m.UserBucket("user-123")
	for i := 0; i < 100; i++ {
		if got := m.UserBucket("user-123"); got != first {
			t.Fatalf("bucket changed between calls: got %d, want %d", got, first)
		}
	}
}

func TestUserBucketInRange(t *testing.T) {
	m := NewManager(16)

	ids := []string{"a", "user-1", "user-2", "alice@example.com", "+15551234567", ""}
	for _, id := range ids {
		b := m.UserBucket(id)
		if b < 0 || b >= 16 {
			t.Errorf("UserBucket(%q) = %d, want 0..15", id, b)
		}
	}
}

func TestUserBucketSpreads(t *testing.T) {
	m := NewManager(8)

	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		seen[m.UserBucket(string(rune('a'+i%26))+string(rune('0'+i%10)))] = true
	}
	if len(seen) < 4 {
		t.Errorf("expected hashing to reach several buckets, got %d", len(seen))
	}
}

func TestDateBucket(t *testing.T) {
	m := NewManager(8)

	at := time.Date(2025, 3, 9, 23, 30, 0, 0, time.FixedZone("UTC+5", 5*3600))
	if got := m.DateBucket(at); got != "2025-03-09" {
		t.Errorf("DateBucket = %q, want %q", got, "2025-03-09")
	}
}
