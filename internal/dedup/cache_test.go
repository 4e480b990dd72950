package dedup

import (
	"fmt"
	"testing"
	"time"
)

func TestFingerprintFormat(t *testing.T) {
	f := NewFingerprint(42, 150, "问一下价格")
	if f.TalkerID != 42 || f.Timestamp != 150 {
		t.Errorf("unexpected fields: %+v", f)
	}
	if len(f.Hash) != 8 {
		t.Errorf("hash length = %d, want 8", len(f.Hash))
	}
	want := fmt.Sprintf("42_150_%s", f.Hash)
	if f.String() != want {
		t.Errorf("String() = %q, want %q", f.String(), want)
	}

	// Same inputs produce the same fingerprint.
	if NewFingerprint(42, 150, "问一下价格") != f {
		t.Error("fingerprint must be deterministic")
	}
	// Different content produces a different hash.
	if NewFingerprint(42, 150, "其他内容") == f {
		t.Error("different content should differ")
	}
}

func TestSeenIdempotent(t *testing.T) {
	c := NewCache()
	f := NewFingerprint(1, 100, "hello")
	if c.Seen(f) {
		t.Error("fresh fingerprint should not be seen")
	}
	c.MarkSeen(f)
	if !c.Seen(f) {
		t.Error("marked fingerprint should be seen")
	}
	c.MarkSeen(f)
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1 after double mark", c.Len())
	}
}

func TestEvictExpired(t *testing.T) {
	c := NewCache()
	now := time.Unix(10_000, 0)

	fresh := NewFingerprint(1, now.Unix()-100, "fresh")
	stale := NewFingerprint(2, now.Unix()-1000, "stale")
	malformed := Fingerprint{TalkerID: 3, Timestamp: 0, Hash: "deadbeef"}
	c.MarkSeen(fresh)
	c.MarkSeen(stale)
	c.MarkSeen(malformed)

	removed := c.EvictExpired(now)
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if !c.Seen(fresh) {
		t.Error("fresh entry must survive")
	}
	if c.Seen(stale) || c.Seen(malformed) {
		t.Error("stale and malformed entries must be evicted")
	}
}

func TestBoundedGrowth(t *testing.T) {
	c := NewCache()
	base := time.Unix(100_000, 0)

	// 500 fingerprints spanning more than the retention window.
	for i := 0; i < 500; i++ {
		ts := base.Unix() - int64(i*4) // 0..2000s back
		c.MarkSeen(NewFingerprint(int64(i), ts, fmt.Sprintf("msg-%d", i)))
	}

	c.EvictExpired(base)
	c.CapacityTrim()

	if c.Len() > MaxEntries {
		t.Errorf("Len = %d, want <= %d", c.Len(), MaxEntries)
	}
	cutoff := base.Add(-Retention).Unix()
	for f := range c.seen {
		if f.Timestamp < cutoff {
			t.Fatalf("entry older than retention survived: %+v", f)
		}
	}
}

func TestCapacityTrimKeepsMostRecent(t *testing.T) {
	c := NewCache()
	for i := 0; i < 350; i++ {
		c.MarkSeen(NewFingerprint(int64(i), int64(1000+i), "x"))
	}
	c.CapacityTrim()
	if c.Len() != TrimTarget {
		t.Fatalf("Len = %d, want %d", c.Len(), TrimTarget)
	}
	// The newest timestamps survive.
	if !c.Seen(NewFingerprint(349, 1349, "x")) {
		t.Error("newest entry was trimmed")
	}
	if c.Seen(NewFingerprint(0, 1000, "x")) {
		t.Error("oldest entry should be trimmed")
	}
}

func TestLastSeenAdvance(t *testing.T) {
	c := NewCache()
	c.Advance(42, 100)
	c.Advance(42, 150)
	c.Advance(42, 120) // never goes backwards
	if got := c.LastSeen(42); got != 150 {
		t.Errorf("LastSeen = %d, want 150", got)
	}
	if got := c.LastSeen(7); got != 0 {
		t.Errorf("unknown conversation LastSeen = %d, want 0", got)
	}
	if c.Conversations() != 1 {
		t.Errorf("Conversations = %d, want 1", c.Conversations())
	}
}
