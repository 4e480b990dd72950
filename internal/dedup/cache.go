// Package dedup tracks processed-message fingerprints within a bounded time
// window, plus per-conversation last-seen timestamps. The cache is owned by
// the polling loop and is not safe for concurrent use.
package dedup

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Retention and capacity bounds for the fingerprint set.
const (
	Retention  = 15 * time.Minute
	MaxEntries = 300
	TrimTarget = 200
)

// Fingerprint identifies one inbound message uniquely enough to suppress
// double-processing inside the retention window.
type Fingerprint struct {
	TalkerID  int64
	Timestamp int64
	Hash      string
}

// NewFingerprint derives the fingerprint for a message: the conversation id,
// the message timestamp, and the first 8 hex chars of the content's MD5.
func NewFingerprint(talkerID, timestamp int64, content string) Fingerprint {
	sum := md5.Sum([]byte(content))
	return Fingerprint{
		TalkerID:  talkerID,
		Timestamp: timestamp,
		Hash:      hex.EncodeToString(sum[:])[:8],
	}
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%d_%d_%s", f.TalkerID, f.Timestamp, f.Hash)
}

// Cache is the bounded dedup window plus the last-seen timestamp per
// conversation. Last-seen markers are kept across evictions so conversation
// continuity survives cache cleanup.
type Cache struct {
	seen     map[Fingerprint]struct{}
	lastSeen map[int64]int64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		seen:     make(map[Fingerprint]struct{}),
		lastSeen: make(map[int64]int64),
	}
}

// Seen reports whether the fingerprint was already processed.
func (c *Cache) Seen(f Fingerprint) bool {
	_, ok := c.seen[f]
	return ok
}

// MarkSeen records the fingerprint as processed.
func (c *Cache) MarkSeen(f Fingerprint) {
	c.seen[f] = struct{}{}
}

// Len returns the number of retained fingerprints.
func (c *Cache) Len() int {
	return len(c.seen)
}

// EvictExpired drops fingerprints older than the retention window relative to
// now and returns how many were removed. Entries without a usable timestamp
// are always dropped.
func (c *Cache) EvictExpired(now time.Time) int {
	cutoff := now.Add(-Retention).Unix()
	removed := 0
	for f := range c.seen {
		if f.Timestamp <= 0 || f.Timestamp < cutoff {
			delete(c.seen, f)
			removed++
		}
	}
	return removed
}

// CapacityTrim enforces the entry cap: when more than MaxEntries fingerprints
// are retained, only the TrimTarget most recent (by timestamp, then string
// order) are kept.
func (c *Cache) CapacityTrim() {
	if len(c.seen) <= MaxEntries {
		return
	}
	all := make([]Fingerprint, 0, len(c.seen))
	for f := range c.seen {
		all = append(all, f)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp != all[j].Timestamp {
			return all[i].Timestamp > all[j].Timestamp
		}
		return all[i].String() > all[j].String()
	})
	for _, f := range all[TrimTarget:] {
		delete(c.seen, f)
	}
}

// LastSeen returns the recorded last-message timestamp for a conversation,
// or 0 when unknown.
func (c *Cache) LastSeen(talkerID int64) int64 {
	return c.lastSeen[talkerID]
}

// Advance records timestamp as the last processed message time for the
// conversation if it is newer than the stored value.
func (c *Cache) Advance(talkerID, timestamp int64) {
	if timestamp > c.lastSeen[talkerID] {
		c.lastSeen[talkerID] = timestamp
	}
}

// Conversations returns the number of tracked conversations.
func (c *Cache) Conversations() int {
	return len(c.lastSeen)
}

// Reset drops all fingerprints and last-seen markers.
func (c *Cache) Reset() {
	c.seen = make(map[Fingerprint]struct{})
	c.lastSeen = make(map[int64]int64)
}
