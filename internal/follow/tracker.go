// Package follow detects follower-state changes across polling cycles: new
// follows (including re-follows) and unfollows confirmed by a second fetch.
// The tracker is owned by the polling loop and is not safe for concurrent use.
package follow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Detection bounds.
const (
	RecentLimit     = 15
	VerifyLimit     = 50
	NewFollowWindow = 90 * time.Second

	snapshotCap = 200
	unfollowCap = 200
	historyCap  = 300

	DefaultInterval = 30 * time.Second
	MinInterval     = 5 * time.Second
	MaxInterval     = 300 * time.Second
)

// Record is one follower observed in a poll.
type Record struct {
	Mid        int64
	Name       string
	FollowedAt int64
}

// Changes holds the outcome of one detection pass.
type Changes struct {
	NewFollows []Record
	Unfollows  []int64
}

// Fetcher returns up to limit recent followers ordered by follow time
// descending.
type Fetcher func(ctx context.Context, limit int) ([]Record, error)

// Tracker computes follower-set differences between polls with replay
// protection: welcomes are sent at most once per follow, and unfollows are
// confirmed against a second, larger fetch before being reported.
type Tracker struct {
	fetch    Fetcher
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	lastCheck  time.Time
	snapshot   map[int64]struct{}
	history    map[int64]int64
	welcomed   map[int64]struct{}
	unfollowed map[int64]struct{}
}

// NewTracker creates a tracker using fetch to page recent followers.
func NewTracker(log *slog.Logger, fetch Fetcher) *Tracker {
	t := &Tracker{
		fetch:    fetch,
		interval: DefaultInterval,
		logger:   log.With(slog.String("service", "follow")),
		now:      time.Now,
	}
	t.reset()
	return t
}

// SetInterval sets the minimum spacing between detection passes, clamped to
// [5s, 300s].
func (t *Tracker) SetInterval(d time.Duration) {
	if d < MinInterval {
		d = MinInterval
	}
	if d > MaxInterval {
		d = MaxInterval
	}
	t.interval = d
}

// MarkWelcomed records that mid received its welcome message, suppressing
// duplicate welcomes across repeated polls.
func (t *Tracker) MarkWelcomed(mid int64) {
	t.welcomed[mid] = struct{}{}
}

// Reset drops all tracked state, including the rate gate.
func (t *Tracker) Reset() {
	t.reset()
}

func (t *Tracker) reset() {
	t.lastCheck = time.Time{}
	t.snapshot = make(map[int64]struct{})
	t.history = make(map[int64]int64)
	t.welcomed = make(map[int64]struct{})
	t.unfollowed = make(map[int64]struct{})
}

// DetectChanges runs one detection pass. It is rate-gated by the configured
// interval and returns empty changes when gated. wantFollows and wantUnfollows
// select which change kinds to compute; the snapshot is updated either way so
// a later enablement does not replay history.
func (t *Tracker) DetectChanges(ctx context.Context, wantFollows, wantUnfollows bool) (Changes, error) {
	now := t.now()
	if !t.lastCheck.IsZero() && now.Sub(t.lastCheck) < t.interval {
		return Changes{}, nil
	}
	t.lastCheck = now

	recent, err := t.fetch(ctx, RecentLimit)
	if err != nil {
		return Changes{}, fmt.Errorf("fetch recent followers: %w", err)
	}
	if len(recent) == 0 {
		return Changes{}, nil
	}

	current := make(map[int64]struct{}, len(recent))
	for _, rec := range recent {
		if rec.Mid != 0 {
			current[rec.Mid] = struct{}{}
		}
	}

	var changes Changes
	newMids := make(map[int64]struct{})

	if wantFollows {
		for _, rec := range recent {
			if rec.Mid == 0 {
				continue
			}
			if now.Unix()-rec.FollowedAt > int64(NewFollowWindow.Seconds()) {
				continue
			}
			_, known := t.snapshot[rec.Mid]
			reFollow := known && rec.FollowedAt > t.history[rec.Mid]
			if !known || reFollow {
				if _, welcomed := t.welcomed[rec.Mid]; welcomed {
					continue
				}
				changes.NewFollows = append(changes.NewFollows, rec)
				newMids[rec.Mid] = struct{}{}
				t.history[rec.Mid] = rec.FollowedAt
				kind := "new follower"
				if reFollow {
					kind = "re-follower"
				}
				t.logger.Info("detected "+kind,
					slog.Int64("mid", rec.Mid),
					slog.String("name", rec.Name),
				)
			}
		}
	}

	if wantUnfollows {
		for mid := range t.snapshot {
			if _, still := current[mid]; still {
				continue
			}
			if _, isNew := newMids[mid]; isNew {
				continue
			}
			if _, done := t.unfollowed[mid]; done {
				continue
			}
			confirmed, err := t.confirmUnfollow(ctx, mid)
			if err != nil {
				t.logger.Warn("unfollow verification failed",
					slog.Int64("mid", mid), slog.Any("error", err))
				continue
			}
			if !confirmed {
				continue
			}
			changes.Unfollows = append(changes.Unfollows, mid)
			t.unfollowed[mid] = struct{}{}
			delete(t.welcomed, mid)
			t.logger.Info("confirmed unfollow", slog.Int64("mid", mid))
		}
	}

	// Snapshot and histories are replaced only after both detections ran on
	// the same consistent view.
	t.snapshot = current
	t.enforceBounds()

	return changes, nil
}

// confirmUnfollow re-verifies a candidate against a larger fresh fetch to
// reject pagination flicker. Best effort: the second page is itself subject
// to the same instability.
func (t *Tracker) confirmUnfollow(ctx context.Context, mid int64) (bool, error) {
	page, err := t.fetch(ctx, VerifyLimit)
	if err != nil {
		return false, err
	}
	for _, rec := range page {
		if rec.Mid == mid {
			return false, nil
		}
	}
	return true, nil
}

func (t *Tracker) enforceBounds() {
	trimSet(t.snapshot, snapshotCap)
	trimSet(t.unfollowed, unfollowCap)

	if len(t.history) > historyCap {
		type entry struct {
			mid int64
			at  int64
		}
		all := make([]entry, 0, len(t.history))
		for mid, at := range t.history {
			all = append(all, entry{mid, at})
		}
		sort.Slice(all, func(i, j int) bool { return all[i].at < all[j].at })
		for _, e := range all[:len(all)-historyCap] {
			delete(t.history, e.mid)
		}
	}
}

// trimSet drops arbitrary entries above cap. The recent-followers page is far
// below these caps in practice; this is a growth guard only.
func trimSet(m map[int64]struct{}, limit int) {
	for mid := range m {
		if len(m) <= limit {
			return
		}
		delete(m, mid)
	}
}
