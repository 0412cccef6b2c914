package recency

import (
	"context"
	"log/slog"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

const (
	DefaultBurstWindow   = 10 * time.Second
	DefaultInactiveBound = time.Hour
)

type State struct {
	LastText   string
	LastSeenAt time.Time
	// number of consecutive distinct messages, each within BurstWindow of the one before
	WindowCount uint32
}

type Tracker struct {
	BurstWindow time.Duration
	// chats with no messages for this long are dropped by the prune loop
	InactiveBound time.Duration
	Logger        *slog.Logger
	// clock, overridable for tests
	Now   func() time.Time
	chats *xsync.MapOf[int64, State]
}

func NewTracker(burstWindow, inactiveBound time.Duration) *Tracker {
	if burstWindow <= 0 {
		burstWindow = DefaultBurstWindow
	}
	if inactiveBound <= 0 {
		inactiveBound = DefaultInactiveBound
	}
	return &Tracker{
		BurstWindow:   burstWindow,
		InactiveBound: inactiveBound,
		Logger:        slog.Default().With("component", "recency"),
		Now:           time.Now,
		chats:         xsync.NewMapOf[int64, State](),
	}
}

// Records a message for the chat, and returns true if its (already normalized) text exactly equals the previous message in the same chat.
//
// The check and the update happen atomically per chat: of N concurrent calls with identical text on a fresh chat, exactly one returns false.
func (t *Tracker) CheckAndUpdate(chatID int64, text string) bool {
	now := t.Now()
	dup := false
	t.chats.Compute(chatID, func(prev State, loaded bool) (State, bool) {
		if loaded && prev.LastText == text {
			dup = true
			prev.LastSeenAt = now
			return prev, false
		}
		next := State{
			LastText:    text,
			LastSeenAt:  now,
			WindowCount: 1,
		}
		if loaded && now.Sub(prev.LastSeenAt) <= t.BurstWindow {
			next.WindowCount = prev.WindowCount + 1
		}
		return next, false
	})
	if dup {
		duplicatesSeen.Inc()
	}
	return dup
}

func (t *Tracker) Get(chatID int64) (State, bool) {
	return t.chats.Load(chatID)
}

// Number of tracked chats.
func (t *Tracker) Len() int {
	return t.chats.Size()
}

// Drops state for every chat not seen since the given duration ago, returning the number dropped.
func (t *Tracker) Prune(olderThan time.Duration) int {
	cutoff := t.Now().Add(-olderThan)
	pruned := 0
	t.chats.Range(func(chatID int64, _ State) bool {
		// re-checked under the per-key lock, so a concurrent update is never dropped
		t.chats.Compute(chatID, func(cur State, loaded bool) (State, bool) {
			if loaded && cur.LastSeenAt.Before(cutoff) {
				pruned++
				return cur, true
			}
			return cur, !loaded
		})
		return true
	})
	chatsPruned.Add(float64(pruned))
	chatsTracked.Set(float64(t.chats.Size()))
	return pruned
}

// Periodically prunes inactive chats until the context is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = t.InactiveBound / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Prune(t.InactiveBound); n > 0 {
				t.Logger.Debug("pruned inactive chats", "count", n)
			}
		}
	}
}
