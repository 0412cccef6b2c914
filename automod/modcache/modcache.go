package modcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/antigcast/antigcast/automod/rulestore"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/puzpuzpuz/xsync/v3"
)

// Returned (wrapping the underlying store error) when a write-through mutation fails at the durable store. The cached entry for the chat, if any, is left in place.
var ErrStaleWrite = errors.New("ruleset write failed, cached ruleset left unchanged")

const (
	DefaultFreshness    = 5 * time.Minute
	DefaultFetchTimeout = 3 * time.Second
)

type Entry struct {
	RuleSet   rulestore.RuleSet
	FetchedAt time.Time
}

type Cache struct {
	Store        rulestore.RuleStore
	Logger       *slog.Logger
	FetchTimeout time.Duration
	entries      *expirable.LRU[int64, Entry]
	// bumped on every invalidation; a fetch result is only stored if the generation it started under is still current
	gens       *xsync.MapOf[int64, uint64]
	fetchCalls sync.Map
}

// an in-progress store fetch which concurrent readers of the same chat wait on
type fetchCall struct {
	done chan struct{}
	rs   rulestore.RuleSet
	err  error
}

type Config struct {
	// maximum number of cached chats; zero means unlimited
	Capacity     int
	Freshness    time.Duration
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

func NewCache(store rulestore.RuleStore, config Config) *Cache {
	if config.Freshness <= 0 {
		config.Freshness = DefaultFreshness
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = DefaultFetchTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		Store:        store,
		Logger:       logger.With("component", "modcache"),
		FetchTimeout: config.FetchTimeout,
		// the LRU's own expiry sweep is the background reaper for stale entries
		entries: expirable.NewLRU[int64, Entry](config.Capacity, nil, config.Freshness),
		gens:    xsync.NewMapOf[int64, uint64](),
	}
}

// Returns the current ruleset for the chat. Never fails: on store error or timeout the default (disabled) ruleset is returned and nothing is cached.
//
// The returned RuleSet is a copy and may be modified by the caller.
func (c *Cache) GetRuleSet(ctx context.Context, chatID int64) rulestore.RuleSet {
	entry, ok := c.entries.Get(chatID)
	if ok {
		cacheHits.Inc()
		return entry.RuleSet.Clone()
	}
	cacheMisses.Inc()

	// Coalesce multiple requests for the same chat
	call := &fetchCall{done: make(chan struct{})}
	val, loaded := c.fetchCalls.LoadOrStore(chatID, call)
	if loaded {
		fetchesCoalesced.Inc()
		call = val.(*fetchCall)
	} else {
		gen, _ := c.gens.Load(chatID)
		// detached from the caller, so the fetch completes (and populates the cache) even if this caller gives up
		go c.fetch(context.WithoutCancel(ctx), chatID, gen, call)
	}

	select {
	case <-call.done:
		if call.err != nil {
			return rulestore.RuleSet{}
		}
		return call.rs.Clone()
	case <-ctx.Done():
		c.Logger.Warn("gave up waiting on ruleset fetch", "chat", chatID, "err", ctx.Err())
		return rulestore.RuleSet{}
	}
}

func (c *Cache) fetch(ctx context.Context, chatID int64, gen uint64, call *fetchCall) {
	defer func() {
		// waiters now read the result from the call itself
		c.fetchCalls.CompareAndDelete(chatID, call)
		close(call.done)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.FetchTimeout)
	defer cancel()

	start := time.Now()
	rs, err := c.Store.FetchRuleSet(ctx, chatID)
	if err == nil && rs == nil {
		err = fmt.Errorf("%w: store returned no ruleset", rulestore.ErrMalformedRecord)
	}
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
	}
	fetchCount.WithLabelValues(status).Inc()
	fetchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if err != nil {
		c.Logger.Warn("ruleset fetch failed, using default ruleset", "chat", chatID, "err", err)
		call.err = err
		return
	}

	call.rs = rs.Clone()
	entry := Entry{
		RuleSet:   call.rs.Clone(),
		FetchedAt: time.Now(),
	}
	c.gens.Compute(chatID, func(cur uint64, loaded bool) (uint64, bool) {
		if cur == gen {
			c.entries.Add(chatID, entry)
		}
		// don't create generation records just for reads
		return cur, !loaded
	})
}

// Drops any cached entry for the chat. Any fetch already in flight is detached: later readers won't join it, and its result will not be cached.
//
// Idempotent.
func (c *Cache) Invalidate(chatID int64) {
	// only the call registered before the bump is detached; one registered after it already reads post-write state
	var stale any
	c.gens.Compute(chatID, func(cur uint64, loaded bool) (uint64, bool) {
		stale, _ = c.fetchCalls.Load(chatID)
		c.entries.Remove(chatID)
		return cur + 1, false
	})
	if stale != nil {
		c.fetchCalls.CompareAndDelete(chatID, stale)
	}
	invalidations.Inc()
}

// Returns the cached entry for the chat without fetching, if present and fresh.
func (c *Cache) Peek(chatID int64) (Entry, bool) {
	return c.entries.Peek(chatID)
}

// Number of cached chats, including any expired entries not yet reaped.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) staleWrite(chatID int64, op string, err error) error {
	staleWrites.Inc()
	c.Logger.Warn("ruleset write failed", "chat", chatID, "op", op, "err", err)
	return fmt.Errorf("%w: %w", ErrStaleWrite, err)
}

func (c *Cache) SetEnabled(ctx context.Context, chatID int64, enabled bool) error {
	if err := c.Store.WriteEnabled(ctx, chatID, enabled); err != nil {
		return c.staleWrite(chatID, "set-enabled", err)
	}
	c.Invalidate(chatID)
	return nil
}

func (c *Cache) AddTerm(ctx context.Context, chatID int64, kind rulestore.ListKind, term string) error {
	if err := c.Store.AddTerm(ctx, chatID, kind, term); err != nil {
		return c.staleWrite(chatID, "add-term", err)
	}
	c.Invalidate(chatID)
	return nil
}

func (c *Cache) RemoveTerm(ctx context.Context, chatID int64, kind rulestore.ListKind, term string) error {
	if err := c.Store.RemoveTerm(ctx, chatID, kind, term); err != nil {
		return c.staleWrite(chatID, "remove-term", err)
	}
	c.Invalidate(chatID)
	return nil
}
