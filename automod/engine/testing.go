package engine

import (
	"log/slog"

	"github.com/antigcast/antigcast/automod/countstore"
	"github.com/antigcast/antigcast/automod/modcache"
	"github.com/antigcast/antigcast/automod/recency"
	"github.com/antigcast/antigcast/automod/rulestore"
)

// Engine wired to in-memory components, plus the call-counting store behind its cache.
func EngineTestFixture() (*Engine, *rulestore.CountingRuleStore) {
	store := rulestore.NewCountingRuleStore(rulestore.NewMemRuleStore())
	eng := Engine{
		Logger:   slog.Default(),
		Rules:    modcache.NewCache(store, modcache.Config{}),
		Recency:  recency.NewTracker(0, 0),
		Patterns: DefaultPatterns(),
		Counters: countstore.NewMemCountStore(),
	}
	return &eng, store
}
