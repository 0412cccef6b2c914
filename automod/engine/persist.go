package engine

import (
	"context"
)

// Writes all of a message's counter increments as one batch. A no-op without a count store.
func (eng *Engine) persistCounters(ctx context.Context, eff *Effects) error {
	if eng.Counters == nil {
		return nil
	}
	if len(eff.CounterIncrements) == 0 && len(eff.CounterDistinctIncrements) == 0 {
		return nil
	}
	return eng.Counters.IncrementBatch(ctx, eff.CounterIncrements, eff.CounterDistinctIncrements)
}
