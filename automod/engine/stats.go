package engine

import (
	"context"
	"fmt"

	"github.com/antigcast/antigcast/automod/countstore"
)

var statReasons = []Reason{ReasonDuplicate, ReasonDenylisted}

type PeriodStats struct {
	Messages   int            `json:"messages"`
	Suppressed map[Reason]int `json:"suppressed"`
	Senders    int            `json:"senders"`
}

// Per-chat message counters, by period ("total", "day", "hour").
type ChatStats map[string]PeriodStats

func (eng *Engine) ChatStats(ctx context.Context, chatID int64) (ChatStats, error) {
	out := ChatStats{}
	if eng.Counters == nil {
		return out, nil
	}
	for _, period := range countstore.Periods {
		ps := PeriodStats{Suppressed: make(map[Reason]int)}
		n, err := eng.Counters.GetCount(ctx, CounterChatMessages, chatKey(chatID), period)
		if err != nil {
			return nil, fmt.Errorf("reading message count: %w", err)
		}
		ps.Messages = n
		for _, r := range statReasons {
			n, err = eng.Counters.GetCount(ctx, CounterChatSuppressed, suppressedKey(chatID, r), period)
			if err != nil {
				return nil, fmt.Errorf("reading suppressed count: %w", err)
			}
			ps.Suppressed[r] = n
		}
		n, err = eng.Counters.GetCountDistinct(ctx, CounterChatSenders, chatKey(chatID), period)
		if err != nil {
			return nil, fmt.Errorf("reading sender count: %w", err)
		}
		ps.Senders = n
		out[period] = ps
	}
	return out, nil
}
