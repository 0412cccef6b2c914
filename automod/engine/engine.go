package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/antigcast/antigcast/automod/countstore"
	"github.com/antigcast/antigcast/automod/helpers"
	"github.com/antigcast/antigcast/automod/keyword"
	"github.com/antigcast/antigcast/automod/modcache"
	"github.com/antigcast/antigcast/automod/recency"
	"github.com/antigcast/antigcast/automod/rulestore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("automod")

// runtime for classifying messages and collecting the resulting side-effects.
//
// All fields except Counters are required. An Engine is safe for concurrent use once constructed.
type Engine struct {
	Logger   *slog.Logger
	Rules    *modcache.Cache
	Recency  *recency.Tracker
	Patterns *Patterns
	// optional; per-chat statistics are skipped when nil
	Counters countstore.CountStore
}

// A single incoming chat message.
type Message struct {
	ChatID    int64
	MessageID int
	SenderID  int64
	Text      string

	// posted on behalf of the chat itself, which only its administrators can do
	SentAsChat bool
}

// Decides whether a message should be suppressed.
//
// Always returns a Decision: ruleset store problems degrade to the default (disabled) ruleset inside the cache. The chat's recency state is updated exactly once per non-empty message, whatever the outcome.
func (eng *Engine) Classify(ctx context.Context, chatID int64, raw string) Decision {
	ctx, span := tracer.Start(ctx, "Classify")
	defer span.End()
	start := time.Now()

	text := keyword.NormalizeText(raw)
	if text == "" {
		return Decision{Suppress: false, Reason: ReasonClean}
	}

	// the ruleset read may block on the store; signals and recency don't depend on it
	rules := make(chan rulestore.RuleSet, 1)
	go func() {
		rules <- eng.Rules.GetRuleSet(ctx, chatID)
	}()

	sig := eng.Patterns.Signals(text)
	dup := eng.Recency.CheckAndUpdate(chatID, text)
	rs := <-rules

	d := Evaluate(rs, dup, text, sig)

	span.SetAttributes(
		attribute.Int64("chat", chatID),
		attribute.String("reason", string(d.Reason)),
		attribute.Bool("suppress", d.Suppress),
	)
	classifyDuration.Observe(time.Since(start).Seconds())
	classifyDecisions.WithLabelValues(string(d.Reason), strconv.FormatBool(d.Suppress)).Inc()
	return d
}

// Classifies a message and returns the side-effects the caller should carry out (the message deletion, if any). Counters are persisted before returning.
//
// A non-nil Effects is returned even along with a counter persistence error, so the deletion can still be performed.
func (eng *Engine) ProcessMessage(ctx context.Context, msg Message) (eff *Effects, err error) {
	// similar to an HTTP server, we want to recover any panics from message processing
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("automod message processing exception", "err", r, "chat", msg.ChatID, "msg", msg.MessageID)
			messageErrorCount.WithLabelValues("panic").Inc()
			eff = nil
			err = fmt.Errorf("panic processing message: %v", r)
		}
	}()
	messageProcessCount.Inc()

	eff = &Effects{}
	d := eng.Classify(ctx, msg.ChatID, msg.Text)
	eff.Decision = d

	// empty messages (eg, media without captions) are not counted
	if keyword.NormalizeText(msg.Text) == "" {
		return eff, nil
	}

	chat := chatKey(msg.ChatID)
	eff.Increment(CounterChatMessages, chat)
	if msg.SenderID != 0 {
		eff.IncrementDistinct(CounterChatSenders, chat, strconv.FormatInt(msg.SenderID, 10))
	}
	if d.Suppress {
		eff.Increment(CounterChatSuppressed, suppressedKey(msg.ChatID, d.Reason))
		eff.Delete = &DeleteMessage{
			ChatID:    msg.ChatID,
			MessageID: msg.MessageID,
			Reason:    d.Reason,
		}
		eng.Logger.Info("message suppressed",
			"chat", msg.ChatID,
			"msg", msg.MessageID,
			"reason", d.Reason,
			"text_hash", helpers.HashOfString(msg.Text),
		)
	}

	if err := eng.persistCounters(ctx, eff); err != nil {
		messageErrorCount.WithLabelValues("counters").Inc()
		return eff, fmt.Errorf("persisting counters: %w", err)
	}
	return eff, nil
}
