package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antigcast/antigcast/automod/engine"

	"github.com/go-telegram/bot/models"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var updateCursorKey = "antigcast/update-offset"

const (
	DefaultParallelism = 16
	DefaultDeleteRate  = 20
	// seconds the platform holds a getUpdates call open waiting for new updates
	pollTimeout = 50
)

// Update source for the consumer; implemented by BotClient.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]models.Update, error)
}

// Long-polls the platform for group messages, runs them through commands or the moderation engine, and carries out resulting deletions.
type TelegramConsumer struct {
	Parallelism int
	Logger      *slog.Logger
	// optional; used to persist the update offset across restarts
	RedisClient *redis.Client
	Engine      *engine.Engine
	Commands    *Commands
	Updates     UpdateSource
	Messenger   Messenger
	// deletions per second, across all chats
	DeleteLimiter *rate.Limiter

	// next update offset to request. stored with atomics, since the cursor persister reads it concurrently
	offset int64
	// outstanding deletions and replies, which run detached from message processing
	pending sync.WaitGroup
}

func (tc *TelegramConsumer) Run(ctx context.Context) error {
	if tc.Engine == nil {
		return fmt.Errorf("nil engine")
	}
	if tc.Updates == nil || tc.Messenger == nil {
		return fmt.Errorf("nil telegram client")
	}
	if tc.DeleteLimiter == nil {
		tc.DeleteLimiter = rate.NewLimiter(rate.Limit(DefaultDeleteRate), DefaultDeleteRate)
	}
	parallelism := tc.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	cur, err := tc.ReadLastCursor(ctx)
	if err != nil {
		return err
	}
	atomic.StoreInt64(&tc.offset, cur)

	tc.Logger.Info("polling for telegram updates", "offset", cur, "parallelism", parallelism)
	sem := semaphore.NewWeighted(int64(parallelism))
	var workers sync.WaitGroup
	defer func() {
		workers.Wait()
		tc.pending.Wait()
	}()

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := tc.Updates.GetUpdates(ctx, atomic.LoadInt64(&tc.offset), pollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			pollErrors.Inc()
			tc.Logger.Warn("polling telegram updates failed", "err", err, "retry", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second

		for i := range updates {
			upd := updates[i]
			atomic.StoreInt64(&tc.offset, int64(upd.ID)+1)
			msg, ok := groupMessage(&upd)
			if !ok {
				continue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			workers.Add(1)
			go func() {
				defer workers.Done()
				defer sem.Release(1)
				tc.HandleMessage(ctx, msg)
			}()
		}
	}
}

// Extracts a classifiable message from an update, if it is a text message in a group or supergroup.
func groupMessage(upd *models.Update) (engine.Message, bool) {
	m := upd.Message
	if m == nil {
		return engine.Message{}, false
	}
	switch string(m.Chat.Type) {
	case "group", "supergroup":
	default:
		return engine.Message{}, false
	}
	msg := engine.Message{
		ChatID:    m.Chat.ID,
		MessageID: m.ID,
		Text:      m.Text,
	}
	if m.From != nil {
		msg.SenderID = m.From.ID
	}
	if m.SenderChat != nil && m.SenderChat.ID == m.Chat.ID {
		msg.SentAsChat = true
	}
	return msg, true
}

// Processes a single group message: admin commands are executed and answered, everything else is classified and deleted if suppressed.
func (tc *TelegramConsumer) HandleMessage(ctx context.Context, msg engine.Message) {
	messagesReceived.Inc()
	if tc.Commands != nil {
		reply, handled, err := tc.Commands.Handle(ctx, msg)
		if handled {
			commandsHandled.WithLabelValues(commandStatus(err)).Inc()
			if err != nil {
				tc.Logger.Debug("command failed", "chat", msg.ChatID, "user", msg.SenderID, "err", err)
			}
			if reply != "" {
				tc.reply(ctx, msg.ChatID, reply)
			}
			return
		}
	}

	eff, err := tc.Engine.ProcessMessage(ctx, msg)
	if err != nil {
		tc.Logger.Error("failed to process message", "chat", msg.ChatID, "msg", msg.MessageID, "err", err)
	}
	if eff != nil && eff.Delete != nil {
		tc.ExecuteDelete(ctx, *eff.Delete)
	}
}

func commandStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotAdmin):
		return "denied"
	default:
		return "error"
	}
}

// Deletes a message in the background, subject to the rate limiter. Failures are logged and counted, never retried.
func (tc *TelegramConsumer) ExecuteDelete(ctx context.Context, del engine.DeleteMessage) {
	tc.pending.Add(1)
	go func() {
		defer tc.pending.Done()
		// detached: a shutdown shouldn't abandon deletions already decided on
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := tc.DeleteLimiter.Wait(ctx); err != nil {
			deletesExecuted.WithLabelValues("throttled").Inc()
			tc.Logger.Warn("dropping message deletion", "chat", del.ChatID, "msg", del.MessageID, "err", err)
			return
		}
		if err := tc.Messenger.DeleteMessage(ctx, del.ChatID, del.MessageID); err != nil {
			deletesExecuted.WithLabelValues("error").Inc()
			tc.Logger.Warn("failed to delete message", "chat", del.ChatID, "msg", del.MessageID, "reason", del.Reason, "err", err)
			return
		}
		deletesExecuted.WithLabelValues("ok").Inc()
	}()
}

func (tc *TelegramConsumer) reply(ctx context.Context, chatID int64, text string) {
	tc.pending.Add(1)
	go func() {
		defer tc.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := tc.Messenger.SendMessage(ctx, chatID, text); err != nil {
			tc.Logger.Warn("failed to send command reply", "chat", chatID, "err", err)
		}
	}()
}

func (tc *TelegramConsumer) ReadLastCursor(ctx context.Context) (int64, error) {
	// if redis isn't configured, just skip
	if tc.RedisClient == nil {
		tc.Logger.Info("redis not configured, skipping cursor read")
		return 0, nil
	}

	val, err := tc.RedisClient.Get(ctx, updateCursorKey).Int64()
	if err == redis.Nil {
		tc.Logger.Info("no pre-existing update offset in redis")
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	tc.Logger.Info("found prior update offset in redis", "offset", val)
	return val, nil
}

func (tc *TelegramConsumer) PersistCursor(ctx context.Context) error {
	// if redis isn't configured, just skip
	if tc.RedisClient == nil {
		return nil
	}
	offset := atomic.LoadInt64(&tc.offset)
	if offset <= 0 {
		return nil
	}
	return tc.RedisClient.Set(ctx, updateCursorKey, offset, 7*24*time.Hour).Err()
}

// this method runs in a loop, persisting the current update offset every 5 seconds
func (tc *TelegramConsumer) RunPersistCursor(ctx context.Context) error {
	// if redis isn't configured, just skip
	if tc.RedisClient == nil {
		return nil
	}
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			offset := atomic.LoadInt64(&tc.offset)
			if offset >= 1 {
				tc.Logger.Info("persisting final update offset", "offset", offset)
				if err := tc.PersistCursor(context.WithoutCancel(ctx)); err != nil {
					tc.Logger.Error("failed to persist update offset", "err", err, "offset", offset)
				}
			}
			return nil
		case <-ticker.C:
			if err := tc.PersistCursor(ctx); err != nil {
				tc.Logger.Error("failed to persist update offset", "err", err)
			}
		}
	}
}
