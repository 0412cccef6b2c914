package consumer

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/antigcast/antigcast/automod/cachestore"
	"github.com/antigcast/antigcast/automod/engine"
	"github.com/antigcast/antigcast/automod/modcache"
	"github.com/antigcast/antigcast/automod/rulestore"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"
)

type sentMessage struct {
	ChatID int64
	Text   string
}

// records outbound calls instead of talking to the platform
type fakeMessenger struct {
	mu         sync.Mutex
	admins     map[int64][]int64
	adminCalls int
	deleted    []engine.DeleteMessage
	sent       []sentMessage
	deleteErr  error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{admins: make(map[int64][]int64)}
}

func (m *fakeMessenger) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, engine.DeleteMessage{ChatID: chatID, MessageID: messageID})
	return nil
}

func (m *fakeMessenger) SendMessage(ctx context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (m *fakeMessenger) ChatAdministrators(ctx context.Context, chatID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adminCalls++
	return m.admins[chatID], nil
}

func (m *fakeMessenger) Deleted() []engine.DeleteMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.deleted)
}

func (m *fakeMessenger) Sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sent)
}

const (
	testChat  int64 = -1001234
	testAdmin int64 = 42
	testUser  int64 = 7
)

func testCommands(t *testing.T) (*Commands, *fakeMessenger, *rulestore.CountingRuleStore) {
	eng, store := engine.EngineTestFixture()
	msgr := newFakeMessenger()
	msgr.admins[testChat] = []int64{testAdmin, 99}
	cmds := &Commands{
		Logger:      slog.Default(),
		Engine:      eng,
		Messenger:   msgr,
		Cache:       cachestore.NewMemCacheStore(100, AdminCacheTTL),
		BotUsername: "antigcast_bot",
	}
	return cmds, msgr, store
}

func TestParseCommand(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		text string
		name string
		arg  string
		ok   bool
	}{
		{text: "/on", name: "on", ok: true},
		{text: "  /ADDBL  Promo Code ", name: "addbl", arg: "Promo Code", ok: true},
		{text: "/addbl@antigcast_bot vcs", name: "addbl", arg: "vcs", ok: true},
		{text: "/addbl@AntiGcast_Bot vcs", name: "addbl", arg: "vcs", ok: true},
		{text: "/addbl@other_bot vcs", ok: false},
		{text: "hello /on", ok: false},
		{text: "/", ok: false},
		{text: "", ok: false},
	}

	for _, fix := range fixtures {
		name, arg, ok := ParseCommand(fix.text, "antigcast_bot")
		assert.Equal(fix.ok, ok, fix.text)
		assert.Equal(fix.name, name, fix.text)
		assert.Equal(fix.arg, arg, fix.text)
	}
}

func TestCommandsAdminOnly(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cmds, _, _ := testCommands(t)

	reply, handled, err := cmds.Handle(ctx, engine.Message{ChatID: testChat, SenderID: testUser, Text: "/on"})
	assert.True(handled)
	assert.ErrorIs(err, ErrNotAdmin)
	assert.NotEmpty(reply)
	assert.False(cmds.Engine.Rules.GetRuleSet(ctx, testChat).Enabled)

	// anonymous senders can't be verified
	_, handled, err = cmds.Handle(ctx, engine.Message{ChatID: testChat, Text: "/on"})
	assert.True(handled)
	assert.ErrorIs(err, ErrNotAdmin)

	// help is open to everyone
	reply, handled, err = cmds.Handle(ctx, engine.Message{ChatID: testChat, SenderID: testUser, Text: "/help"})
	assert.True(handled)
	assert.NoError(err)
	assert.Contains(reply, "/addbl")
}

func TestCommandsAnonymousAdmin(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cmds, msgr, _ := testCommands(t)

	// the platform's anonymous admin bot, posting as the group
	upd := groupUpdate(1, "supergroup", 5, "/on")
	upd.Message.From = &models.User{ID: 1087968824, IsBot: true}
	upd.Message.SenderChat = &models.Chat{ID: testChat, Type: models.ChatType("supergroup")}
	msg, ok := groupMessage(&upd)
	assert.True(ok)
	assert.True(msg.SentAsChat)

	reply, handled, err := cmds.Handle(ctx, msg)
	assert.True(handled)
	assert.NoError(err)
	assert.Equal("Anti-gcast enabled.", reply)
	assert.True(cmds.Engine.Rules.GetRuleSet(ctx, testChat).Enabled)
	assert.Equal(0, msgr.adminCalls)

	// a linked channel posting in to the group is not the group itself
	upd.Message.SenderChat = &models.Chat{ID: -1009999, Type: models.ChatType("channel")}
	msg, ok = groupMessage(&upd)
	assert.True(ok)
	assert.False(msg.SentAsChat)
	msg.Text = "/off"
	_, handled, err = cmds.Handle(ctx, msg)
	assert.True(handled)
	assert.ErrorIs(err, ErrNotAdmin)
	assert.True(cmds.Engine.Rules.GetRuleSet(ctx, testChat).Enabled)
}

func TestCommandsAdminCached(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cmds, msgr, _ := testCommands(t)

	for range 3 {
		ok, err := cmds.IsAdmin(ctx, testChat, testAdmin)
		assert.NoError(err)
		assert.True(ok)
	}
	ok, err := cmds.IsAdmin(ctx, testChat, testUser)
	assert.NoError(err)
	assert.False(ok)
	assert.Equal(1, msgr.adminCalls)
}

func TestCommandsRulesetEditing(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	cmds, _, _ := testCommands(t)

	run := func(text string) string {
		reply, handled, err := cmds.Handle(ctx, engine.Message{ChatID: testChat, SenderID: testAdmin, Text: text})
		require.True(handled, text)
		require.NoError(err, text)
		return reply
	}

	assert.Equal("Anti-gcast enabled.", run("/on"))
	assert.Equal("Added to blacklist: promo", run("/addbl PROMO"))
	assert.Equal("Added to whitelist: promo code", run("/addwhite Promo Code"))
	assert.Equal("Blacklist:\n- promo", run("/listbl"))
	assert.Equal("Whitelist:\n- promo code", run("/listwhite"))

	// edits take effect on the very next classification
	eng := cmds.Engine
	assert.Equal(engine.Decision{Suppress: true, Reason: engine.ReasonDenylisted}, eng.Classify(ctx, testChat, "promo today"))
	assert.Equal(engine.Decision{Suppress: false, Reason: engine.ReasonClean}, eng.Classify(ctx, testChat, "use this promo code"))

	assert.Equal("Removed from blacklist: promo", run("/delbl promo"))
	assert.Equal("blacklist is empty.", run("/listbl"))
	assert.Equal("Removed from whitelist: promo code", run("/delwhite promo code"))
	assert.Equal("Anti-gcast disabled.", run("/off"))
	assert.Equal(engine.ReasonDisabled, eng.Classify(ctx, testChat, "promo again").Reason)

	// classification alone is not counted; only processed messages are
	assert.Contains(run("/stats"), "total: 0 messages from 0 senders")
}

func TestCommandsErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cmds, _, store := testCommands(t)

	reply, handled, err := cmds.Handle(ctx, engine.Message{ChatID: testChat, SenderID: testAdmin, Text: "/addbl   "})
	assert.True(handled)
	assert.Error(err)
	assert.Equal("Usage: /addbl <term>", reply)

	store.SetWriteErr(errors.New("database is locked"))
	reply, handled, err = cmds.Handle(ctx, engine.Message{ChatID: testChat, SenderID: testAdmin, Text: "/on"})
	assert.True(handled)
	assert.ErrorIs(err, modcache.ErrStaleWrite)
	assert.Contains(reply, "try again")

	// not commands for this bot
	_, handled, err = cmds.Handle(ctx, engine.Message{ChatID: testChat, SenderID: testAdmin, Text: "/start"})
	assert.False(handled)
	assert.NoError(err)
	_, handled, _ = cmds.Handle(ctx, engine.Message{ChatID: testChat, SenderID: testAdmin, Text: "/on@someone_else_bot"})
	assert.False(handled)
}

func testConsumer(t *testing.T) (*TelegramConsumer, *fakeMessenger) {
	cmds, msgr, _ := testCommands(t)
	tc := &TelegramConsumer{
		Logger:    slog.Default(),
		Engine:    cmds.Engine,
		Commands:  cmds,
		Messenger: msgr,
	}
	return tc, msgr
}

func TestHandleMessage(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	tc, msgr := testConsumer(t)
	tc.DeleteLimiter = newTestLimiter()

	require.NoError(tc.Engine.Rules.SetEnabled(ctx, testChat, true))

	tc.HandleMessage(ctx, engine.Message{ChatID: testChat, MessageID: 1, SenderID: testUser, Text: "hi all"})
	tc.HandleMessage(ctx, engine.Message{ChatID: testChat, MessageID: 2, SenderID: testUser, Text: "hi all"})
	tc.HandleMessage(ctx, engine.Message{ChatID: testChat, MessageID: 3, SenderID: testUser, Text: "join t.me/promo"})
	tc.HandleMessage(ctx, engine.Message{ChatID: testChat, MessageID: 4, SenderID: testUser, Text: "/off"})
	tc.pending.Wait()

	assert.Equal([]engine.DeleteMessage{
		{ChatID: testChat, MessageID: 2},
		{ChatID: testChat, MessageID: 3},
	}, sortedDeletes(msgr.Deleted()))

	// the refused command got a reply, and was not classified
	sent := msgr.Sent()
	require.Len(sent, 1)
	assert.Equal(testChat, sent[0].ChatID)
	assert.True(tc.Engine.Rules.GetRuleSet(ctx, testChat).Enabled)
}

func TestHandleMessageDeleteFailure(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	tc, msgr := testConsumer(t)
	tc.DeleteLimiter = newTestLimiter()
	msgr.deleteErr = errors.New("message can't be deleted")

	require.NoError(tc.Engine.Rules.SetEnabled(ctx, testChat, true))
	tc.HandleMessage(ctx, engine.Message{ChatID: testChat, MessageID: 1, Text: "vcs"})
	tc.pending.Wait()

	// nothing retried, nothing sent to the chat
	assert.Empty(msgr.Deleted())
	assert.Empty(msgr.Sent())
}

func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

func sortedDeletes(in []engine.DeleteMessage) []engine.DeleteMessage {
	slices.SortFunc(in, func(a, b engine.DeleteMessage) int { return a.MessageID - b.MessageID })
	return in
}

// returns one batch of updates, then blocks until cancelled
type fakeUpdates struct {
	mu      sync.Mutex
	batches [][]models.Update
	offsets []int64
}

func (f *fakeUpdates) GetUpdates(ctx context.Context, offset int64, timeout int) ([]models.Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	if len(f.batches) > 0 {
		b := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return b, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func groupUpdate(id int64, chatType string, msgID int, text string) models.Update {
	return models.Update{
		ID: id,
		Message: &models.Message{
			ID:   msgID,
			Chat: models.Chat{ID: testChat, Type: models.ChatType(chatType)},
			From: &models.User{ID: testUser},
			Text: text,
		},
	}
}

func TestConsumerRun(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	tc, msgr := testConsumer(t)
	// cache reapers started by the fixtures live for the whole process
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	tc.DeleteLimiter = newTestLimiter()

	require.NoError(tc.Engine.Rules.SetEnabled(context.Background(), testChat, true))
	src := &fakeUpdates{batches: [][]models.Update{{
		groupUpdate(10, "supergroup", 100, "visit https://spam.example"),
		groupUpdate(11, "private", 101, "visit https://spam.example"),
		{ID: 12},
		groupUpdate(13, "group", 102, "good morning"),
	}}}
	tc.Updates = src

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tc.Run(ctx) }()

	assert.Eventually(func() bool { return len(msgr.Deleted()) == 1 }, time.Second, time.Millisecond)
	assert.Eventually(func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.offsets) >= 2
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(<-done)

	assert.Equal([]engine.DeleteMessage{{ChatID: testChat, MessageID: 100}}, msgr.Deleted())
	src.mu.Lock()
	assert.Equal([]int64{0, 14}, src.offsets[:2])
	src.mu.Unlock()
}
