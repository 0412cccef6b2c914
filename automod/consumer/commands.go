package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/antigcast/antigcast/automod/cachestore"
	"github.com/antigcast/antigcast/automod/countstore"
	"github.com/antigcast/antigcast/automod/engine"
	"github.com/antigcast/antigcast/automod/rulestore"
)

var ErrNotAdmin = errors.New("command sender is not a chat administrator")

// cachestore namespace for per-chat administrator ID lists
const adminCacheName = "chat-admins"

// TTL for cached administrator lists
var AdminCacheTTL = 10 * time.Minute

const helpText = `Available commands:
/on - enable anti-gcast in this chat
/off - disable anti-gcast in this chat
/addbl <term> - add a blacklist term
/delbl <term> - remove a blacklist term
/listbl - list blacklist terms
/addwhite <term> - add a whitelist term
/delwhite <term> - remove a whitelist term
/listwhite - list whitelist terms
/stats - message statistics for this chat
/help - show this help`

// Administrator chat commands for managing a chat's ruleset.
type Commands struct {
	Logger    *slog.Logger
	Engine    *engine.Engine
	Messenger Messenger
	// administrator lists are cached here
	Cache cachestore.CacheStore
	// the bot's own username, without '@'; commands addressed to other bots are ignored
	BotUsername string
}

// Splits a "/command@botname argument" message in to its command name (lower-case, without slash) and trimmed argument.
//
// Returns false for messages which aren't commands, or are commands addressed to a different bot.
func ParseCommand(text, botUsername string) (string, string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, arg, _ := strings.Cut(text[1:], " ")
	name, target, addressed := strings.Cut(head, "@")
	if addressed && botUsername != "" && !strings.EqualFold(target, botUsername) {
		return "", "", false
	}
	name = strings.ToLower(name)
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(arg), true
}

func isKnownCommand(name string) bool {
	switch name {
	case "on", "off", "addbl", "delbl", "listbl", "addwhite", "delwhite", "listwhite", "stats", "help":
		return true
	}
	return false
}

// Checks the sender against the chat's administrators, which are fetched from the platform and cached per chat.
func (c *Commands) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	key := strconv.FormatInt(chatID, 10)
	var admins []int64
	ok, err := cachestore.GetJSON(ctx, c.Cache, adminCacheName, key, &admins)
	if err != nil {
		c.Logger.Warn("reading cached chat admins", "chat", chatID, "err", err)
	}
	if !ok {
		admins, err = c.Messenger.ChatAdministrators(ctx, chatID)
		if err != nil {
			return false, fmt.Errorf("fetching chat administrators: %w", err)
		}
		if err := cachestore.SetJSON(ctx, c.Cache, adminCacheName, key, admins); err != nil {
			c.Logger.Warn("caching chat admins", "chat", chatID, "err", err)
		}
	}
	return slices.Contains(admins, userID), nil
}

// Executes a command message, returning the reply text to send back to the chat. A false second return means the message was not a command for this bot and should be processed as a regular message.
//
// Errors (including ErrNotAdmin and wrapped modcache.ErrStaleWrite) are returned along with a user-facing reply.
func (c *Commands) Handle(ctx context.Context, msg engine.Message) (string, bool, error) {
	name, arg, ok := ParseCommand(msg.Text, c.BotUsername)
	if !ok || !isKnownCommand(name) {
		return "", false, nil
	}
	logger := c.Logger.With("chat", msg.ChatID, "user", msg.SenderID, "command", name)

	if name == "help" {
		return helpText, true, nil
	}

	// anonymous administrators post as the chat, and aren't in the administrator list under their own ID
	if !msg.SentAsChat {
		if msg.SenderID == 0 {
			return "Unable to verify the sender.", true, ErrNotAdmin
		}
		admin, err := c.IsAdmin(ctx, msg.ChatID, msg.SenderID)
		if err != nil {
			logger.Warn("admin check failed", "err", err)
			return "Unable to verify administrators right now, please try again.", true, err
		}
		if !admin {
			return "Only chat administrators can use this command.", true, ErrNotAdmin
		}
	}

	rules := c.Engine.Rules
	switch name {
	case "on", "off":
		enabled := name == "on"
		if err := rules.SetEnabled(ctx, msg.ChatID, enabled); err != nil {
			logger.Error("updating enabled flag", "err", err)
			return "Failed to save the setting, please try again.", true, err
		}
		logger.Info("chat moderation toggled", "enabled", enabled)
		if enabled {
			return "Anti-gcast enabled.", true, nil
		}
		return "Anti-gcast disabled.", true, nil
	case "addbl", "addwhite", "delbl", "delwhite":
		kind := rulestore.DenyList
		listName := "blacklist"
		if strings.HasSuffix(name, "white") {
			kind = rulestore.AllowList
			listName = "whitelist"
		}
		term, err := rulestore.NormalizeTerm(arg)
		if err != nil {
			return fmt.Sprintf("Usage: /%s <term>", name), true, err
		}
		if strings.HasPrefix(name, "add") {
			if err := rules.AddTerm(ctx, msg.ChatID, kind, term); err != nil {
				logger.Error("adding term", "kind", kind, "err", err)
				return fmt.Sprintf("Failed to update the %s, please try again.", listName), true, err
			}
			logger.Info("term added", "kind", kind)
			return fmt.Sprintf("Added to %s: %s", listName, term), true, nil
		}
		if err := rules.RemoveTerm(ctx, msg.ChatID, kind, term); err != nil {
			logger.Error("removing term", "kind", kind, "err", err)
			return fmt.Sprintf("Failed to update the %s, please try again.", listName), true, err
		}
		logger.Info("term removed", "kind", kind)
		return fmt.Sprintf("Removed from %s: %s", listName, term), true, nil
	case "listbl":
		return formatTermList("Blacklist", rules.GetRuleSet(ctx, msg.ChatID).Denylist), true, nil
	case "listwhite":
		return formatTermList("Whitelist", rules.GetRuleSet(ctx, msg.ChatID).Allowlist), true, nil
	case "stats":
		stats, err := c.Engine.ChatStats(ctx, msg.ChatID)
		if err != nil {
			logger.Error("reading chat stats", "err", err)
			return "Statistics are unavailable right now.", true, err
		}
		return formatStats(stats), true, nil
	}
	return "", false, nil
}

func formatTermList(title string, terms []string) string {
	if len(terms) == 0 {
		return strings.ToLower(title) + " is empty."
	}
	var sb strings.Builder
	sb.WriteString(title + ":")
	for _, t := range terms {
		sb.WriteString("\n- " + t)
	}
	return sb.String()
}

func formatStats(stats engine.ChatStats) string {
	var sb strings.Builder
	sb.WriteString("Chat statistics:")
	for _, period := range []string{countstore.PeriodHour, countstore.PeriodDay, countstore.PeriodTotal} {
		ps := stats[period]
		fmt.Fprintf(&sb, "\n%s: %d messages from %d senders, %d duplicates and %d denylisted removed",
			period, ps.Messages, ps.Senders, ps.Suppressed[engine.ReasonDuplicate], ps.Suppressed[engine.ReasonDenylisted])
	}
	return sb.String()
}
