package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const DefaultAPIHost = "https://api.telegram.org"

// Outbound messaging operations the consumer and command layer need from the chat platform.
type Messenger interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendMessage(ctx context.Context, chatID int64, text string) error
	// returns the user IDs of the chat's administrators (including the owner)
	ChatAdministrators(ctx context.Context, chatID int64) ([]int64, error)
}

// Telegram Bot API client. Typed calls go through the go-telegram SDK; getUpdates and getChatAdministrators are done with raw HTTP, since the SDK keeps its polling loop private and we only need a sliver of the member objects.
type BotClient struct {
	token      string
	apiHost    string
	httpClient *http.Client
	sdk        *bot.Bot
}

var _ Messenger = (*BotClient)(nil)

func NewBotClient(token, apiHost string) (*BotClient, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if apiHost == "" {
		apiHost = DefaultAPIHost
	}
	apiHost = strings.TrimRight(apiHost, "/")
	httpClient := newAPIHTTPClient(90 * time.Second)
	opts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(90*time.Second, httpClient),
	}
	if apiHost != DefaultAPIHost {
		opts = append(opts, bot.WithServerURL(apiHost))
	}
	sdk, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot sdk: %w", err)
	}
	return &BotClient{
		token:      token,
		apiHost:    apiHost,
		httpClient: httpClient,
		sdk:        sdk,
	}, nil
}

func (b *BotClient) botURL() string {
	return b.apiHost + "/bot" + b.token
}

// Calls a Bot API method with JSON params, decoding the "result" field of the response in to "out".
func (b *BotClient) callRaw(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.botURL()+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error method=%s status=%d body=%s", method, resp.StatusCode, string(respBody))
	}

	var result struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram API returned ok=false method=%s: %s", method, result.Description)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result.Result, out); err != nil {
		return fmt.Errorf("unmarshal %s result: %w", method, err)
	}
	return nil
}

// Long-polls for updates after the given offset.
func (b *BotClient) GetUpdates(ctx context.Context, offset int64, timeout int) ([]models.Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         timeout,
		"limit":           100,
		"allowed_updates": []string{"message"},
	}
	var updates []models.Update
	if err := b.callRaw(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

type chatMember struct {
	Status string `json:"status"`
	User   struct {
		ID int64 `json:"id"`
	} `json:"user"`
}

func (b *BotClient) ChatAdministrators(ctx context.Context, chatID int64) ([]int64, error) {
	var members []chatMember
	if err := b.callRaw(ctx, "getChatAdministrators", map[string]any{"chat_id": chatID}, &members); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.User.ID)
	}
	return ids, nil
}

func (b *BotClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := b.sdk.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (b *BotClient) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_, err := b.sdk.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
