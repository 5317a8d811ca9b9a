package notifier

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/good-yellow-bee/climalert/internal/models"
)

// TelegramConfig holds Telegram Bot API configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	APIBase  string // optional, defaults to https://api.telegram.org
}

// Validate validates the Telegram configuration.
func (c *TelegramConfig) Validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return errors.New("telegram bot token is required")
	}
	if strings.TrimSpace(c.ChatID) == "" {
		return errors.New("telegram chat_id is required")
	}
	return nil
}

// TelegramNotifier sends alerts to a Telegram chat.
type TelegramNotifier struct {
	client *tgbot.Bot
	chatID any
}

// NewTelegramNotifier creates a Telegram notifier. No network call is made.
func NewTelegramNotifier(config TelegramConfig) (*TelegramNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telegram config: %w", err)
	}

	options := []tgbot.Option{tgbot.WithSkipGetMe()}
	if base := strings.TrimRight(config.APIBase, "/"); base != "" {
		options = append(options, tgbot.WithServerURL(base))
	}
	client, err := tgbot.New(config.BotToken, options...)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramNotifier{client: client, chatID: normalizeChatID(config.ChatID)}, nil
}

// Name returns "telegram".
func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// Send posts one alert message to the chat.
func (t *TelegramNotifier) Send(ctx context.Context, ev models.AlertEvent) error {
	sent, err := t.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      telegramText(ev),
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return errors.New("telegram send returned empty message id")
	}
	return nil
}

// Close is a no-op for Telegram notifier.
func (t *TelegramNotifier) Close() error {
	return nil
}

func telegramText(ev models.AlertEvent) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(title(ev)))
	b.WriteString("</b>\n")
	fmt.Fprintf(&b, "%s | %s\n", html.EscapeString(ev.TemperatureSummary), html.EscapeString(ev.Humidity))
	b.WriteString(html.EscapeString(truncate(ev.Description, 3500)))
	fmt.Fprintf(&b, "\n<i>%s</i>", ev.OccurredAt.Format(timeLayout))
	return b.String()
}

// normalizeChatID converts numeric chat IDs to int64 and keeps @channel
// names as strings.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}
