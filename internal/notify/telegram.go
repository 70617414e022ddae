// Package notify pushes anomaly alerts to operators via the Telegram Bot API.
package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/BarirNada00/AquaWatch-Ms/internal/models"
)

// Client sends anomaly notifications to a single chat.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a Telegram client for the given bot token and chat.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// Notify sends one message summarizing a detection batch.
func (c *Client) Notify(anomalies []models.Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}
	return c.sendMarkdownV2(formatMessage(anomalies))
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

func typeEmoji(anomalyType string) string {
	switch anomalyType {
	case models.TypeSpike:
		return "📈"
	case models.TypeDrift:
		return "🌊"
	case models.TypeDropout:
		return "🔇"
	}
	return "⚠️"
}

// formatMessage renders a detection batch as a Telegram MarkdownV2 message.
func formatMessage(anomalies []models.Anomaly) string {
	message := "🚨 *Water Quality Anomalies*\n\n"
	dateStr := escapeMarkdownV2(anomalies[0].Timestamp.Format("2006-01-02 15:04:05"))
	message += fmt.Sprintf("📅 Detected: %s\n\n", dateStr)

	for i, a := range anomalies {
		detail := escapeMarkdownV2(fmt.Sprintf("%s=%.2f", a.Parameter, a.Value))
		if a.Type == models.TypeDropout && a.DurationSeconds != nil {
			detail = escapeMarkdownV2(fmt.Sprintf("silent for %.1fs", *a.DurationSeconds))
		}
		message += fmt.Sprintf("%d\\. %s *%s* `%s` \\(%s\\)\n",
			i+1, typeEmoji(a.Type), escapeMarkdownV2(a.Type),
			escapeMarkdownV2(a.SensorID), detail)
	}

	return message
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
