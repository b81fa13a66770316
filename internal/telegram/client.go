// Package telegram provides a client for sending order-flow alert
// notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flowmon/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	minSeverity    models.Severity
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client. Alerts below minSeverity are
// not forwarded.
func NewClient(botToken, chatID string, minSeverity models.Severity, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
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
		minSeverity:    minSeverity,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	}
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

// NotifyError sends a cycle error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) NotifyError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Polling error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// NotifyRecovery sends a recovery notification after consecutive failures.
func (c *Client) NotifyRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Polling recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// NotifyAlerts forwards the alerts at or above the configured severity.
// Below-threshold cycles send nothing and return nil.
func (c *Client) NotifyAlerts(alerts []models.OrderFlowAlert) error {
	var notable []models.OrderFlowAlert
	for _, a := range alerts {
		if a.Severity.Rank() >= c.minSeverity.Rank() {
			notable = append(notable, a)
		}
	}
	if len(notable) == 0 {
		return nil
	}
	return c.sendMarkdownV2(c.formatAlerts(notable))
}

// formatAlerts formats alerts into a Telegram MarkdownV2 message.
func (c *Client) formatAlerts(alerts []models.OrderFlowAlert) string {
	message := "🚨 *Order\\-Flow Alerts*\n\n"

	dateStr := escapeMarkdownV2(alerts[0].Timestamp.Format("2006-01-02 15:04:05"))
	message += fmt.Sprintf("📅 Detected: %s\n\n", dateStr)

	for i, alert := range alerts {
		emoji := "🔔"
		switch alert.Type {
		case models.AlertLiquidationProxy:
			emoji = "💥"
		case models.AlertVolumeSpike:
			emoji = "📊"
		case models.AlertSpreadAnomaly:
			emoji = "↔️"
		}

		message += fmt.Sprintf("%d\\. %s *%s* \\[%s\\]\n", i+1, emoji,
			escapeMarkdownV2(alert.Title), escapeMarkdownV2(string(alert.Severity)))
		message += fmt.Sprintf("   %s\n\n", escapeMarkdownV2(alert.Description))
	}

	return message
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
