package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/bankwatch/internal/models"
)

// TelegramSender is the part of *tgbotapi.BotAPI the sink needs.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink posts notifications into a chat.
type TelegramSink struct {
	api    TelegramSender
	chatID int64
	logger *zap.Logger
}

func NewTelegramSink(api TelegramSender, chatID int64, logger *zap.Logger) *TelegramSink {
	return &TelegramSink{api: api, chatID: chatID, logger: logger}
}

func (s *TelegramSink) Notify(ctx context.Context, n models.Notification) error {
	msg := tgbotapi.NewMessage(s.chatID, FormatMarkdown(n))
	msg.ParseMode = "MarkdownV2"

	if _, err := s.api.Send(msg); err != nil {
		s.logger.Error("Failed to send notification",
			zap.Error(err),
			zap.Int64("chat_id", s.chatID),
			zap.String("notification_id", n.ID))
		return fmt.Errorf("telegram notify: %w", err)
	}
	return nil
}

// FormatMarkdown renders a notification for Telegram MarkdownV2.
func FormatMarkdown(n models.Notification) string {
	when := time.UnixMilli(n.Date).Format("02 Jan 2006 15:04")
	text := fmt.Sprintf("💳 *%s*\n", EscapeMarkdown(n.Address))
	text += fmt.Sprintf("_%s_\n", EscapeMarkdown(when))
	text += EscapeMarkdown(n.Body)
	return text
}

// EscapeMarkdown escapes the characters MarkdownV2 reserves.
func EscapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}
