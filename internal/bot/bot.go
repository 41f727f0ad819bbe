package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/bankwatch/internal/inbox"
	"github.com/xaenox/bankwatch/internal/models"
	"github.com/xaenox/bankwatch/internal/notify"
	"github.com/xaenox/bankwatch/internal/retrieval"
)

// Telegram rejects longer messages.
const maxMessageLength = 4096

const (
	defaultListLimit = 10
	maxListLimit     = 50
	permissionWait   = 5 * time.Minute
)

// API is the part of tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Bot struct {
	api      API
	plugin   *inbox.Plugin
	prompter *Prompter
	chatID   int64
	logger   *zap.Logger
}

// NewAPI connects to Telegram with token.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return api, nil
}

// New builds a bot serving chatID. A zero chatID accepts every chat, which
// is only sensible for local testing. prompter may be nil when the
// permission mode does not prompt.
func New(api API, plugin *inbox.Plugin, prompter *Prompter, chatID int64, logger *zap.Logger) *Bot {
	return &Bot{
		api:      api,
		plugin:   plugin,
		prompter: prompter,
		chatID:   chatID,
		logger:   logger,
	}
}

// Run consumes updates until ctx ends.
func (b *Bot) Run(ctx context.Context, api *tgbotapi.BotAPI) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	b.logger.Info("Bot started", zap.String("username", api.Self.UserName))
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("update channel closed")
			}
			go b.HandleUpdate(ctx, update)
		}
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) authorized(chatID int64) bool {
	return b.chatID == 0 || chatID == b.chatID
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if !b.authorized(message.Chat.ID) {
		b.logger.Warn("Message from unauthorized chat", zap.Int64("chat_id", message.Chat.ID))
		b.sendMessage(message.Chat.ID, "This bot is private.")
		return
	}
	if !message.IsCommand() {
		b.sendMessage(message.Chat.ID, "Use /help to see available commands.")
		return
	}
	b.handleCommand(ctx, message)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start", "help":
		b.handleHelp(message)
	case "messages":
		b.handleMessages(ctx, message)
	case "bank":
		b.handleBank(ctx, message)
	case "listen":
		b.handleListen(ctx, message)
	case "unlisten":
		b.handleUnlisten(message)
	case "permission":
		b.handlePermission(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/messages [n] - Show the n most recent inbox messages
/bank [days] - Show bank transaction messages from the last days (default 30)
/listen - Notify me about new transactions
/unlisten - Stop notifications
/permission - Grant access to the message store`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleMessages(ctx context.Context, message *tgbotapi.Message) {
	limit, err := parseCount(message.CommandArguments(), defaultListLimit, maxListLimit)
	if err != nil {
		b.sendMessage(message.Chat.ID, "Usage: /messages [n]")
		return
	}

	res, err := b.plugin.GetMessages(ctx, inbox.MessagesRequest{Limit: limit})
	if err != nil {
		b.sendQueryError(message.Chat.ID, err)
		return
	}
	b.sendList(message.Chat.ID, "*Recent messages:*", "No messages yet.", res.Messages)
}

func (b *Bot) handleBank(ctx context.Context, message *tgbotapi.Message) {
	days, err := parseCount(message.CommandArguments(), models.DefaultDays, 365)
	if err != nil {
		b.sendMessage(message.Chat.ID, "Usage: /bank [days]")
		return
	}

	res, err := b.plugin.GetBankMessages(ctx, inbox.BankMessagesRequest{Limit: maxListLimit, Days: days})
	if err != nil {
		b.sendQueryError(message.Chat.ID, err)
		return
	}
	header := fmt.Sprintf("*Bank messages, last %d days:*", days)
	b.sendList(message.Chat.ID, header, "No bank transactions found.", res.Messages)
}

func (b *Bot) handleListen(ctx context.Context, message *tgbotapi.Message) {
	if b.plugin.Listening() {
		b.sendMessage(message.Chat.ID, "Already listening.")
		return
	}
	// The watcher outlives this update, so it must not inherit a request scope.
	res, err := b.plugin.StartListening(context.WithoutCancel(ctx))
	if err != nil || !res.Success {
		b.logger.Error("Failed to start listening", zap.Error(err))
		b.sendErrorMessage(message.Chat.ID, "Couldn't start listening.")
		return
	}
	b.sendMessage(message.Chat.ID, "Listening for new transactions.")
}

func (b *Bot) handleUnlisten(message *tgbotapi.Message) {
	if !b.plugin.StopListening().Success {
		b.sendErrorMessage(message.Chat.ID, "Couldn't stop listening.")
		return
	}
	b.sendMessage(message.Chat.ID, "Stopped listening.")
}

func (b *Bot) handlePermission(ctx context.Context, message *tgbotapi.Message) {
	if b.plugin.CheckPermission(ctx).Granted {
		b.sendMessage(message.Chat.ID, "Message access is already granted.")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, permissionWait)
	defer cancel()

	res, err := b.plugin.RequestPermission(ctx)
	if err != nil {
		b.logger.Warn("Permission request unanswered", zap.Error(err))
		b.sendMessage(message.Chat.ID, "Permission request expired.")
		return
	}
	if res.Granted {
		b.sendMessage(message.Chat.ID, "Message access granted.")
	} else {
		b.sendMessage(message.Chat.ID, "Message access denied.")
	}
}

func (b *Bot) handleCallback(query *tgbotapi.CallbackQuery) {
	text := "Expired"
	if query.Message != nil && b.authorized(query.Message.Chat.ID) && b.prompter != nil {
		if granted, ok := b.prompter.Resolve(query.Data); ok {
			text = "Denied"
			if granted {
				text = "Allowed"
			}
		}
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, text)); err != nil {
		b.logger.Error("Failed to answer callback", zap.Error(err), zap.String("callback_id", query.ID))
	}
}

func parseCount(arg string, def, max int) (int, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return def, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid count %q", arg)
	}
	if n > max {
		n = max
	}
	return n, nil
}

func formatMessage(m models.Message) string {
	date := time.UnixMilli(m.Date).Format("02 Jan 15:04")
	return fmt.Sprintf("*%s* _%s_\n%s", notify.EscapeMarkdown(m.Address), notify.EscapeMarkdown(date), notify.EscapeMarkdown(m.Body))
}

func (b *Bot) sendList(chatID int64, header, empty string, messages []models.Message) {
	if len(messages) == 0 {
		b.sendMessage(chatID, empty)
		return
	}

	response := header + "\n\n"
	for i, m := range messages {
		entry := formatMessage(m) + "\n\n"
		if len(response)+len(entry) > maxMessageLength-64 {
			response += notify.EscapeMarkdown(fmt.Sprintf("... and %d more", len(messages)-i))
			break
		}
		response += entry
	}

	msg := tgbotapi.NewMessage(chatID, response)
	msg.ParseMode = "MarkdownV2"
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message list",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendQueryError(chatID int64, err error) {
	switch {
	case errors.Is(err, retrieval.ErrPermissionDenied):
		b.sendErrorMessage(chatID, "Message access is not granted. Use /permission first.")
	case errors.Is(err, retrieval.ErrStoreUnavailable):
		b.logger.Error("Message store unavailable", zap.Error(err))
		b.sendErrorMessage(chatID, "The message store is unavailable. Please try again later.")
	default:
		b.logger.Error("Query failed", zap.Error(err))
		b.sendErrorMessage(chatID, "Sorry, I couldn't read your messages.")
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
