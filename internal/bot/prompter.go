package bot

import (
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const callbackPrefix = "perm:"

// Prompter asks for message access with an inline keyboard in the owner's
// chat. It satisfies permission.Prompter; the bot routes button presses back
// through Resolve.
type Prompter struct {
	api    API
	chatID int64
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]func(bool)
}

func NewPrompter(api API, chatID int64, logger *zap.Logger) *Prompter {
	return &Prompter{
		api:     api,
		chatID:  chatID,
		logger:  logger,
		pending: make(map[string]func(bool)),
	}
}

func (p *Prompter) Ask(respond func(granted bool)) {
	id := uuid.NewString()

	p.mu.Lock()
	p.pending[id] = respond
	p.mu.Unlock()

	msg := tgbotapi.NewMessage(p.chatID, "bankwatch wants to read your SMS inbox. Allow access?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Allow", callbackPrefix+id+":yes"),
			tgbotapi.NewInlineKeyboardButtonData("Deny", callbackPrefix+id+":no"),
		),
	)
	if _, err := p.api.Send(msg); err != nil {
		p.logger.Error("Failed to send permission prompt", zap.Error(err), zap.Int64("chat_id", p.chatID))
		p.take(id)
		respond(false)
	}
}

// Resolve answers the prompt named in callback data. ok is false for data
// that is not a pending prompt, including a second press on the same one.
func (p *Prompter) Resolve(data string) (granted bool, ok bool) {
	rest, found := strings.CutPrefix(data, callbackPrefix)
	if !found {
		return false, false
	}
	id, answer, found := strings.Cut(rest, ":")
	if !found || (answer != "yes" && answer != "no") {
		return false, false
	}

	respond := p.take(id)
	if respond == nil {
		return false, false
	}
	granted = answer == "yes"
	respond(granted)
	return granted, true
}

// Pending reports how many prompts await an answer.
func (p *Prompter) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Prompter) take(id string) func(bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	respond := p.pending[id]
	delete(p.pending, id)
	return respond
}
