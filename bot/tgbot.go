package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"Genie/core"
	"Genie/lib/sl"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

const maxMessageLength = 4096

type EventHandler interface {
	Handle(ctx context.Context, ev core.Event)
}

type TgBot struct {
	conf        *core.Config
	log         *slog.Logger
	api         *tgbotapi.BotAPI
	handler     EventHandler
	queue       *Queue
	botUsername string
}

func NewTgBot(conf *core.Config, log *slog.Logger) (*TgBot, error) {
	tgBot := &TgBot{
		conf:        conf,
		log:         log.With(sl.Module("tgbot")),
		botUsername: conf.Username,
	}

	api, err := tgbotapi.NewBotAPI(conf.TelegramApiKey)
	if err != nil {
		return nil, fmt.Errorf("creating bot api: %w", err)
	}
	tgBot.api = api
	if tgBot.botUsername == "" {
		tgBot.botUsername = api.Self.UserName
	}

	return tgBot, nil
}

// SetHandler set event handler and the queue it runs on
func (t *TgBot) SetHandler(handler EventHandler, queue *Queue) {
	t.handler = handler
	t.queue = queue
}

func (t *TgBot) Username() string {
	return t.botUsername
}

// StartPolling receives updates with long polling until ctx is done.
func (t *TgBot) StartPolling(ctx context.Context) error {
	if _, err := t.api.RemoveWebhook(); err != nil {
		t.log.Warn("removing webhook", sl.Err(err))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates, err := t.api.GetUpdatesChan(u)
	if err != nil {
		return fmt.Errorf("getting updates: %w", err)
	}
	t.log.Info("polling for updates")

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.HandleUpdate(update)
		}
	}
}

// SetWebhook registers url with Telegram; updates then arrive through HandleUpdate.
func (t *TgBot) SetWebhook(url string) error {
	if _, err := t.api.SetWebhook(tgbotapi.NewWebhook(url)); err != nil {
		return fmt.Errorf("setting webhook: %w", err)
	}
	t.log.With(slog.String("url", url[:strings.LastIndex(url, "/")+1]+"***")).Info("webhook set")
	return nil
}

type menuCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// menu is what Telegram clients list behind the "/" button.
var menu = []menuCommand{
	{"start", "Start the bot"},
	{"account", "Your profile and quota"},
	{"photo", "Create an image"},
	{"ref", "Invite friends and earn bonus images"},
	{"nano", "Fast chat model"},
	{"pro", "Smart chat model"},
	{"help", "List of commands"},
}

// SetCommands publishes the command menu. The bot works without it, so
// callers only log a failure.
func (t *TgBot) SetCommands() error {
	data, err := json.Marshal(menu)
	if err != nil {
		return fmt.Errorf("encoding commands: %w", err)
	}
	if _, err = t.api.MakeRequest("setMyCommands", url.Values{"commands": {string(data)}}); err != nil {
		return fmt.Errorf("setting commands: %w", err)
	}
	t.log.With(slog.Int("commands", len(menu))).Info("command menu set")
	return nil
}

func (t *TgBot) HandleUpdate(update tgbotapi.Update) {
	if update.Message == nil {
		return
	}
	ev, ok := t.toEvent(update.Message)
	if !ok {
		return
	}

	t.log.With(
		sl.User(ev.UserId),
		slog.String("command", ev.Command),
		sl.Short("text", ev.Text),
	).Debug("incoming message")

	t.queue.Push(ev.UserId, func(ctx context.Context) {
		t.handler.Handle(ctx, ev)
	})
}

// toEvent drops messages that are not addressed to the bot: in groups the bot
// answers commands, mentions and replies to its own messages only.
func (t *TgBot) toEvent(incoming *tgbotapi.Message) (core.Event, bool) {
	if incoming.From == nil || incoming.Chat == nil {
		return core.Event{}, false
	}
	chat := incoming.Chat
	if !incoming.IsCommand() && !chat.IsPrivate() && !t.isMentioned(incoming.Text) && !t.isReplyToBot(incoming) {
		return core.Event{}, false
	}

	ev := core.Event{
		UserId: int64(incoming.From.ID),
		ChatId: chat.ID,
		Name:   displayName(incoming.From),
		Text:   strings.TrimSpace(incoming.Text),
	}
	if incoming.IsCommand() {
		ev.Command = strings.ToLower(incoming.Command())
		ev.Text = strings.TrimSpace(incoming.CommandArguments())
		if ev.Command == "start" {
			ev.ReferralArg = ev.Text
		}
	} else if t.botUsername != "" {
		ev.Text = strings.TrimSpace(strings.ReplaceAll(ev.Text, "@"+t.botUsername, ""))
	}
	return ev, true
}

func displayName(user *tgbotapi.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" && user.UserName != "" {
		name = "@" + user.UserName
	}
	return name
}

// detect if we are mentioned in the message
func (t *TgBot) isMentioned(text string) bool {
	if t.botUsername != "" {
		return strings.Contains(text, "@"+t.botUsername)
	}
	return false
}

// detect if message is a reply to a message from the bot
func (t *TgBot) isReplyToBot(message *tgbotapi.Message) bool {
	if message.ReplyToMessage != nil && message.ReplyToMessage.From != nil {
		return message.ReplyToMessage.From.UserName == t.botUsername
	}
	return false
}

func (t *TgBot) Send(reply core.Reply) error {
	if len(reply.Image) > 0 {
		photo := tgbotapi.NewPhotoUpload(reply.ChatId, tgbotapi.FileBytes{Name: "image.png", Bytes: reply.Image})
		photo.Caption = reply.Text
		photo.ReplyMarkup = replyMarkup(reply.Keyboard)
		if _, err := t.api.Send(photo); err != nil {
			return fmt.Errorf("sending photo: %w", err)
		}
		return nil
	}

	parts := splitText(reply.Text, maxMessageLength)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(reply.ChatId, part)
		if i == len(parts)-1 {
			msg.ReplyMarkup = replyMarkup(reply.Keyboard)
		}
		if _, err := t.api.Send(msg); err != nil {
			return fmt.Errorf("sending message: %w", err)
		}
	}
	return nil
}

// Busy repeats the chat action every 5 seconds, Telegram shows one for about that long.
func (t *TgBot) Busy(chatId int64, action string) func() {
	stop := make(chan struct{})
	var once sync.Once

	t.chatAction(chatId, action)
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.chatAction(chatId, action)
			case <-stop:
				return
			}
		}
	}()

	return func() {
		once.Do(func() { close(stop) })
	}
}

func (t *TgBot) chatAction(chatId int64, action string) {
	if _, err := t.api.Send(tgbotapi.NewChatAction(chatId, action)); err != nil {
		t.log.Debug("sending chat action", sl.Err(err))
	}
}

func replyMarkup(keyboard core.Keyboard) interface{} {
	switch keyboard {
	case core.KeyboardMain:
		markup := tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(buttonImage),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(buttonProfile),
				tgbotapi.NewKeyboardButton(buttonInvite),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(buttonAbout),
			),
		)
		markup.ResizeKeyboard = true
		return markup
	case core.KeyboardTerms:
		markup := tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(buttonAccept),
			),
		)
		markup.ResizeKeyboard = true
		markup.OneTimeKeyboard = true
		return markup
	}
	return nil
}

// splitText cuts text into pieces of at most limit runes, preferring line breaks.
func splitText(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
