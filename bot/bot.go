package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/korjavin/commitquizbot/quiz"
	"github.com/korjavin/commitquizbot/scheduler"
)

// API is the part of tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handler is the transport-agnostic quiz logic.
type Handler interface {
	Command(ctx context.Context, c quiz.Caller, cmd string, args []string) quiz.Reply
	Callback(ctx context.Context, c quiz.Caller, data string) quiz.Reply
	Fire(ctx context.Context, ev scheduler.Event) (quiz.Reply, bool)
}

// Bot routes Telegram updates and reminder events to the quiz handler.
type Bot struct {
	api     API
	handler Handler
	limiter *rate.Limiter
	log     *zap.Logger
}

// New creates a new bot instance
func New(api API, handler Handler, log *zap.Logger) *Bot {
	return &Bot{
		api:     api,
		handler: handler,
		// Telegram allows about 30 messages per second per bot.
		limiter: rate.NewLimiter(rate.Every(40*time.Millisecond), 10),
		log:     log.Named("bot"),
	}
}

// Run consumes updates and reminder events until ctx is done or updates is
// closed. Work for one user is handled in receipt order.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update, events <-chan scheduler.Event) error {
	d := NewDispatcher(ctx, b.log)
	defer d.Close()

	b.log.Info("bot started")
	for {
		select {
		case <-ctx.Done():
			b.log.Info("bot stopping")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.route(d, update)
		case ev := <-events:
			d.Submit(ev.UserID, func(ctx context.Context) { b.handleEvent(ctx, ev) })
		}
	}
}

func (b *Bot) route(d *Dispatcher, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		cb := update.CallbackQuery
		d.Submit(cb.From.ID, func(ctx context.Context) { b.handleCallback(ctx, cb) })
	case update.Message != nil && update.Message.From != nil:
		msg := update.Message
		d.Submit(msg.From.ID, func(ctx context.Context) { b.handleMessage(ctx, msg) })
	}
}

// handleMessage processes incoming messages
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if !message.IsCommand() {
		if message.Chat.IsPrivate() {
			b.sendText(ctx, message.Chat.ID, "Unknown command. Use /daily to start today's quiz or /help for everything else.")
		}
		return
	}

	caller := quiz.Caller{UserID: message.From.ID, ChatID: message.Chat.ID, DisplayName: displayName(message.From)}
	b.log.Debug("command",
		zap.Int64("user_id", caller.UserID),
		zap.Int64("chat_id", caller.ChatID),
		zap.String("command", message.Command()))

	reply := b.handler.Command(ctx, caller, message.Command(), strings.Fields(message.CommandArguments()))
	b.send(ctx, caller.ChatID, 0, reply)
}

// handleCallback processes callback queries from inline buttons
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Acknowledge first so the client stops its spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn("callback ack failed", zap.Error(err))
	}
	if cb.Message == nil {
		return
	}

	caller := quiz.Caller{UserID: cb.From.ID, ChatID: cb.Message.Chat.ID, DisplayName: displayName(cb.From)}
	b.log.Debug("callback", zap.Int64("user_id", caller.UserID), zap.String("data", cb.Data))

	reply := b.handler.Callback(ctx, caller, cb.Data)
	b.send(ctx, caller.ChatID, cb.Message.MessageID, reply)
}

func (b *Bot) handleEvent(ctx context.Context, ev scheduler.Event) {
	reply, ok := b.handler.Fire(ctx, ev)
	if !ok {
		return
	}
	b.log.Info("reminder delivered", zap.Int64("user_id", ev.UserID), zap.Bool("catch_up", ev.CatchUp))
	b.send(ctx, ev.ChatID, 0, reply)
}

// send delivers reply to chatID, editing messageID when the reply asks for
// it. Markdown that Telegram rejects is resent as plain text.
func (b *Bot) send(ctx context.Context, chatID int64, messageID int, reply quiz.Reply) {
	if reply.Text == "" {
		return
	}
	parseMode := ""
	if reply.Markdown {
		parseMode = tgbotapi.ModeMarkdown
	}

	err := b.deliver(ctx, chatID, messageID, reply, parseMode)
	if err != nil && parseMode != "" {
		b.log.Warn("markdown rendering failed, falling back to plain text", zap.Int64("chat_id", chatID), zap.Error(err))
		err = b.deliver(ctx, chatID, messageID, reply, "")
	}
	if err != nil {
		b.log.Error("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) deliver(ctx context.Context, chatID int64, messageID int, reply quiz.Reply, parseMode string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	var c tgbotapi.Chattable
	if reply.Edit && messageID != 0 {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, reply.Text)
		edit.ParseMode = parseMode
		if len(reply.Keyboard) > 0 {
			markup := keyboard(reply.Keyboard)
			edit.ReplyMarkup = &markup
		}
		c = edit
	} else {
		msg := tgbotapi.NewMessage(chatID, reply.Text)
		msg.ParseMode = parseMode
		if len(reply.Keyboard) > 0 {
			msg.ReplyMarkup = keyboard(reply.Keyboard)
		}
		c = msg
	}
	_, err := b.api.Send(c)
	return err
}

func (b *Bot) sendText(ctx context.Context, chatID int64, text string) {
	b.send(ctx, chatID, 0, quiz.Reply{Text: text})
}

func keyboard(rows [][]quiz.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data))
		}
		out = append(out, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.UserName != "" {
		return u.UserName
	}
	return fmt.Sprintf("User %d", u.ID)
}
