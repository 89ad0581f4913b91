package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"halftime_bot/internal/config"
	"halftime_bot/internal/league"
	"halftime_bot/internal/monitor"
	"halftime_bot/internal/state"
)

// longPollTimeout is the getUpdates wait in seconds.
const longPollTimeout = 30

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Poller runs poll cycles on demand and reports the loop state.
type Poller interface {
	Poll(ctx context.Context) bool
	Status() monitor.Status
}

// Bot is the Telegram bot that handles operator commands and sends alerts.
type Bot struct {
	api     telegramAPI
	sender  telegramAPI // alerts; HTTP timeout is REQUEST_TIMEOUT
	state   *state.State
	catalog *league.Catalog
	cfg     *config.Config
	poller  Poller
	log     *slog.Logger
	started time.Time

	// checks tracks /check cycles running off the update loop.
	checks sync.WaitGroup
}

// New creates a Bot with the configured Telegram token.
func New(cfg *config.Config, st *state.State, catalog *league.Catalog, log *slog.Logger) (*Bot, error) {
	pollClient := &http.Client{Timeout: longPollTimeout*time.Second + cfg.RequestTimeout}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramToken, tgbotapi.APIEndpoint, pollClient)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("authorized on telegram", "username", api.Self.UserName)

	sender, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramToken, tgbotapi.APIEndpoint,
		&http.Client{Timeout: cfg.RequestTimeout})
	if err != nil {
		return nil, fmt.Errorf("create alert sender: %w", err)
	}

	return &Bot{
		api:     api,
		sender:  sender,
		state:   st,
		catalog: catalog,
		cfg:     cfg,
		log:     log,
		started: time.Now(),
	}, nil
}

// SetPoller connects the poll loop used by /check and /status.
func (b *Bot) SetPoller(p Poller) {
	b.poller = p
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = longPollTimeout

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.checks.Wait()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cb := update.CallbackQuery; cb != nil {
		if !b.isAllowed(cb.From) {
			b.answerCallback(cb.ID, "Access denied.")
			return
		}
		b.handleCallback(ctx, cb)
		return
	}

	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}
	if !b.isAllowed(msg.From) {
		b.reply(msg.Chat.ID, "Access denied.")
		return
	}
	b.handleCommand(ctx, msg)
}

// isAllowed applies ALLOWED_USERS. Updates without a sender pass only when
// the list is empty.
func (b *Bot) isAllowed(u *tgbotapi.User) bool {
	if u == nil {
		return len(b.cfg.AllowedUsers) == 0
	}
	return b.cfg.IsUserAllowed(u.ID)
}

// Notify sends an alert to chatID. A send that has started is never
// abandoned: the returned error reflects whether Telegram got the message,
// and the sender's HTTP timeout bounds how long that takes.
func (b *Bot) Notify(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.sender.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

// SendMessage sends a text message to the given chat, logging failures.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "leagues":
		b.handleLeagues(chatID)
	case cmdAddLeague:
		b.handleAddLeague(ctx, chatID, args)
	case "removeleague":
		b.handleRemoveLeague(ctx, chatID, args)
	case "chatid":
		b.handleChatID(chatID)
	case "stats":
		b.handleStats(chatID)
	case "status":
		b.handleStatus(chatID)
	case "check":
		b.handleCheck(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
