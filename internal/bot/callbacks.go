package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"halftime_bot/internal/league"
)

const (
	cmdAddLeague = "addleague"

	cbToggleLeague  = "toggle_league"
	cbConfirmLeague = "confirm_leagues"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	action, arg, ok := ParseCallbackData(cb.Data)
	if !ok || cb.Message == nil || cb.Message.Chat == nil {
		b.answerCallback(cb.ID, "")
		return
	}
	chatID := cb.Message.Chat.ID

	var userID int64
	var username string
	if cb.From != nil {
		userID, username = cb.From.ID, cb.From.UserName
	}
	b.log.Info("callback",
		"action", action,
		"arg", arg,
		"chat_id", chatID,
		"user_id", userID,
		"username", username,
	)

	switch action {
	case cbToggleLeague:
		on, err := b.state.ToggleLeague(ctx, arg)
		if errors.Is(err, league.ErrUnknownLeague) {
			b.answerCallback(cb.ID, "Unknown league.")
			return
		}
		if err != nil {
			b.answerCallback(cb.ID, "Error.")
			b.log.Error("toggle league", "league", arg, "error", err)
			return
		}

		l, _ := b.catalog.Get(arg)
		mode := "off"
		if on {
			mode = "on"
		}
		b.answerCallback(cb.ID, fmt.Sprintf("%s: %s", l.Name, mode))

		edit := tgbotapi.NewEditMessageReplyMarkup(chatID, cb.Message.MessageID, b.leagueKeyboard())
		if _, err := b.api.Request(edit); err != nil {
			b.log.Error("update league keyboard", "chat_id", chatID, "error", err)
		}
	case cbConfirmLeague:
		b.answerCallback(cb.ID, "Saved.")
		edit := tgbotapi.NewEditMessageText(chatID, cb.Message.MessageID,
			FormatLeagueSelection(b.state.Leagues()))
		if _, err := b.api.Request(edit); err != nil {
			b.log.Error("confirm league selection", "chat_id", chatID, "error", err)
		}
	default:
		b.answerCallback(cb.ID, "")
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
}

// leagueKeyboard renders one checkbox button per catalog league.
func (b *Bot) leagueKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(b.catalog.All())+1)
	for _, l := range b.catalog.All() {
		mark := "⬜"
		if b.state.IsMonitored(l.Key) {
			mark = "✅"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mark+" "+l.Name, cbToggleLeague+":"+l.Key),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Confirm", cbConfirmLeague),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
