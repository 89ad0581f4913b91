package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"halftime_bot/internal/league"
	"halftime_bot/internal/model"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Halftime Bot!

I watch live football and alert this chat once per match that is still 0-0 in the first half.

Quick start:
1. /leagues — see which leagues are monitored
2. /addleague — pick leagues to monitor
3. /chatid — show this chat's ID for CHAT_ID

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `League management:
/leagues — monitored leagues and the catalog
/addleague — choose leagues with checkboxes
/addleague <key|name> — start monitoring a league
/removeleague <key|name> — stop monitoring a league

Monitoring:
/check — poll live matches now
/status — poll loop health
/stats — alert statistics

Other:
/chatid — show this chat's ID`)
}

func (b *Bot) handleLeagues(chatID int64) {
	b.reply(chatID, FormatLeagueList(b.state.Leagues(), b.catalog.All()))
}

func (b *Bot) handleAddLeague(ctx context.Context, chatID int64, args string) {
	query, err := ParseLeagueArg(args)
	if err != nil {
		msg := tgbotapi.NewMessage(chatID, "Tap a league to toggle it, then Confirm.")
		msg.ReplyMarkup = b.leagueKeyboard()
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send league keyboard", "chat_id", chatID, "error", err)
		}
		return
	}

	l, ok := b.resolveLeague(chatID, query)
	if !ok {
		return
	}

	added, err := b.state.AddLeague(ctx, l.Key)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if !added {
		b.reply(chatID, fmt.Sprintf("%s (%s) is already monitored.", l.Name, l.Key))
		return
	}
	b.log.Info("league added", "league", l.Key, "chat_id", chatID)
	b.reply(chatID, fmt.Sprintf("Now monitoring %s (%s).", l.Name, l.Key))
}

func (b *Bot) handleRemoveLeague(ctx context.Context, chatID int64, args string) {
	query, err := ParseLeagueArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /removeleague <key|name>")
		return
	}

	l, ok := b.resolveLeague(chatID, query)
	if !ok {
		return
	}

	if !b.state.RemoveLeague(ctx, l.Key) {
		b.reply(chatID, fmt.Sprintf("%s (%s) is not monitored.", l.Name, l.Key))
		return
	}
	b.log.Info("league removed", "league", l.Key, "chat_id", chatID)
	b.reply(chatID, fmt.Sprintf("Stopped monitoring %s (%s).", l.Name, l.Key))
}

// resolveLeague looks up query in the catalog and replies with the reason
// when it cannot.
func (b *Bot) resolveLeague(chatID int64, query string) (model.League, bool) {
	l, err := b.catalog.Resolve(query)
	switch {
	case errors.Is(err, league.ErrAmbiguousLeague):
		b.reply(chatID, fmt.Sprintf("%q matches more than one league. Use the key from /leagues.", query))
		return model.League{}, false
	case err != nil:
		b.reply(chatID, fmt.Sprintf("Unknown league %q. Use /leagues to see the catalog.", query))
		return model.League{}, false
	}
	return l, true
}

func (b *Bot) handleChatID(chatID int64) {
	b.reply(chatID, fmt.Sprintf("Chat ID: %d", chatID))
}

func (b *Bot) handleStats(chatID int64) {
	var session int
	if b.poller != nil {
		session = b.poller.Status().AlertsSent
	}
	b.reply(chatID, FormatStats(Stats{
		AllTime:        b.state.NotificationsSent(),
		Session:        session,
		Monitored:      len(b.state.Leagues()),
		Catalog:        len(b.catalog.All()),
		TrackedMatches: b.state.TrackedMatches(),
		Uptime:         time.Since(b.started),
	}))
}

func (b *Bot) handleStatus(chatID int64) {
	if b.poller == nil {
		b.reply(chatID, "Poll loop is not running.")
		return
	}
	b.reply(chatID, FormatStatus(b.poller.Status(), b.cfg.PollInterval, time.Now()))
}

// handleCheck runs a poll cycle in the background and replies when it is
// done, so other commands are served meanwhile.
func (b *Bot) handleCheck(ctx context.Context, chatID int64) {
	if b.poller == nil {
		b.reply(chatID, "Poll loop is not running.")
		return
	}

	b.checks.Add(1)
	go func() {
		defer b.checks.Done()
		b.runCheck(ctx, chatID)
	}()
}

func (b *Bot) runCheck(ctx context.Context, chatID int64) {
	before := b.poller.Status().AlertsSent
	if !b.poller.Poll(ctx) {
		b.reply(chatID, "A check is already running, try again shortly.")
		return
	}

	st := b.poller.Status()
	if st.LastError != "" {
		b.reply(chatID, fmt.Sprintf("Check failed: %s", st.LastError))
		return
	}
	b.reply(chatID, fmt.Sprintf("Check done: %d live, %d in monitored leagues, %d new alert(s).",
		st.LiveMatches, st.Candidates, st.AlertsSent-before))
}
