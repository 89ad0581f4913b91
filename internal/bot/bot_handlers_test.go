package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"halftime_bot/internal/config"
	"halftime_bot/internal/league"
	"halftime_bot/internal/monitor"
	"halftime_bot/internal/state"
	"halftime_bot/internal/storage"
)

// --- mocks ---

type sentMsg struct {
	ChatID int64
	Text   string
	Markup any
}

type mockAPI struct {
	mu       sync.Mutex
	sent     []sentMsg
	requests []tgbotapi.Chattable
	sendErr  error
	delay    time.Duration
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	time.Sleep(m.delay)
	if m.sendErr != nil {
		return tgbotapi.Message{}, m.sendErr
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text, Markup: msg.ReplyMarkup})
		m.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Text
}

func (m *mockAPI) lastSent() sentMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMsg{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockAPI) allTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Text
	}
	return out
}

func (m *mockAPI) allRequests() []tgbotapi.Chattable {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tgbotapi.Chattable, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *mockAPI) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.requests = nil
}

type mockPoller struct {
	status  monitor.Status
	busy    bool
	polls   int
	alerts  int
	err     string
	release chan struct{}
}

func (p *mockPoller) Poll(context.Context) bool {
	if p.busy {
		return false
	}
	if p.release != nil {
		<-p.release
	}
	p.polls++
	p.status.Cycles++
	p.status.LiveMatches = 12
	p.status.Candidates = 3
	p.status.AlertsSent += p.alerts
	p.status.LastError = p.err
	return true
}

func (p *mockPoller) Status() monitor.Status { return p.status }

// --- helpers ---

func newTestBot(t *testing.T) (*Bot, *mockAPI, *state.State) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	catalog, err := league.Default()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := state.New(context.Background(), store, catalog, log)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}

	api := &mockAPI{}
	b := &Bot{
		api:     api,
		sender:  api,
		state:   st,
		catalog: catalog,
		cfg:     &config.Config{PollInterval: time.Minute},
		log:     log,
		started: time.Now(),
	}
	return b, api, st
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

func makeMsg(userID int64, cmd, args string) *tgbotapi.Message {
	text := "/" + cmd
	if args != "" {
		text += " " + args
	}
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: 100},
		Text: text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len("/" + cmd)},
		},
	}
}

func makeCallback(data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 1, UserName: "op"},
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: 100}},
	}
}

// --- handler tests ---

func TestHandleStart(t *testing.T) {
	b, api, _ := newTestBot(t)
	b.handleStart(100)
	requireContains(t, api.lastText(), "Welcome to Halftime Bot")
}

func TestHandleHelp(t *testing.T) {
	b, api, _ := newTestBot(t)
	b.handleHelp(100)
	for _, cmd := range []string{"/leagues", "/addleague", "/removeleague", "/chatid", "/stats", "/status", "/check"} {
		requireContains(t, api.lastText(), cmd)
	}
}

func TestHandleLeagues(t *testing.T) {
	ctx := context.Background()
	b, api, st := newTestBot(t)

	b.handleLeagues(100)
	requireContains(t, api.lastText(), "Monitored leagues (24)")
	if strings.Contains(api.lastText(), "Available") {
		t.Errorf("expected no available section, got:\n%s", api.lastText())
	}

	st.RemoveLeague(ctx, "qatar")
	b.handleLeagues(100)
	requireContains(t, api.lastText(), "Monitored leagues (23)")
	requireContains(t, api.lastText(), "⬜ Qatar  [qatar]")
}

func TestHandleAddLeague(t *testing.T) {
	ctx := context.Background()

	t.Run("no args shows keyboard", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.handleAddLeague(ctx, 100, "")

		sent := api.lastSent()
		requireContains(t, sent.Text, "Tap a league")
		kb, ok := sent.Markup.(tgbotapi.InlineKeyboardMarkup)
		if !ok {
			t.Fatalf("expected inline keyboard, got %T", sent.Markup)
		}
		if diff := cmp.Diff(25, len(kb.InlineKeyboard)); diff != "" {
			t.Errorf("keyboard rows (-want +got):\n%s", diff)
		}
		first := kb.InlineKeyboard[0][0]
		if diff := cmp.Diff("toggle_league:estonia", *first.CallbackData); diff != "" {
			t.Errorf("first button data (-want +got):\n%s", diff)
		}
		requireContains(t, first.Text, "✅")
		last := kb.InlineKeyboard[len(kb.InlineKeyboard)-1][0]
		if diff := cmp.Diff("confirm_leagues", *last.CallbackData); diff != "" {
			t.Errorf("confirm button data (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown league", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.handleAddLeague(ctx, 100, "mls")
		requireContains(t, api.lastText(), "Unknown league")
	})

	t.Run("ambiguous league", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.handleAddLeague(ctx, 100, "england league")
		requireContains(t, api.lastText(), "more than one league")
	})

	t.Run("already monitored", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.handleAddLeague(ctx, 100, "qatar")
		requireContains(t, api.lastText(), "already monitored")
	})

	t.Run("success by name", func(t *testing.T) {
		b, api, st := newTestBot(t)
		st.RemoveLeague(ctx, "italy-serie-a")

		b.handleAddLeague(ctx, 100, "serie a")
		requireContains(t, api.lastText(), "Now monitoring Italy Serie A (italy-serie-a)")
		if !st.IsMonitored("italy-serie-a") {
			t.Error("italy-serie-a not monitored after /addleague")
		}
	})
}

func TestHandleRemoveLeague(t *testing.T) {
	ctx := context.Background()

	t.Run("no args", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.handleRemoveLeague(ctx, 100, "")
		requireContains(t, api.lastText(), "Usage: /removeleague")
	})

	t.Run("unknown league", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.handleRemoveLeague(ctx, 100, "atlantis")
		requireContains(t, api.lastText(), "Unknown league")
	})

	t.Run("success", func(t *testing.T) {
		b, api, st := newTestBot(t)
		b.handleRemoveLeague(ctx, 100, "estonia")
		requireContains(t, api.lastText(), "Stopped monitoring Estonia (estonia)")
		if st.IsMonitored("estonia") {
			t.Error("estonia still monitored")
		}
	})

	t.Run("not monitored", func(t *testing.T) {
		b, api, st := newTestBot(t)
		st.RemoveLeague(ctx, "estonia")
		b.handleRemoveLeague(ctx, 100, "estonia")
		requireContains(t, api.lastText(), "is not monitored")
	})
}

func TestHandleChatID(t *testing.T) {
	b, api, _ := newTestBot(t)
	b.handleChatID(-100123)
	if diff := cmp.Diff("Chat ID: -100123", api.lastText()); diff != "" {
		t.Errorf("reply (-want +got):\n%s", diff)
	}
}

func TestHandleStats(t *testing.T) {
	b, api, _ := newTestBot(t)
	b.SetPoller(&mockPoller{status: monitor.Status{AlertsSent: 2}})

	b.handleStats(100)
	requireContains(t, api.lastText(), "Alerts sent: 0 (this session: 2)")
	requireContains(t, api.lastText(), "Monitored leagues: 24 of 24")
	requireContains(t, api.lastText(), "Tracked matches: 0")
}

func TestHandleStatus(t *testing.T) {
	t.Run("no poller", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.handleStatus(100)
		requireContains(t, api.lastText(), "not running")
	})

	t.Run("with poller", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.SetPoller(&mockPoller{status: monitor.Status{Cycles: 5, DroppedTicks: 1, LastError: "unexpected status 403"}})
		b.handleStatus(100)
		requireContains(t, api.lastText(), "every 1m0s")
		requireContains(t, api.lastText(), "dropped ticks: 1")
		requireContains(t, api.lastText(), "Last error: unexpected status 403")
	})
}

func TestHandleCheck(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		poller *mockPoller
		want   string
	}{
		{name: "no poller", want: "not running"},
		{name: "busy", poller: &mockPoller{busy: true}, want: "already running"},
		{name: "failed", poller: &mockPoller{err: "http get: timeout"}, want: "Check failed: http get: timeout"},
		{name: "success", poller: &mockPoller{alerts: 1}, want: "Check done: 12 live, 3 in monitored leagues, 1 new alert(s)."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, api, _ := newTestBot(t)
			if tt.poller != nil {
				b.SetPoller(tt.poller)
			}
			b.handleCheck(ctx, 100)
			b.checks.Wait()
			requireContains(t, api.lastText(), tt.want)
		})
	}
}

func TestCheckRunsOffUpdateLoop(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t)
	p := &mockPoller{release: make(chan struct{})}
	b.SetPoller(p)

	b.handleUpdate(ctx, tgbotapi.Update{Message: makeMsg(1, "check", "")})
	b.handleUpdate(ctx, tgbotapi.Update{Message: makeMsg(1, "chatid", "")})
	if diff := cmp.Diff([]string{"Chat ID: 100"}, api.allTexts()); diff != "" {
		t.Fatalf("replies while check runs (-want +got):\n%s", diff)
	}

	close(p.release)
	b.checks.Wait()
	requireContains(t, api.lastText(), "Check done")
}

func TestNotify(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		if err := b.Notify(context.Background(), -100, "alert"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(sentMsg{ChatID: -100, Text: "alert"}, api.lastSent(), cmpopts.IgnoreFields(sentMsg{}, "Markup")); diff != "" {
			t.Errorf("sent message (-want +got):\n%s", diff)
		}
	})

	t.Run("api error", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		api.sendErr = errors.New("Forbidden: bot was kicked")
		if err := b.Notify(context.Background(), -100, "alert"); err == nil {
			t.Fatal("expected error, got nil")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := b.Notify(ctx, -100, "alert"); !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
		if diff := cmp.Diff(0, len(api.allTexts())); diff != "" {
			t.Errorf("expected nothing sent (-want +got):\n%s", diff)
		}
	})

	t.Run("slow send reports delivery", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		api.delay = 50 * time.Millisecond

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if err := b.Notify(ctx, -100, "alert 42"); err != nil {
			t.Fatalf("delivered alert reported as failed: %v", err)
		}
		if diff := cmp.Diff([]string{"alert 42"}, api.allTexts()); diff != "" {
			t.Errorf("delivered (-want +got):\n%s", diff)
		}
	})
}

func TestHandleUpdateAccessControl(t *testing.T) {
	ctx := context.Background()

	t.Run("denied command", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.cfg.AllowedUsers = config.UserIDs{1}
		b.handleUpdate(ctx, tgbotapi.Update{Message: makeMsg(2, "chatid", "")})
		requireContains(t, api.lastText(), "Access denied")
	})

	t.Run("allowed command", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.cfg.AllowedUsers = config.UserIDs{1}
		b.handleUpdate(ctx, tgbotapi.Update{Message: makeMsg(1, "chatid", "")})
		requireContains(t, api.lastText(), "Chat ID: 100")
	})

	t.Run("denied callback leaves leagues untouched", func(t *testing.T) {
		b, api, st := newTestBot(t)
		b.cfg.AllowedUsers = config.UserIDs{99}
		b.handleUpdate(ctx, tgbotapi.Update{CallbackQuery: makeCallback("toggle_league:qatar")})
		if !st.IsMonitored("qatar") {
			t.Error("denied callback toggled qatar")
		}
		reqs := api.allRequests()
		if len(reqs) != 1 {
			t.Fatalf("expected one callback answer, got %d requests", len(reqs))
		}
		if diff := cmp.Diff("Access denied.", reqs[0].(tgbotapi.CallbackConfig).Text); diff != "" {
			t.Errorf("answer text (-want +got):\n%s", diff)
		}
	})

	t.Run("no sender with allow list", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.cfg.AllowedUsers = config.UserIDs{1}
		msg := makeMsg(1, "chatid", "")
		msg.From = nil
		b.handleUpdate(ctx, tgbotapi.Update{Message: msg})
		requireContains(t, api.lastText(), "Access denied")
	})

	t.Run("no sender without allow list", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		msg := makeMsg(1, "chatid", "")
		msg.From = nil
		b.handleUpdate(ctx, tgbotapi.Update{Message: msg})
		requireContains(t, api.lastText(), "Chat ID: 100")
	})

	t.Run("callback without sender and no allow list", func(t *testing.T) {
		b, _, st := newTestBot(t)
		cb := makeCallback("toggle_league:qatar")
		cb.From = nil
		b.handleUpdate(ctx, tgbotapi.Update{CallbackQuery: cb})
		if st.IsMonitored("qatar") {
			t.Error("callback without sender was not applied")
		}
	})

	t.Run("non-command message ignored", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.handleUpdate(ctx, tgbotapi.Update{Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 100}, Text: "hello",
		}})
		if diff := cmp.Diff(0, len(api.allTexts())); diff != "" {
			t.Errorf("expected no replies (-want +got):\n%s", diff)
		}
	})
}

func TestHandleCommand(t *testing.T) {
	ctx := context.Background()

	b, api, _ := newTestBot(t)
	b.SetPoller(&mockPoller{})

	cmds := []struct {
		cmd      string
		args     string
		contains string
	}{
		{cmd: "start", contains: "Welcome"},
		{cmd: "help", contains: "/addleague"},
		{cmd: "leagues", contains: "Monitored leagues"},
		{cmd: "removeleague", args: "qatar", contains: "Stopped monitoring"},
		{cmd: "addleague", args: "qatar", contains: "Now monitoring"},
		{cmd: "chatid", contains: "Chat ID: 100"},
		{cmd: "stats", contains: "Statistics"},
		{cmd: "status", contains: "Poll loop"},
		{cmd: "check", contains: "Check done"},
		{cmd: "unknown_cmd", contains: "Unknown command"},
	}

	for _, tc := range cmds {
		api.reset()
		b.handleCommand(ctx, makeMsg(1, tc.cmd, tc.args))
		b.checks.Wait()
		requireContains(t, api.lastText(), tc.contains)
	}
}

func TestHandleCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid data", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.handleCallback(ctx, makeCallback("toggle_league"))
		if diff := cmp.Diff(0, len(api.allTexts())); diff != "" {
			t.Errorf("expected no text messages (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(1, len(api.allRequests())); diff != "" {
			t.Errorf("expected only the ack (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown league", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.handleCallback(ctx, makeCallback("toggle_league:atlantis"))
		reqs := api.allRequests()
		if diff := cmp.Diff(1, len(reqs)); diff != "" {
			t.Fatalf("requests (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff("Unknown league.", reqs[0].(tgbotapi.CallbackConfig).Text); diff != "" {
			t.Errorf("answer text (-want +got):\n%s", diff)
		}
	})

	t.Run("toggle updates keyboard", func(t *testing.T) {
		b, api, st := newTestBot(t)
		b.handleCallback(ctx, makeCallback("toggle_league:qatar"))

		if st.IsMonitored("qatar") {
			t.Fatal("qatar still monitored after toggle")
		}
		reqs := api.allRequests()
		if diff := cmp.Diff(2, len(reqs)); diff != "" {
			t.Fatalf("requests (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff("Qatar: off", reqs[0].(tgbotapi.CallbackConfig).Text); diff != "" {
			t.Errorf("answer text (-want +got):\n%s", diff)
		}
		edit, ok := reqs[1].(tgbotapi.EditMessageReplyMarkupConfig)
		if !ok {
			t.Fatalf("expected keyboard edit, got %T", reqs[1])
		}
		if diff := cmp.Diff(7, edit.MessageID); diff != "" {
			t.Errorf("edited message (-want +got):\n%s", diff)
		}
		for _, row := range edit.ReplyMarkup.InlineKeyboard {
			if *row[0].CallbackData == "toggle_league:qatar" {
				requireContains(t, row[0].Text, "⬜")
			}
		}

		api.reset()
		b.handleCallback(ctx, makeCallback("toggle_league:qatar"))
		if !st.IsMonitored("qatar") {
			t.Error("qatar not monitored after second toggle")
		}
	})

	t.Run("confirm", func(t *testing.T) {
		b, api, st := newTestBot(t)
		st.RemoveLeague(ctx, "qatar")
		b.handleCallback(ctx, makeCallback("confirm_leagues"))

		reqs := api.allRequests()
		if diff := cmp.Diff(2, len(reqs)); diff != "" {
			t.Fatalf("requests (-want +got):\n%s", diff)
		}
		edit, ok := reqs[1].(tgbotapi.EditMessageTextConfig)
		if !ok {
			t.Fatalf("expected text edit, got %T", reqs[1])
		}
		requireContains(t, edit.Text, "Monitoring 23 league(s)")
	})
}
