// Package monitor runs the poll loop: fetch live matches, keep the monitored
// ones, alert once on every first-half 0-0.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"halftime_bot/internal/filter"
	"halftime_bot/internal/metrics"
	"halftime_bot/internal/model"
	"halftime_bot/internal/state"
)

const pruneInterval = time.Hour

// Fetcher returns the matches currently live.
type Fetcher interface {
	LiveMatches(ctx context.Context) ([]model.Match, error)
}

// Notifier delivers an alert to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// Config controls the poll loop.
type Config struct {
	ChatID        int64
	Interval      time.Duration
	StartDelay    time.Duration
	Retention     time.Duration
	NotifyTimeout time.Duration
}

// Status is a snapshot of the poll loop.
type Status struct {
	Running      bool
	LastPoll     time.Time
	LastSuccess  time.Time
	LastError    string
	Cycles       int
	DroppedTicks int
	LiveMatches  int
	Candidates   int
	AlertsSent   int
}

// Monitor polls for live matches and sends halftime alerts.
type Monitor struct {
	cfg      Config
	fetcher  Fetcher
	notifier Notifier
	state    *state.State
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time

	cycle sync.Mutex

	mu     sync.Mutex
	status Status
}

// New creates a Monitor. m may be nil.
func New(cfg Config, f Fetcher, n Notifier, st *state.State, m *metrics.Metrics, log *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	return &Monitor{
		cfg:      cfg,
		fetcher:  f,
		notifier: n,
		state:    st,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// Run schedules the poll and prune jobs and blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	startAt := gocron.WithStartImmediately()
	if m.cfg.StartDelay > 0 {
		startAt = gocron.WithStartDateTime(time.Now().Add(m.cfg.StartDelay))
	}

	if _, err := s.NewJob(
		gocron.DurationJob(m.cfg.Interval),
		gocron.NewTask(func() { m.Poll(ctx) }),
		gocron.WithName("poll"),
		gocron.WithStartAt(startAt),
	); err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("schedule poll job: %w", err)
	}

	if m.cfg.Retention > 0 {
		if _, err := s.NewJob(
			gocron.DurationJob(pruneInterval),
			gocron.NewTask(func() { m.Prune(ctx) }),
			gocron.WithName("prune"),
		); err != nil {
			_ = s.Shutdown()
			return fmt.Errorf("schedule prune job: %w", err)
		}
	}

	s.Start()
	m.log.Info("poll loop started",
		"interval", m.cfg.Interval, "start_delay", m.cfg.StartDelay, "chat_id", m.cfg.ChatID)

	<-ctx.Done()

	if err := s.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	m.log.Info("poll loop stopped")
	return nil
}

// Poll runs one cycle. It returns false without doing anything when another
// cycle is still running.
func (m *Monitor) Poll(ctx context.Context) bool {
	if !m.cycle.TryLock() {
		m.mu.Lock()
		m.status.DroppedTicks++
		m.mu.Unlock()
		m.metrics.TickDropped()
		m.log.Warn("poll tick dropped, previous cycle still running")
		return false
	}
	defer m.cycle.Unlock()

	m.mu.Lock()
	m.status.Running = true
	m.mu.Unlock()

	m.runCycle(ctx)
	return true
}

// Prune drops notified matches older than the configured retention.
func (m *Monitor) Prune(ctx context.Context) {
	if n := m.state.PruneOlderThan(ctx, m.cfg.Retention); n > 0 {
		m.log.Info("pruned notified matches", "count", n, "retention", m.cfg.Retention)
	}
}

// Status returns a snapshot of the loop.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) runCycle(ctx context.Context) {
	start := m.now()
	result := metrics.PollOK

	matches, err := m.fetcher.LiveMatches(ctx)
	if err != nil {
		m.log.Error("fetch live matches", "error", err)
		result = metrics.PollError
		matches = nil
	}

	m.forgetFinished(ctx, matches)

	monitored := filter.ByLeague(matches, m.state.Leagues())
	m.log.Debug("poll cycle", "live", len(matches), "monitored", len(monitored))

	sent := 0
	for _, match := range monitored {
		if ctx.Err() != nil {
			break
		}
		if !filter.IsHalftimeZero(match) || m.state.AlreadyNotified(match.ID) {
			continue
		}
		if err := m.notify(ctx, match); err != nil {
			m.log.Error("send alert", "match_id", match.ID, "error", err)
			m.metrics.Notification(metrics.NotifyFailed)
			continue
		}
		m.state.MarkNotified(ctx, model.Notification{
			MatchID:     match.ID,
			Competition: match.Competition,
			HomeTeam:    match.HomeTeam,
			AwayTeam:    match.AwayTeam,
			Minute:      match.Minute,
			SentAt:      m.now(),
		})
		m.metrics.Notification(metrics.NotifySent)
		sent++
		m.log.Info("alert sent", "match_id", match.ID,
			"home", match.HomeTeam, "away", match.AwayTeam, "minute", match.Minute)
	}

	m.metrics.ObservePoll(result, len(matches), len(monitored), m.now().Sub(start))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Running = false
	m.status.Cycles++
	m.status.LastPoll = start
	m.status.Candidates = len(monitored)
	m.status.AlertsSent += sent
	if err != nil {
		m.status.LastError = err.Error()
		return
	}
	m.status.LastError = ""
	m.status.LastSuccess = start
	m.status.LiveMatches = len(matches)
}

func (m *Monitor) notify(ctx context.Context, match model.Match) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.NotifyTimeout)
	defer cancel()
	return m.notifier.Notify(ctx, m.cfg.ChatID, FormatAlert(match))
}

func (m *Monitor) forgetFinished(ctx context.Context, matches []model.Match) {
	var ids []int64
	for _, match := range matches {
		if match.Status == model.StatusFinished && m.state.AlreadyNotified(match.ID) {
			ids = append(ids, match.ID)
		}
	}
	if n := m.state.Forget(ctx, ids); n > 0 {
		m.log.Debug("forgot finished matches", "count", n)
	}
}
