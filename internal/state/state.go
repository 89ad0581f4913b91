// Package state keeps the bot's monitored leagues and notified matches in
// memory and mirrors every change to storage.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"halftime_bot/internal/league"
	"halftime_bot/internal/model"
	"halftime_bot/internal/storage"
)

// State is safe for concurrent use by the command handlers and the poll loop.
// The in-memory copy is authoritative: a failed write is logged and retried
// on the next mutation.
type State struct {
	store   storage.Storage
	catalog *league.Catalog
	log     *slog.Logger
	now     func() time.Time

	mu            sync.Mutex
	leagues       map[string]struct{}
	notified      map[int64]model.Notification
	pending       []model.Notification
	pendingDelete []int64
	leaguesDirty  bool
	sent          int
}

// New loads state from store. On first run every catalog league is
// monitored.
func New(ctx context.Context, store storage.Storage, catalog *league.Catalog, log *slog.Logger) (*State, error) {
	s := &State{
		store:    store,
		catalog:  catalog,
		log:      log,
		now:      time.Now,
		leagues:  make(map[string]struct{}),
		notified: make(map[int64]model.Notification),
	}

	_, seeded, err := store.GetSetting(ctx, storage.SettingLeaguesSeeded)
	if err != nil {
		return nil, fmt.Errorf("load seed flag: %w", err)
	}
	if !seeded {
		keys := catalog.Keys()
		if err := store.ReplaceLeagues(ctx, keys); err != nil {
			return nil, fmt.Errorf("seed leagues: %w", err)
		}
		if err := store.SetSetting(ctx, storage.SettingLeaguesSeeded, "1"); err != nil {
			return nil, fmt.Errorf("mark leagues seeded: %w", err)
		}
		log.Info("seeded monitored leagues", "count", len(keys))
	}

	keys, err := store.ListLeagues(ctx)
	if err != nil {
		return nil, fmt.Errorf("load leagues: %w", err)
	}
	for _, k := range keys {
		if _, ok := catalog.Get(k); !ok {
			log.Warn("dropping unknown league from storage", "league", k)
			s.leaguesDirty = true
			continue
		}
		s.leagues[k] = struct{}{}
	}

	notified, err := store.ListNotified(ctx)
	if err != nil {
		return nil, fmt.Errorf("load notified matches: %w", err)
	}
	for _, n := range notified {
		s.notified[n.MatchID] = n
	}

	s.sent, err = store.CountNotifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}

	return s, nil
}

// Leagues returns the monitored leagues in catalog order.
func (s *State) Leagues() []model.League {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.Select(s.leagues)
}

// IsMonitored reports whether the league with key is monitored.
func (s *State) IsMonitored(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.leagues[key]
	return ok
}

// AddLeague starts monitoring key. It reports false if the league was
// already monitored.
func (s *State) AddLeague(ctx context.Context, key string) (bool, error) {
	if _, ok := s.catalog.Get(key); !ok {
		return false, fmt.Errorf("%w: %q", league.ErrUnknownLeague, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leagues[key]; ok {
		return false, nil
	}
	s.leagues[key] = struct{}{}
	s.leaguesDirty = true
	s.flushLocked(ctx)
	return true, nil
}

// RemoveLeague stops monitoring key. It reports false if the league was not
// monitored.
func (s *State) RemoveLeague(ctx context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leagues[key]; !ok {
		return false
	}
	delete(s.leagues, key)
	s.leaguesDirty = true
	s.flushLocked(ctx)
	return true
}

// ToggleLeague flips monitoring of key and returns the new state.
func (s *State) ToggleLeague(ctx context.Context, key string) (bool, error) {
	if _, ok := s.catalog.Get(key); !ok {
		return false, fmt.Errorf("%w: %q", league.ErrUnknownLeague, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, on := s.leagues[key]
	if on {
		delete(s.leagues, key)
	} else {
		s.leagues[key] = struct{}{}
	}
	s.leaguesDirty = true
	s.flushLocked(ctx)
	return !on, nil
}

// AlreadyNotified reports whether an alert was sent for the match.
func (s *State) AlreadyNotified(matchID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.notified[matchID]
	return ok
}

// MarkNotified records a delivered alert.
func (s *State) MarkNotified(ctx context.Context, n model.Notification) {
	if n.SentAt.IsZero() {
		n.SentAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notified[n.MatchID]; ok {
		return
	}
	s.notified[n.MatchID] = n
	s.sent++
	s.pending = append(s.pending, n)
	s.flushLocked(ctx)
}

// Forget drops matches from the notified set. Unknown ids are ignored.
func (s *State) Forget(ctx context.Context, matchIDs []int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, id := range matchIDs {
		if _, ok := s.notified[id]; !ok {
			continue
		}
		delete(s.notified, id)
		s.pendingDelete = append(s.pendingDelete, id)
		removed++
	}
	if removed > 0 {
		s.flushLocked(ctx)
	}
	return removed
}

// PruneOlderThan forgets notified matches whose alert is older than age.
func (s *State) PruneOlderThan(ctx context.Context, age time.Duration) int {
	cutoff := s.now().Add(-age)

	s.mu.Lock()
	var ids []int64
	for id, n := range s.notified {
		if n.SentAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return s.Forget(ctx, ids)
}

// NotificationsSent returns the total number of alerts ever delivered.
func (s *State) NotificationsSent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// TrackedMatches returns the size of the notified set.
func (s *State) TrackedMatches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notified)
}

// Flush retries any writes that failed earlier.
func (s *State) Flush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked(ctx)
}

func (s *State) flushLocked(ctx context.Context) {
	if s.leaguesDirty {
		keys := make([]string, 0, len(s.leagues))
		for _, l := range s.catalog.Select(s.leagues) {
			keys = append(keys, l.Key)
		}
		if err := s.store.ReplaceLeagues(ctx, keys); err != nil {
			s.log.Error("persist leagues failed", "error", err)
		} else {
			s.leaguesDirty = false
		}
	}

	// Deletes go first so a match forgotten and notified again ends up stored.
	if len(s.pendingDelete) > 0 {
		if err := s.store.DeleteNotified(ctx, s.pendingDelete); err != nil {
			s.log.Error("delete notified matches failed", "count", len(s.pendingDelete), "error", err)
			return
		}
		s.pendingDelete = nil
	}

	for len(s.pending) > 0 {
		n := s.pending[0]
		if cur, ok := s.notified[n.MatchID]; ok && cur.SentAt.Equal(n.SentAt) {
			if err := s.store.MarkNotified(ctx, n); err != nil {
				s.log.Error("persist notified match failed", "match_id", n.MatchID, "error", err)
				break
			}
		}
		s.pending = s.pending[1:]
	}
}
