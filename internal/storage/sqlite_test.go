package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"halftime_bot/internal/model"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReplaceLeagues(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	tests := []struct {
		name string
		keys []string
		want []string
	}{
		{name: "initial set", keys: []string{"qatar", "estonia"}, want: []string{"estonia", "qatar"}},
		{name: "add one", keys: []string{"qatar", "estonia", "vietnam"}, want: []string{"estonia", "qatar", "vietnam"}},
		{name: "remove one", keys: []string{"vietnam", "qatar"}, want: []string{"qatar", "vietnam"}},
		{name: "duplicates collapse", keys: []string{"qatar", "qatar"}, want: []string{"qatar"}},
		{name: "empty clears", keys: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.ReplaceLeagues(ctx, tt.keys); err != nil {
				t.Fatalf("replace: %v", err)
			}
			got, err := s.ListLeagues(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ListLeagues mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNotifiedMatches(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	sentAt := time.Date(2026, 10, 18, 15, 30, 0, 0, time.UTC)
	notes := []model.Notification{
		{MatchID: 42, Competition: "Serie A", HomeTeam: "Roma", AwayTeam: "Lazio", Minute: 30, SentAt: sentAt},
		{MatchID: 7, Competition: "Meistriliiga", HomeTeam: "Flora", AwayTeam: "Levadia", Minute: 12, SentAt: sentAt.Add(time.Minute)},
	}
	for _, n := range notes {
		if err := s.MarkNotified(ctx, n); err != nil {
			t.Fatalf("mark notified %d: %v", n.MatchID, err)
		}
	}

	// Marking again must not add a second log entry.
	if err := s.MarkNotified(ctx, notes[0]); err != nil {
		t.Fatalf("mark notified duplicate: %v", err)
	}

	got, err := s.ListNotified(ctx)
	if err != nil {
		t.Fatalf("list notified: %v", err)
	}
	if diff := cmp.Diff(notes, got); diff != "" {
		t.Errorf("ListNotified mismatch (-want +got):\n%s", diff)
	}

	count, err := s.CountNotifications(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if diff := cmp.Diff(2, count); diff != "" {
		t.Errorf("CountNotifications mismatch (-want +got):\n%s", diff)
	}

	if err := s.DeleteNotified(ctx, []int64{42, 999}); err != nil {
		t.Fatalf("delete notified: %v", err)
	}
	got, err = s.ListNotified(ctx)
	if err != nil {
		t.Fatalf("list notified: %v", err)
	}
	if diff := cmp.Diff(notes[1:], got); diff != "" {
		t.Errorf("ListNotified after delete mismatch (-want +got):\n%s", diff)
	}

	// The log survives pruning of the notified set.
	count, err = s.CountNotifications(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if diff := cmp.Diff(2, count); diff != "" {
		t.Errorf("CountNotifications after delete mismatch (-want +got):\n%s", diff)
	}

	if err := s.DeleteNotified(ctx, nil); err != nil {
		t.Fatalf("delete nothing: %v", err)
	}
}

func TestMarkNotifiedDefaultsSentAt(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	before := time.Now().UTC().Truncate(time.Second)
	if err := s.MarkNotified(ctx, model.Notification{MatchID: 1}); err != nil {
		t.Fatalf("mark notified: %v", err)
	}

	got, err := s.ListNotified(ctx)
	if err != nil {
		t.Fatalf("list notified: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 notified match, got %d", len(got))
	}
	if got[0].SentAt.Before(before) {
		t.Errorf("SentAt = %v, want >= %v", got[0].SentAt, before)
	}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	tests := []struct {
		name    string
		set     *string
		wantVal string
		wantOK  bool
	}{
		{name: "missing", wantOK: false},
		{name: "set", set: ptr("1"), wantVal: "1", wantOK: true},
		{name: "overwrite", set: ptr("2"), wantVal: "2", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.set != nil {
				if err := s.SetSetting(ctx, SettingLeaguesSeeded, *tt.set); err != nil {
					t.Fatalf("set: %v", err)
				}
			}
			v, ok, err := s.GetSetting(ctx, SettingLeaguesSeeded)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if diff := cmp.Diff(tt.wantOK, ok); diff != "" {
				t.Errorf("GetSetting ok mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantVal, v); diff != "" {
				t.Errorf("GetSetting value mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/bot.db"

	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.ReplaceLeagues(ctx, []string{"qatar"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := s.MarkNotified(ctx, model.Notification{MatchID: 5}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s = newReopened(t, path)
	leagues, err := s.ListLeagues(ctx)
	if err != nil {
		t.Fatalf("list leagues: %v", err)
	}
	if diff := cmp.Diff([]string{"qatar"}, leagues); diff != "" {
		t.Errorf("leagues mismatch (-want +got):\n%s", diff)
	}
	notified, err := s.ListNotified(ctx)
	if err != nil {
		t.Fatalf("list notified: %v", err)
	}
	if len(notified) != 1 || notified[0].MatchID != 5 {
		t.Errorf("notified = %+v, want match 5", notified)
	}
}

func newReopened(t *testing.T, path string) *SQLite {
	t.Helper()
	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr(s string) *string { return &s }

// Ensure the Storage interface is satisfied.
var _ Storage = (*SQLite)(nil)
