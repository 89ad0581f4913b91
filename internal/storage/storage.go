// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"halftime_bot/internal/model"
)

// Setting keys stored in the settings table.
const (
	SettingLeaguesSeeded = "leagues_seeded"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	ListLeagues(ctx context.Context) ([]string, error)
	ReplaceLeagues(ctx context.Context, keys []string) error

	ListNotified(ctx context.Context) ([]model.Notification, error)
	MarkNotified(ctx context.Context, n model.Notification) error
	DeleteNotified(ctx context.Context, matchIDs []int64) error
	CountNotifications(ctx context.Context) (int, error)

	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error

	Close() error
}
