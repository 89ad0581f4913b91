// Package model defines the domain types used across the application.
package model

import "time"

// MatchStatus is the lifecycle state of a match as reported by the data source.
type MatchStatus string

// Supported match statuses.
const (
	StatusLive       MatchStatus = "live"
	StatusFinished   MatchStatus = "finished"
	StatusNotStarted MatchStatus = "not_started"
	StatusSuspended  MatchStatus = "suspended"
)

// Match is a football match as seen in a single poll. It is never persisted.
type Match struct {
	ID              int64
	Competition     string
	CompetitionSlug string
	Category        string
	CategoryName    string
	HomeTeam        string
	AwayTeam        string
	HomeScore       int
	AwayScore       int
	Minute          int
	Status          MatchStatus
}

// League is a catalog entry an operator can enable for monitoring.
// An empty Slugs list covers every competition of the category.
type League struct {
	Key      string   `yaml:"key"`
	Name     string   `yaml:"name"`
	Category string   `yaml:"category"`
	Slugs    []string `yaml:"slugs"`
}

// Notification records an alert that was delivered for a match.
type Notification struct {
	MatchID     int64
	Competition string
	HomeTeam    string
	AwayTeam    string
	Minute      int
	SentAt      time.Time
}
