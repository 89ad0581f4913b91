// Package filter implements the match selection rules of a poll cycle.
package filter

import (
	"slices"
	"strings"

	"halftime_bot/internal/model"
)

// HalftimeMinute is the last minute still counted as first half.
const HalftimeMinute = 45

// ByLeague returns the matches that belong to at least one of the given
// leagues, preserving their order. No leagues means no matches.
func ByLeague(matches []model.Match, leagues []model.League) []model.Match {
	var out []model.Match
	for _, m := range matches {
		for _, l := range leagues {
			if InLeague(m, l) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// InLeague reports whether a match is played in the given league.
// The category must match; a league without slugs covers the whole category.
func InLeague(m model.Match, l model.League) bool {
	if l.Category == "" || !strings.EqualFold(m.Category, l.Category) {
		return false
	}
	if len(l.Slugs) == 0 {
		return true
	}
	slug := strings.ToLower(m.CompetitionSlug)
	return slices.ContainsFunc(l.Slugs, func(s string) bool {
		return strings.ToLower(s) == slug
	})
}

// IsHalftimeZero reports whether a live match is still 0-0 in the first half.
func IsHalftimeZero(m model.Match) bool {
	return m.Status == model.StatusLive &&
		m.HomeScore == 0 &&
		m.AwayScore == 0 &&
		m.Minute <= HalftimeMinute
}
