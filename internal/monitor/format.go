package monitor

import (
	"fmt"
	"strings"

	"halftime_bot/internal/model"
)

const eventURL = "https://www.sofascore.com/event/%d"

// FormatAlert formats a halftime 0-0 alert for a match.
func FormatAlert(m model.Match) string {
	var b strings.Builder
	b.WriteString("⚽ 0-0 in the first half!\n\n")
	fmt.Fprintf(&b, "%s - %s\n", m.HomeTeam, m.AwayTeam)
	if m.CategoryName != "" {
		fmt.Fprintf(&b, "%s, %s\n", m.CategoryName, m.Competition)
	} else {
		fmt.Fprintf(&b, "%s\n", m.Competition)
	}
	fmt.Fprintf(&b, "Score: %d-%d\n", m.HomeScore, m.AwayScore)
	fmt.Fprintf(&b, "Minute: %d'\n", m.Minute)
	fmt.Fprintf(&b, eventURL, m.ID)
	return b.String()
}
