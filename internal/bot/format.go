package bot

import (
	"fmt"
	"strings"
	"time"

	"halftime_bot/internal/model"
	"halftime_bot/internal/monitor"
)

const timeFormat = "2006-01-02 15:04:05 UTC"

// Stats holds the figures shown by /stats.
type Stats struct {
	AllTime        int
	Session        int
	Monitored      int
	Catalog        int
	TrackedMatches int
	Uptime         time.Duration
}

// FormatLeagueList formats the monitored leagues followed by the catalog
// keys that are not monitored.
func FormatLeagueList(monitored, catalog []model.League) string {
	on := make(map[string]struct{}, len(monitored))
	for _, l := range monitored {
		on[l.Key] = struct{}{}
	}

	var b strings.Builder
	if len(monitored) == 0 {
		b.WriteString("No leagues are monitored. Use /addleague to pick some.\n")
	} else {
		fmt.Fprintf(&b, "Monitored leagues (%d):\n", len(monitored))
		for _, l := range monitored {
			fmt.Fprintf(&b, "  ✅ %s  [%s]\n", l.Name, l.Key)
		}
	}

	var off []model.League
	for _, l := range catalog {
		if _, ok := on[l.Key]; !ok {
			off = append(off, l)
		}
	}
	if len(off) > 0 {
		b.WriteString("\nAvailable:\n")
		for _, l := range off {
			fmt.Fprintf(&b, "  ⬜ %s  [%s]\n", l.Name, l.Key)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatLeagueSelection summarises the leagues chosen with the keyboard.
func FormatLeagueSelection(monitored []model.League) string {
	if len(monitored) == 0 {
		return "Selection saved. No leagues are monitored."
	}
	names := make([]string, len(monitored))
	for i, l := range monitored {
		names[i] = l.Name
	}
	return fmt.Sprintf("Selection saved. Monitoring %d league(s):\n%s", len(monitored), strings.Join(names, "\n"))
}

// FormatStats formats the /stats reply.
func FormatStats(s Stats) string {
	var b strings.Builder
	b.WriteString("Statistics:\n")
	fmt.Fprintf(&b, "Alerts sent: %d (this session: %d)\n", s.AllTime, s.Session)
	fmt.Fprintf(&b, "Monitored leagues: %d of %d\n", s.Monitored, s.Catalog)
	fmt.Fprintf(&b, "Tracked matches: %d\n", s.TrackedMatches)
	fmt.Fprintf(&b, "Uptime: %s", s.Uptime.Truncate(time.Second))
	return b.String()
}

// FormatStatus formats the /status reply.
func FormatStatus(st monitor.Status, interval time.Duration, now time.Time) string {
	var b strings.Builder
	mode := "idle"
	if st.Running {
		mode = "polling"
	}
	fmt.Fprintf(&b, "Poll loop: %s, every %s\n", mode, interval)

	if st.LastPoll.IsZero() {
		b.WriteString("Last poll: never\n")
	} else {
		fmt.Fprintf(&b, "Last poll: %s (%s ago)\n",
			st.LastPoll.UTC().Format(timeFormat), now.Sub(st.LastPoll).Truncate(time.Second))
	}
	if !st.LastSuccess.IsZero() {
		fmt.Fprintf(&b, "Last success: %s\n", st.LastSuccess.UTC().Format(timeFormat))
	}
	if st.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", st.LastError)
	}
	fmt.Fprintf(&b, "Cycles: %d, dropped ticks: %d\n", st.Cycles, st.DroppedTicks)
	fmt.Fprintf(&b, "Last cycle: %d live, %d in monitored leagues", st.LiveMatches, st.Candidates)
	return b.String()
}
