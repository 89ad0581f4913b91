// Package sofascore fetches live football matches from the SofaScore API.
package sofascore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"halftime_bot/internal/model"
)

// DefaultBaseURL is the public SofaScore API root.
const DefaultBaseURL = "https://api.sofascore.com/api/v1"

const (
	liveEventsPath = "/sport/football/events/live"
	maxBodySize    = 5 * 1024 * 1024
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// SofaScore status codes used to derive the elapsed minute.
const (
	codeFirstHalf   = 6
	codeSecondHalf  = 7
	codeHalftime    = 31
	codeExtraFirst  = 41
	codeExtraSecond = 42
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client reads live matches from SofaScore.
type Client struct {
	client  HTTPClient
	baseURL string
	limiter *rate.Limiter
	timeout time.Duration
	now     func() time.Time
}

// New creates a Client. requestsPerMinute caps outgoing requests; timeout
// bounds each call.
func New(client HTTPClient, baseURL string, requestsPerMinute int, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}
	rps := float64(requestsPerMinute) / 60.0
	return &Client{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		timeout: timeout,
		now:     time.Now,
	}
}

type liveResponse struct {
	Events []event `json:"events"`
}

type event struct {
	ID         int64 `json:"id"`
	Tournament struct {
		Name             string `json:"name"`
		Slug             string `json:"slug"`
		UniqueTournament *struct {
			Name string `json:"name"`
			Slug string `json:"slug"`
		} `json:"uniqueTournament"`
		Category struct {
			Name string `json:"name"`
			Slug string `json:"slug"`
		} `json:"category"`
	} `json:"tournament"`
	HomeTeam  team  `json:"homeTeam"`
	AwayTeam  team  `json:"awayTeam"`
	HomeScore score `json:"homeScore"`
	AwayScore score `json:"awayScore"`
	Status    struct {
		Code int    `json:"code"`
		Type string `json:"type"`
	} `json:"status"`
	Time struct {
		CurrentPeriodStartTimestamp int64 `json:"currentPeriodStartTimestamp"`
	} `json:"time"`
}

type team struct {
	Name string `json:"name"`
}

type score struct {
	Current int `json:"current"`
}

// LiveMatches returns every football match SofaScore currently reports as
// live.
func (c *Client) LiveMatches(ctx context.Context) ([]model.Match, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+liveEventsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var lr liveResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	now := c.now()
	matches := make([]model.Match, 0, len(lr.Events))
	for _, ev := range lr.Events {
		if ev.ID == 0 {
			continue
		}
		matches = append(matches, toMatch(ev, now))
	}
	return matches, nil
}

func toMatch(ev event, now time.Time) model.Match {
	competition, slug := ev.Tournament.Name, ev.Tournament.Slug
	if ut := ev.Tournament.UniqueTournament; ut != nil && ut.Name != "" {
		competition, slug = ut.Name, ut.Slug
	}
	return model.Match{
		ID:              ev.ID,
		Competition:     competition,
		CompetitionSlug: slug,
		Category:        ev.Tournament.Category.Slug,
		CategoryName:    ev.Tournament.Category.Name,
		HomeTeam:        ev.HomeTeam.Name,
		AwayTeam:        ev.AwayTeam.Name,
		HomeScore:       ev.HomeScore.Current,
		AwayScore:       ev.AwayScore.Current,
		Minute:          elapsedMinute(ev.Status.Code, ev.Time.CurrentPeriodStartTimestamp, now),
		Status:          statusOf(ev.Status.Type),
	}
}

func statusOf(t string) model.MatchStatus {
	switch t {
	case "inprogress":
		return model.StatusLive
	case "finished":
		return model.StatusFinished
	case "notstarted":
		return model.StatusNotStarted
	default:
		return model.StatusSuspended
	}
}

// elapsedMinute converts a period code and its start time into the minute a
// broadcaster would show.
func elapsedMinute(code int, periodStart int64, now time.Time) int {
	if code == codeHalftime {
		return 45
	}

	var offset int
	switch code {
	case codeFirstHalf:
		offset = 0
	case codeSecondHalf:
		offset = 45
	case codeExtraFirst:
		offset = 90
	case codeExtraSecond:
		offset = 105
	default:
		return 0
	}
	if periodStart <= 0 {
		// Without a start time only the period is known; later periods
		// report their first minute so they never read as first half.
		if offset == 0 {
			return 0
		}
		return offset + 1
	}

	elapsed := int(now.Sub(time.Unix(periodStart, 0)) / time.Minute)
	if elapsed < 0 {
		elapsed = 0
	}
	return offset + elapsed + 1
}

func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
