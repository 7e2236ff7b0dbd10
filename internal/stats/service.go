// Package stats builds time-bucketed rollups over historical requests:
// request volume, average duration, average completion time, plus a member
// leaderboard and queue-age summary.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vidqueue/backend/internal/memo"
)

type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

const cacheTTL = 60 * time.Second

// Point is one bucket of the time series. Averages are nil for buckets
// without matching rows.
type Point struct {
	Period             time.Time `json:"period"`
	RequestCount       int       `json:"request_count"`
	AvgDurationSeconds *float64  `json:"avg_duration_seconds"`
	AvgCompletionHours *float64  `json:"avg_completion_hours"`
}

// LeaderboardRow ranks a member by request volume within the window.
// UpvotePercent is nil when none of the member's requests were rated.
type LeaderboardRow struct {
	AccountID     uuid.UUID `json:"account_id"`
	Name          string    `json:"name"`
	RequestCount  int       `json:"request_count"`
	UpvotePercent *float64  `json:"upvote_percent"`
}

type Report struct {
	Start             time.Time        `json:"start"`
	End               time.Time        `json:"end"`
	Granularity       Granularity      `json:"granularity"`
	Series            []Point          `json:"series"`
	Leaderboard       []LeaderboardRow `json:"leaderboard"`
	TotalRequests     int              `json:"total_requests"`
	OldestPendingDays *int             `json:"oldest_pending_days"`
}

// Store is the read-only rollup surface the aggregator queries. unit is a
// date_trunc unit: "day", "week" or "month".
type Store interface {
	RequestCounts(ctx context.Context, start, end time.Time, unit string) (map[time.Time]int, error)
	AvgDurations(ctx context.Context, start, end time.Time, unit string) (map[time.Time]float64, error)
	AvgCompletionHours(ctx context.Context, start, end time.Time, unit string) (map[time.Time]float64, error)
	Leaderboard(ctx context.Context, start, end time.Time, limit int) ([]LeaderboardRow, error)
	OldestPending(ctx context.Context) (*time.Time, error)
}

type Service struct {
	store Store
	cache *memo.Cache
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		cache: memo.New(),
		now:   time.Now,
	}
}

const leaderboardSize = 10

// granularityFor picks the bucket size from the window length: under two
// weeks daily, under ninety days weekly, otherwise monthly.
func granularityFor(start, end time.Time) Granularity {
	days := end.Sub(start).Hours() / 24
	switch {
	case days < 14:
		return GranularityDaily
	case days < 90:
		return GranularityWeekly
	default:
		return GranularityMonthly
	}
}

func (g Granularity) truncUnit() string {
	switch g {
	case GranularityDaily:
		return "day"
	case GranularityWeekly:
		return "week"
	default:
		return "month"
	}
}

// bucketStart truncates t to its bucket's start in UTC. Weeks start on
// Monday, matching Postgres date_trunc('week').
func bucketStart(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	switch g {
	case GranularityDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case GranularityWeekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	default:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

func nextBucket(t time.Time, g Granularity) time.Time {
	switch g {
	case GranularityDaily:
		return t.AddDate(0, 0, 1)
	case GranularityWeekly:
		return t.AddDate(0, 0, 7)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// periodStarts enumerates every bucket start covering [start, end], so the
// series has no holes even for buckets without data.
func periodStarts(start, end time.Time, g Granularity) []time.Time {
	var periods []time.Time
	last := bucketStart(end, g)
	for cur := bucketStart(start, g); !cur.After(last); cur = nextBucket(cur, g) {
		periods = append(periods, cur)
	}
	return periods
}

// Statistics assembles a report for the window. Results are cached for a
// minute per (start, end) pair since admin dashboards poll them.
func (s *Service) Statistics(ctx context.Context, start, end time.Time) (*Report, error) {
	g := granularityFor(start, end)
	key := fmt.Sprintf("stats:%d:%d:%s", start.Unix(), end.Unix(), g)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*Report), nil
	}

	unit := g.truncUnit()
	counts, err := s.store.RequestCounts(ctx, start, end, unit)
	if err != nil {
		return nil, fmt.Errorf("request counts: %w", err)
	}
	durations, err := s.store.AvgDurations(ctx, start, end, unit)
	if err != nil {
		return nil, fmt.Errorf("avg durations: %w", err)
	}
	completions, err := s.store.AvgCompletionHours(ctx, start, end, unit)
	if err != nil {
		return nil, fmt.Errorf("avg completion hours: %w", err)
	}
	leaderboard, err := s.store.Leaderboard(ctx, start, end, leaderboardSize)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	oldest, err := s.store.OldestPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("oldest pending: %w", err)
	}

	report := &Report{
		Start:       start,
		End:         end,
		Granularity: g,
		Leaderboard: leaderboard,
	}
	for _, period := range periodStarts(start, end, g) {
		p := Point{Period: period, RequestCount: counts[period]}
		if v, ok := durations[period]; ok {
			p.AvgDurationSeconds = &v
		}
		if v, ok := completions[period]; ok {
			p.AvgCompletionHours = &v
		}
		report.TotalRequests += p.RequestCount
		report.Series = append(report.Series, p)
	}
	if oldest != nil {
		days := int(s.now().Sub(*oldest).Hours() / 24)
		report.OldestPendingDays = &days
	}

	s.cache.Set(key, report, cacheTTL)
	return report, nil
}
