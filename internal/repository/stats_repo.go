package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidqueue/backend/internal/stats"
)

// StatsRepo serves the read-only rollup queries behind the statistics
// aggregator. Bucketing is done in SQL via date_trunc; the unit parameter is
// "day", "week" or "month".
type StatsRepo struct {
	pool *pgxpool.Pool
}

func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

func (r *StatsRepo) RequestCounts(ctx context.Context, start, end time.Time, unit string) (map[time.Time]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT date_trunc($1, requested_at AT TIME ZONE 'UTC') AS period, COUNT(*)
		FROM video_requests
		WHERE requested_at >= $2 AND requested_at <= $3
		GROUP BY period
	`, unit, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[time.Time]int)
	for rows.Next() {
		var period time.Time
		var n int
		if err := rows.Scan(&period, &n); err != nil {
			return nil, err
		}
		counts[period.UTC()] = n
	}
	return counts, rows.Err()
}

func (r *StatsRepo) AvgDurations(ctx context.Context, start, end time.Time, unit string) (map[time.Time]float64, error) {
	return r.avgByPeriod(ctx, `
		SELECT date_trunc($1, requested_at AT TIME ZONE 'UTC') AS period,
		       AVG(duration_seconds)
		FROM video_requests
		WHERE requested_at >= $2 AND requested_at <= $3
		  AND duration_seconds IS NOT NULL
		GROUP BY period
	`, start, end, unit)
}

// AvgCompletionHours buckets by completion time, so a request submitted in
// one period and finished in another counts toward the period it finished in.
func (r *StatsRepo) AvgCompletionHours(ctx context.Context, start, end time.Time, unit string) (map[time.Time]float64, error) {
	return r.avgByPeriod(ctx, `
		SELECT date_trunc($1, completed_at AT TIME ZONE 'UTC') AS period,
		       AVG(EXTRACT(EPOCH FROM (completed_at - requested_at)) / 3600.0)
		FROM video_requests
		WHERE status = 'done'
		  AND completed_at >= $2 AND completed_at <= $3
		GROUP BY period
	`, start, end, unit)
}

func (r *StatsRepo) avgByPeriod(ctx context.Context, query string, start, end time.Time, unit string) (map[time.Time]float64, error) {
	rows, err := r.pool.Query(ctx, query, unit, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	avgs := make(map[time.Time]float64)
	for rows.Next() {
		var period time.Time
		var avg float64
		if err := rows.Scan(&period, &avg); err != nil {
			return nil, err
		}
		avgs[period.UTC()] = avg
	}
	return avgs, rows.Err()
}

func (r *StatsRepo) Leaderboard(ctx context.Context, start, end time.Time, limit int) ([]stats.LeaderboardRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.name, COUNT(*) AS request_count,
		       CASE WHEN COUNT(v.rating) > 0
		            THEN 100.0 * COUNT(*) FILTER (WHERE v.rating = 'up') / COUNT(v.rating)
		       END AS upvote_percent
		FROM video_requests v
		JOIN accounts a ON a.id = v.account_id
		WHERE v.requested_at >= $1 AND v.requested_at <= $2
		GROUP BY a.id, a.name
		ORDER BY request_count DESC, a.name
		LIMIT $3
	`, start, end, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var board []stats.LeaderboardRow
	for rows.Next() {
		var row stats.LeaderboardRow
		if err := rows.Scan(&row.AccountID, &row.Name, &row.RequestCount, &row.UpvotePercent); err != nil {
			return nil, err
		}
		board = append(board, row)
	}
	return board, rows.Err()
}

// OldestPending returns the submission time of the oldest still-pending
// request, or nil when the queue is empty.
func (r *StatsRepo) OldestPending(ctx context.Context) (*time.Time, error) {
	var at time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT requested_at FROM video_requests
		WHERE status = 'pending'
		ORDER BY requested_at
		LIMIT 1
	`).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}
