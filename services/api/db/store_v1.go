package db

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// TaskDateSummary aggregates the latest daily batches of one task date.
type TaskDateSummary struct {
	TaskDate time.Time `json:"task_date"`
	Scopes   []string  `json:"scopes"`
	Regions  int       `json:"regions"`
	Failed   int       `json:"failed"`
	NoData   int       `json:"no_data"`
}

// TaskDatesPage is a page of task dates, newest first.
type TaskDatesPage struct {
	Dates      []TaskDateSummary `json:"dates"`
	TotalCount int               `json:"total_count"`
}

// ListTaskDates pages through the task dates that have daily rows.
func (s *Store) ListTaskDates(ctx context.Context, dataset string, limit, offset int, start, end *time.Time) (*TaskDatesPage, error) {
	conditions := []string{"z.dataset = $1", "z.slice_date IS NULL"}
	args := []any{dataset}

	if start != nil {
		conditions = append(conditions, "z.task_date >= $"+strconv.Itoa(len(args)+1))
		args = append(args, *start)
	}
	if end != nil {
		conditions = append(conditions, "z.task_date <= $"+strconv.Itoa(len(args)+1))
		args = append(args, *end)
	}
	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	countSQL := "SELECT COUNT(DISTINCT z.task_date) FROM hii.zonal_stats z " + whereClause
	var totalCount int
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&totalCount); err != nil {
		return nil, err
	}

	limitPos := len(args) + 1
	offsetPos := len(args) + 2
	args = append(args, limit, offset)

	query := strings.Builder{}
	query.WriteString("SELECT z.task_date, ARRAY_AGG(DISTINCT z.scope ORDER BY z.scope), COUNT(*), ")
	query.WriteString("COUNT(*) FILTER (WHERE z.error IS NOT NULL), ")
	query.WriteString("COUNT(*) FILTER (WHERE z.error IS NULL AND z.mean IS NULL AND z.min IS NULL AND z.max IS NULL AND z.std_dev IS NULL AND z.sum_per_area IS NULL) ")
	query.WriteString("FROM hii.zonal_stats z ")
	query.WriteString(whereClause + " AND" + latestVersion + " ")
	query.WriteString("GROUP BY z.task_date ")
	query.WriteString("ORDER BY z.task_date DESC ")
	query.WriteString("LIMIT $" + strconv.Itoa(limitPos) + " OFFSET $" + strconv.Itoa(offsetPos))

	rows, err := s.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dates := make([]TaskDateSummary, 0, limit)
	for rows.Next() {
		var d TaskDateSummary
		if err := rows.Scan(&d.TaskDate, &d.Scopes, &d.Regions, &d.Failed, &d.NoData); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &TaskDatesPage{Dates: dates, TotalCount: totalCount}, nil
}

// HistoryQuery holds filters for one region's history.
type HistoryQuery struct {
	Dataset  string
	Scope    string
	RegionID string
	Limit    int
	Since    *time.Time
	Until    *time.Time
}

// RegionHistory returns the latest daily rows of one region, newest first.
func (s *Store) RegionHistory(ctx context.Context, q HistoryQuery) ([]RegionStat, error) {
	conditions := []string{"z.dataset = $1", "z.scope = $2", "z.region_id = $3", "z.slice_date IS NULL"}
	args := []any{q.Dataset, q.Scope, q.RegionID}

	if q.Since != nil {
		conditions = append(conditions, "z.task_date >= $"+strconv.Itoa(len(args)+1))
		args = append(args, *q.Since)
	}
	if q.Until != nil {
		conditions = append(conditions, "z.task_date <= $"+strconv.Itoa(len(args)+1))
		args = append(args, *q.Until)
	}
	args = append(args, q.Limit)

	query := "SELECT" + regionStatColumns + " FROM hii.zonal_stats z WHERE " +
		strings.Join(conditions, " AND ") + " AND" + latestVersion +
		" ORDER BY z.task_date DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRegionStats(rows)
}
