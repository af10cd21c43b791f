package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/alertdb/internal/models"
)

type sqliteMetricRepo struct {
	db *sql.DB
}

// SetGauge stores value for the gauge, replacing any previous value.
func (r *sqliteMetricRepo) SetGauge(ctx context.Context, id models.MetricIdentity, value int64) (err error) {
	defer func(start time.Time) { observe("set_gauge", start, err) }(time.Now())

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO metrics (grp, name, type, title, description, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (grp, name, type, title, description) DO UPDATE SET
			value = excluded.value
	`, id.Group, id.Name, models.MetricTypeGauge, id.Title, id.Description, value)
	if err != nil {
		return fmt.Errorf("set gauge: %w", err)
	}
	return nil
}

// IncrementTimer adds one observation of elapsedMillis to the timer.
func (r *sqliteMetricRepo) IncrementTimer(ctx context.Context, id models.MetricIdentity, elapsedMillis int64) (err error) {
	defer func(start time.Time) { observe("increment_timer", start, err) }(time.Now())

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO metrics (grp, name, type, title, description, count, total_time)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (grp, name, type, title, description) DO UPDATE SET
			count = count + 1,
			total_time = total_time + excluded.total_time
	`, id.Group, id.Name, models.MetricTypeTimer, id.Title, id.Description, elapsedMillis)
	if err != nil {
		return fmt.Errorf("increment timer: %w", err)
	}
	return nil
}

// List returns all metrics.
func (r *sqliteMetricRepo) List(ctx context.Context) (metrics []*models.Metric, err error) {
	defer func(start time.Time) { observe("list_metrics", start, err) }(time.Now())

	rows, err := r.db.QueryContext(ctx, `
		SELECT grp, name, type, title, description, value, count, total_time
		FROM metrics ORDER BY grp, name, type
	`)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	metrics = []*models.Metric{}
	for rows.Next() {
		m := &models.Metric{}
		if err := rows.Scan(&m.Group, &m.Name, &m.Type, &m.Title, &m.Description,
			&m.Value, &m.Count, &m.TotalTime); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
