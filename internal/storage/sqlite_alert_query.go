package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertdb/internal/models"
)

// GetByID returns the first alert whose id or last-receive id starts with
// idOrPrefix, including history.
func (r *sqliteAlertRepo) GetByID(ctx context.Context, idOrPrefix string) (alert *models.Alert, err error) {
	defer func(start time.Time) { observe("get_by_id", start, err) }(time.Now())

	if idOrPrefix == "" {
		return nil, nil
	}
	id, err := findID(ctx, r.db, matchIDPrefix, idPrefixArgs(idOrPrefix)...)
	if err != nil {
		return nil, fmt.Errorf("find alert: %w", err)
	}
	if id == "" {
		r.logger.Warn("alert not found", zap.String("id", idOrPrefix))
		return nil, nil
	}
	alert, err = getAlert(ctx, r.db, id, true)
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return alert, nil
}

// GetByKey returns the alert for key. With a severity the match is exact on
// (environment, resource, event, severity); without one, correlated events
// also match.
func (r *sqliteAlertRepo) GetByKey(ctx context.Context, key models.AlertKey, severity models.Severity) (alert *models.Alert, err error) {
	defer func(start time.Time) { observe("get_by_key", start, err) }(time.Now())

	where, args := matchCorrelated, correlatedArgs(key)
	if severity != "" {
		where = matchDuplicate + " AND severity = ?"
		args = append(duplicateArgs(key), string(severity))
	}
	id, err := findID(ctx, r.db, where, args...)
	if err != nil {
		return nil, fmt.Errorf("find alert: %w", err)
	}
	if id == "" {
		r.logger.Warn("alert not found",
			zap.Stringer("key", key),
			zap.String("severity", string(severity)),
		)
		return nil, nil
	}
	alert, err = getAlert(ctx, r.db, id, true)
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return alert, nil
}

// List returns alerts matching opts. No match yields an empty slice.
func (r *sqliteAlertRepo) List(ctx context.Context, opts ListOptions) (alerts []*models.Alert, err error) {
	defer func(start time.Time) { observe("list", start, err) }(time.Now())

	where, args, err := whereClause(opts.Filter)
	if err != nil {
		return nil, err
	}
	tail, err := orderLimitClause(opts.Sort, opts.Limit)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, "SELECT "+alertColumns+" FROM alerts"+where+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	alerts = []*models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}

	// Rows are closed before history is loaded; the store has one connection.
	if opts.WithHistory {
		for _, a := range alerts {
			if a.History, err = loadHistory(ctx, r.db, a.ID); err != nil {
				return nil, err
			}
		}
	}

	if len(alerts) == 0 {
		r.logger.Warn("no alerts found", zap.Any("filter", opts.Filter), zap.Any("sort", opts.Sort), zap.Int("limit", opts.Limit))
	}
	return alerts, nil
}

// Count returns the number of alerts matching filter.
func (r *sqliteAlertRepo) Count(ctx context.Context, filter *AlertFilter) (n int64, err error) {
	defer func(start time.Time) { observe("count", start, err) }(time.Now())

	where, args, err := whereClause(filter)
	if err != nil {
		return 0, err
	}
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

// AggregateCounts tallies matching alerts by severity and status. Every
// known severity and status is present in the result. Nil when nothing matches.
func (r *sqliteAlertRepo) AggregateCounts(ctx context.Context, filter *AlertFilter) (counts *Counts, err error) {
	defer func(start time.Time) { observe("aggregate_counts", start, err) }(time.Now())

	where, args, err := whereClause(filter)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT severity, status, COUNT(*) FROM alerts"+where+" GROUP BY severity, status", args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate alerts: %w", err)
	}
	defer rows.Close()

	counts = newCounts()
	for rows.Next() {
		var sev models.Severity
		var status models.Status
		var n int64
		if err := rows.Scan(&sev, &status, &n); err != nil {
			return nil, fmt.Errorf("scan counts: %w", err)
		}
		counts.BySeverity[sev] += n
		counts.ByStatus[status] += n
		counts.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate alerts: %w", err)
	}

	if counts.Total == 0 {
		r.logger.Warn("no alerts found", zap.Any("filter", filter))
		return nil, nil
	}
	return counts, nil
}

// ListResources returns one entry per (environment, resource), keeping the
// first alert in result order. Sort by descending lastReceiveTime to keep
// the most recent.
func (r *sqliteAlertRepo) ListResources(ctx context.Context, opts ListOptions) (resources []*models.Resource, err error) {
	defer func(start time.Time) { observe("list_resources", start, err) }(time.Now())

	where, args, err := whereClause(opts.Filter)
	if err != nil {
		return nil, err
	}
	// The limit applies to scanned alerts, as with List.
	tail, err := orderLimitClause(opts.Sort, opts.Limit)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT environment, resource, service, last_receive_time FROM alerts"+where+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	type resourceKey struct{ environment, resource string }
	seen := make(map[resourceKey]bool)
	resources = []*models.Resource{}
	for rows.Next() {
		res := &models.Resource{}
		var lrt sql.NullInt64
		if err := rows.Scan(&res.Environment, &res.Resource, &res.Service, &lrt); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		k := resourceKey{res.Environment, res.Resource}
		if seen[k] {
			continue
		}
		seen[k] = true
		res.LastReceiveTime = nsTime(lrt)
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}

	if len(resources) == 0 {
		r.logger.Warn("no resources found", zap.Any("filter", opts.Filter), zap.Any("sort", opts.Sort), zap.Int("limit", opts.Limit))
	}
	return resources, nil
}
