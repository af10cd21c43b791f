package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/alertdb/internal/models"
)

const historyColumns = `kind, receive_id, event, severity, value, status, text,
	create_time, receive_time, update_time`

func insertHistory(ctx context.Context, q querier, alertID string, h models.HistoryEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO alert_history (alert_id, `+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		alertID, h.Kind, h.ID, h.Event, h.Severity, h.Value, h.Status, h.Text,
		timeArg(h.CreateTime), timeArg(h.ReceiveTime), timeArg(h.UpdateTime),
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// loadHistory returns the history of one alert in append order.
func loadHistory(ctx context.Context, q querier, alertID string) ([]models.HistoryEntry, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+historyColumns+" FROM alert_history WHERE alert_id = ? ORDER BY seq ASC", alertID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	history := []models.HistoryEntry{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func scanHistory(row scanner) (models.HistoryEntry, error) {
	var h models.HistoryEntry
	var createTime, receiveTime, updateTime sql.NullInt64
	err := row.Scan(
		&h.Kind, &h.ID, &h.Event, &h.Severity, &h.Value, &h.Status, &h.Text,
		&createTime, &receiveTime, &updateTime,
	)
	if err != nil {
		return h, fmt.Errorf("scan history: %w", err)
	}
	h.CreateTime = nsTime(createTime)
	h.ReceiveTime = nsTime(receiveTime)
	h.UpdateTime = nsTime(updateTime)
	return h, nil
}

// ListOverHistory returns the ids of alerts holding more than maxEntries history entries.
func (r *sqliteAlertRepo) ListOverHistory(ctx context.Context, maxEntries int) (ids []string, err error) {
	defer func(start time.Time) { observe("list_over_history", start, err) }(time.Now())

	rows, err := r.db.QueryContext(ctx,
		"SELECT alert_id FROM alert_history GROUP BY alert_id HAVING COUNT(*) > ? ORDER BY alert_id", maxEntries)
	if err != nil {
		return nil, fmt.Errorf("query history counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan alert id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TrimHistory removes all but the newest keep history entries of an alert
// and returns the removed entries, oldest first.
func (r *sqliteAlertRepo) TrimHistory(ctx context.Context, alertID string, keep int) (trimmed []*models.ArchivedHistory, err error) {
	defer func(start time.Time) { observe("trim_history", start, err) }(time.Now())

	if keep < 0 {
		keep = 0
	}
	now := time.Now().UTC()

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		var environment, resource string
		err := tx.QueryRowContext(ctx, "SELECT environment, resource FROM alerts WHERE id = ?", alertID).
			Scan(&environment, &resource)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}

		// Everything past the newest keep entries.
		rows, err := tx.QueryContext(ctx, `
			SELECT seq, `+historyColumns+` FROM alert_history
			WHERE alert_id = ? ORDER BY seq DESC LIMIT -1 OFFSET ?
		`, alertID, keep)
		if err != nil {
			return err
		}
		var maxSeq int64
		for rows.Next() {
			var seq int64
			var h models.HistoryEntry
			var createTime, receiveTime, updateTime sql.NullInt64
			if err := rows.Scan(&seq,
				&h.Kind, &h.ID, &h.Event, &h.Severity, &h.Value, &h.Status, &h.Text,
				&createTime, &receiveTime, &updateTime,
			); err != nil {
				rows.Close()
				return fmt.Errorf("scan history: %w", err)
			}
			h.CreateTime = nsTime(createTime)
			h.ReceiveTime = nsTime(receiveTime)
			h.UpdateTime = nsTime(updateTime)
			if seq > maxSeq {
				maxSeq = seq
			}
			trimmed = append(trimmed, &models.ArchivedHistory{
				AlertID:     alertID,
				Environment: environment,
				Resource:    resource,
				Entry:       h,
				ArchivedAt:  now,
			})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(trimmed) == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, "DELETE FROM alert_history WHERE alert_id = ? AND seq <= ?", alertID, maxSeq)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("trim history: %w", err)
	}

	// oldest first
	for i, j := 0, len(trimmed)-1; i < j; i, j = i+1, j-1 {
		trimmed[i], trimmed[j] = trimmed[j], trimmed[i]
	}
	return trimmed, nil
}
