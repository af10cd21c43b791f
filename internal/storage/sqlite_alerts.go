package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertdb/internal/models"
)

type sqliteAlertRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

const alertColumns = `id, last_receive_id, environment, resource, event, correlated_events,
	severity, previous_severity, trend_indication, status, repeat, duplicate_count,
	alert_group, value, service, text, tags, origin, threshold_info, summary,
	raw_data, more_info, graph_urls, event_type,
	create_time, receive_time, last_receive_time, expire_time, timeout`

// Match clauses. Each is used both by classification and, inside the
// mutation transaction, to re-validate the match.
const (
	matchDuplicate  = "environment = ? AND resource = ? AND event = ?"
	matchCorrelated = "environment = ? AND resource = ? AND (event = ? OR EXISTS (SELECT 1 FROM json_each(alerts.correlated_events) WHERE value = ?))"
	matchIDPrefix   = "(instr(id, ?) = 1 OR instr(last_receive_id, ?) = 1)"
)

func duplicateArgs(k models.AlertKey) []any {
	return []any{k.Environment, k.Resource, k.Event}
}

func correlatedArgs(k models.AlertKey) []any {
	return []any{k.Environment, k.Resource, k.Event, k.Event}
}

func idPrefixArgs(prefix string) []any {
	return []any{prefix, prefix}
}

// findID returns the id of the first alert matching where, or "" if none.
func findID(ctx context.Context, q querier, where string, args ...any) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, "SELECT id FROM alerts WHERE "+where+" ORDER BY rowid LIMIT 1", args...).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// Classification

func (r *sqliteAlertRepo) IsDuplicate(ctx context.Context, alert *models.Alert, severity models.Severity) (found bool, err error) {
	defer func(start time.Time) { observe("is_duplicate", start, err) }(time.Now())

	where, args := matchDuplicate, duplicateArgs(alert.Key())
	if severity != "" {
		where += " AND severity = ?"
		args = append(args, string(severity))
	}
	id, err := findID(ctx, r.db, where, args...)
	if err != nil {
		return false, fmt.Errorf("find duplicate: %w", err)
	}
	return id != "", nil
}

func (r *sqliteAlertRepo) IsCorrelated(ctx context.Context, alert *models.Alert) (found bool, err error) {
	defer func(start time.Time) { observe("is_correlated", start, err) }(time.Now())

	id, err := findID(ctx, r.db, matchCorrelated, correlatedArgs(alert.Key())...)
	if err != nil {
		return false, fmt.Errorf("find correlated: %w", err)
	}
	return id != "", nil
}

func (r *sqliteAlertRepo) CurrentSeverity(ctx context.Context, alert *models.Alert) (sev models.Severity, err error) {
	defer func(start time.Time) { observe("current_severity", start, err) }(time.Now())

	var s string
	err = r.db.QueryRowContext(ctx,
		"SELECT severity FROM alerts WHERE "+matchCorrelated+" ORDER BY rowid LIMIT 1",
		correlatedArgs(alert.Key())...,
	).Scan(&s)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", ErrNotFound, alert.Key())
	}
	if err != nil {
		return "", fmt.Errorf("get severity: %w", err)
	}
	return models.Severity(s), nil
}

// Mutation

// Create inserts a new alert and seeds its history with one event snapshot.
// It must only be called once classification found no matching record.
func (r *sqliteAlertRepo) Create(ctx context.Context, alert *models.Alert) (created *models.Alert, err error) {
	defer func(start time.Time) { observe("create", start, err) }(time.Now())

	if verr := alert.Validate(); verr != nil {
		r.logger.Error("attempt to insert invalid document", zap.Error(verr), zap.Any("alert", alert))
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, verr)
	}

	a := normalizeIncoming(alert)
	if a.Status == "" {
		a.Status = models.StatusOpen
	}
	if a.PreviousSeverity == "" {
		a.PreviousSeverity = models.SeverityUnknown
	}
	if a.TrendIndication == "" {
		a.TrendIndication = models.TrendNoChange
	}

	correlated, err := jsonArg(stringsOrEmpty(a.CorrelatedEvents))
	if err != nil {
		return nil, fmt.Errorf("marshal correlated events: %w", err)
	}
	tags, err := jsonArg(tagsOrEmpty(a.Tags))
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	graphURLs, err := jsonArg(stringsOrEmpty(a.GraphURLs))
	if err != nil {
		return nil, fmt.Errorf("marshal graph urls: %w", err)
	}

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO alerts (`+alertColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			a.ID, a.LastReceiveID, a.Environment, a.Resource, a.Event, correlated,
			a.Severity, a.PreviousSeverity, a.TrendIndication, a.Status, boolToInt(a.Repeat), a.DuplicateCount,
			a.Group, a.Value, a.Service, a.Text, tags, a.Origin, a.ThresholdInfo, a.Summary,
			a.RawData, a.MoreInfo, graphURLs, a.EventType,
			timeArg(a.CreateTime), timeArg(a.ReceiveTime), timeArg(a.LastReceiveTime), timeArg(a.ExpireTime), a.Timeout,
		)
		if err != nil {
			return err
		}
		if err := insertHistory(ctx, tx, a.ID, a.EventSnapshot()); err != nil {
			return err
		}
		created, err = getAlert(ctx, tx, a.ID, true)
		return err
	})
	if err != nil {
		constraint, primaryKey := isConstraint(err)
		switch {
		case primaryKey:
			r.logger.Warn("alert id already stored", zap.String("id", a.ID))
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, a.ID)
		case constraint:
			r.logger.Error("attempt to insert invalid document", zap.Error(err), zap.Any("alert", a))
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		return nil, fmt.Errorf("insert alert: %w", err)
	}
	return created, nil
}

// RecordDuplicate marks the alert matching (environment, resource, event) as
// a repeat and bumps its duplicate count. History is left untouched.
func (r *sqliteAlertRepo) RecordDuplicate(ctx context.Context, alert *models.Alert) (updated *models.Alert, err error) {
	defer func(start time.Time) { observe("record_duplicate", start, err) }(time.Now())

	a := normalizeIncoming(alert)

	var fs fieldSet
	fs.set("repeat", 1)
	fs.expr("duplicate_count = duplicate_count + 1")
	fs.set("last_receive_id", a.ID)
	fs.setTime("last_receive_time", a.ReceiveTime)
	if err := setDescriptive(&fs, a); err != nil {
		return nil, err
	}

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		id, err := findID(ctx, tx, matchDuplicate, duplicateArgs(a.Key())...)
		if err != nil || id == "" {
			return err
		}
		if err := updateByID(ctx, tx, &fs, id); err != nil {
			return err
		}
		updated, err = getAlert(ctx, tx, id, true)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("record duplicate: %w", err)
	}
	if updated == nil {
		r.logger.Warn("no alert to record duplicate against", zap.Stringer("key", a.Key()))
	}
	return updated, nil
}

// Correlate replaces the state of the alert correlated with the incoming one,
// resets its duplicate count and appends an event snapshot, all in one
// transaction.
func (r *sqliteAlertRepo) Correlate(ctx context.Context, alert *models.Alert, previous models.Severity, trend models.Trend) (updated *models.Alert, err error) {
	defer func(start time.Time) { observe("correlate", start, err) }(time.Now())

	if previous == "" {
		previous = models.SeverityUnknown
	}
	if trend == "" {
		trend = models.TrendNoChange
	}
	a := normalizeIncoming(alert)

	var fs fieldSet
	fs.set("event", a.Event)
	fs.set("severity", string(a.Severity))
	fs.set("previous_severity", string(previous))
	fs.set("trend_indication", string(trend))
	fs.set("repeat", 0)
	fs.set("duplicate_count", 0)
	fs.set("last_receive_id", a.ID)
	fs.setTime("create_time", a.CreateTime)
	fs.setTime("receive_time", a.ReceiveTime)
	fs.setTime("last_receive_time", a.ReceiveTime)
	fs.setString("event_type", a.EventType)
	if err := setDescriptive(&fs, a); err != nil {
		return nil, err
	}

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		id, err := findID(ctx, tx, matchCorrelated, correlatedArgs(a.Key())...)
		if err != nil || id == "" {
			return err
		}
		if err := updateByID(ctx, tx, &fs, id); err != nil {
			return err
		}
		if err := insertHistory(ctx, tx, id, a.EventSnapshot()); err != nil {
			return err
		}
		updated, err = getAlert(ctx, tx, id, true)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("correlate alert: %w", err)
	}
	if updated == nil {
		r.logger.Warn("no alert to correlate with", zap.Stringer("key", a.Key()))
	}
	return updated, nil
}

// SetStatus changes the status of the selected alert and appends a status
// snapshot. Nothing else is modified.
func (r *sqliteAlertRepo) SetStatus(ctx context.Context, sel Selector, status models.Status, text string) (updated *models.Alert, err error) {
	defer func(start time.Time) { observe("set_status", start, err) }(time.Now())

	where, args := matchCorrelated, correlatedArgs(sel.Key)
	if sel.IDPrefix != "" {
		where, args = matchIDPrefix, idPrefixArgs(sel.IDPrefix)
	}

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		id, err := findID(ctx, tx, where, args...)
		if err != nil || id == "" {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE alerts SET status = ? WHERE id = ?", string(status), id); err != nil {
			return err
		}
		if err := insertHistory(ctx, tx, id, models.StatusSnapshot(status, text, time.Now().UTC())); err != nil {
			return err
		}
		updated, err = getAlert(ctx, tx, id, true)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	if updated == nil {
		r.logger.Warn("alert not found, could not update status",
			zap.String("id", sel.IDPrefix),
			zap.Stringer("key", sel.Key),
			zap.String("status", string(status)),
		)
	}
	return updated, nil
}

// Delete removes every alert whose id or last-receive id starts with prefix.
func (r *sqliteAlertRepo) Delete(ctx context.Context, idPrefix string) (n int64, err error) {
	defer func(start time.Time) { observe("delete", start, err) }(time.Now())

	if idPrefix == "" {
		return 0, ErrEmptyPrefix
	}
	result, err := r.db.ExecContext(ctx, "DELETE FROM alerts WHERE "+matchIDPrefix, idPrefixArgs(idPrefix)...)
	if err != nil {
		return 0, fmt.Errorf("delete alert: %w", err)
	}
	return result.RowsAffected()
}

// Tag sets one key of the tag map on every alert matching idPrefix.
func (r *sqliteAlertRepo) Tag(ctx context.Context, idPrefix, tag string) (n int64, err error) {
	defer func(start time.Time) { observe("tag", start, err) }(time.Now())

	if idPrefix == "" {
		return 0, ErrEmptyPrefix
	}
	key, value := models.ParseTag(tag)
	if key == "" {
		return 0, fmt.Errorf("empty tag key in %q", tag)
	}

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT id, tags FROM alerts WHERE "+matchIDPrefix, idPrefixArgs(idPrefix)...)
		if err != nil {
			return err
		}
		type tagged struct {
			id   string
			tags map[string]string
		}
		var pending []tagged
		for rows.Next() {
			var id, raw string
			if err := rows.Scan(&id, &raw); err != nil {
				rows.Close()
				return err
			}
			tags := map[string]string{}
			if err := json.Unmarshal([]byte(raw), &tags); err != nil {
				rows.Close()
				return fmt.Errorf("unmarshal tags: %w", err)
			}
			tags[key] = value
			pending = append(pending, tagged{id: id, tags: tags})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, p := range pending {
			raw, err := jsonArg(p.tags)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "UPDATE alerts SET tags = ? WHERE id = ?", raw, p.id); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("tag alert: %w", err)
	}
	return n, nil
}

// DeleteResource removes every alert whose resource starts with prefix.
func (r *sqliteAlertRepo) DeleteResource(ctx context.Context, resourcePrefix string) (n int64, err error) {
	defer func(start time.Time) { observe("delete_resource", start, err) }(time.Now())

	if resourcePrefix == "" {
		return 0, ErrEmptyPrefix
	}
	result, err := r.db.ExecContext(ctx, "DELETE FROM alerts WHERE instr(resource, ?) = 1", resourcePrefix)
	if err != nil {
		return 0, fmt.Errorf("delete resource: %w", err)
	}
	return result.RowsAffected()
}

// normalizeIncoming returns a copy of alert with receive and create times
// filled in.
func normalizeIncoming(alert *models.Alert) *models.Alert {
	a := *alert
	if a.ReceiveTime.IsZero() {
		a.ReceiveTime = time.Now().UTC()
	}
	if a.CreateTime.IsZero() {
		a.CreateTime = a.ReceiveTime
	}
	if a.LastReceiveTime.IsZero() {
		a.LastReceiveTime = a.ReceiveTime
	}
	if a.LastReceiveID == "" {
		a.LastReceiveID = a.ID
	}
	return &a
}

// setDescriptive records the descriptive fields carried by the incoming alert.
// The event type belongs to the event and is only replaced on correlation.
func setDescriptive(fs *fieldSet, a *models.Alert) error {
	if err := fs.setJSON("correlated_events", a.CorrelatedEvents, len(a.CorrelatedEvents) > 0); err != nil {
		return fmt.Errorf("marshal correlated events: %w", err)
	}
	fs.setString("alert_group", a.Group)
	fs.setString("value", a.Value)
	fs.setString("service", a.Service)
	fs.setString("text", a.Text)
	if err := fs.setJSON("tags", a.Tags, len(a.Tags) > 0); err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	fs.setString("origin", a.Origin)
	fs.setString("threshold_info", a.ThresholdInfo)
	fs.setString("summary", a.Summary)
	fs.setString("raw_data", a.RawData)
	fs.setString("more_info", a.MoreInfo)
	if err := fs.setJSON("graph_urls", a.GraphURLs, len(a.GraphURLs) > 0); err != nil {
		return fmt.Errorf("marshal graph urls: %w", err)
	}
	fs.setTime("expire_time", a.ExpireTime)
	if a.Timeout > 0 {
		fs.set("timeout", a.Timeout)
	}
	return nil
}

func updateByID(ctx context.Context, tx *sql.Tx, fs *fieldSet, id string) error {
	args := append(append([]any{}, fs.args...), id)
	_, err := tx.ExecContext(ctx, "UPDATE alerts SET "+fs.clause()+" WHERE id = ?", args...)
	return err
}

// getAlert loads one alert by exact id; nil if absent.
func getAlert(ctx context.Context, q querier, id string, withHistory bool) (*models.Alert, error) {
	alert, err := scanAlert(q.QueryRowContext(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if withHistory {
		if alert.History, err = loadHistory(ctx, q, alert.ID); err != nil {
			return nil, err
		}
	}
	return alert, nil
}

func scanAlert(row scanner) (*models.Alert, error) {
	a := &models.Alert{}
	var correlated, tags, graphURLs string
	var repeat int
	var createTime, receiveTime, lastReceiveTime, expireTime sql.NullInt64

	err := row.Scan(
		&a.ID, &a.LastReceiveID, &a.Environment, &a.Resource, &a.Event, &correlated,
		&a.Severity, &a.PreviousSeverity, &a.TrendIndication, &a.Status, &repeat, &a.DuplicateCount,
		&a.Group, &a.Value, &a.Service, &a.Text, &tags, &a.Origin, &a.ThresholdInfo, &a.Summary,
		&a.RawData, &a.MoreInfo, &graphURLs, &a.EventType,
		&createTime, &receiveTime, &lastReceiveTime, &expireTime, &a.Timeout,
	)
	if err != nil {
		return nil, err
	}

	a.Repeat = repeat != 0
	a.CreateTime = nsTime(createTime)
	a.ReceiveTime = nsTime(receiveTime)
	a.LastReceiveTime = nsTime(lastReceiveTime)
	a.ExpireTime = nsTime(expireTime)

	if err := json.Unmarshal([]byte(correlated), &a.CorrelatedEvents); err != nil {
		return nil, fmt.Errorf("unmarshal correlated events: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(graphURLs), &a.GraphURLs); err != nil {
		return nil, fmt.Errorf("unmarshal graph urls: %w", err)
	}
	return a, nil
}
