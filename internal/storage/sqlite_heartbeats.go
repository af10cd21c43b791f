package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/alertdb/internal/models"
)

type sqliteHeartbeatRepo struct {
	db *sql.DB
}

// Upsert replaces the heartbeat for hb.Origin, inserting it if absent.
func (r *sqliteHeartbeatRepo) Upsert(ctx context.Context, hb *models.Heartbeat) (err error) {
	defer func(start time.Time) { observe("upsert_heartbeat", start, err) }(time.Now())

	if hb.Origin == "" {
		return fmt.Errorf("heartbeat origin is required")
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO heartbeats (origin, version, create_time, receive_time, timeout)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (origin) DO UPDATE SET
			version = excluded.version,
			create_time = excluded.create_time,
			receive_time = excluded.receive_time,
			timeout = excluded.timeout
	`, hb.Origin, hb.Version, timeArg(hb.CreateTime), timeArg(hb.ReceiveTime), hb.Timeout)
	if err != nil {
		return fmt.Errorf("upsert heartbeat: %w", err)
	}
	return nil
}

// List returns all heartbeats ordered by origin.
func (r *sqliteHeartbeatRepo) List(ctx context.Context) (heartbeats []*models.Heartbeat, err error) {
	defer func(start time.Time) { observe("list_heartbeats", start, err) }(time.Now())

	rows, err := r.db.QueryContext(ctx,
		"SELECT origin, version, create_time, receive_time, timeout FROM heartbeats ORDER BY origin")
	if err != nil {
		return nil, fmt.Errorf("query heartbeats: %w", err)
	}
	defer rows.Close()

	heartbeats = []*models.Heartbeat{}
	for rows.Next() {
		hb := &models.Heartbeat{}
		var createTime, receiveTime sql.NullInt64
		if err := rows.Scan(&hb.Origin, &hb.Version, &createTime, &receiveTime, &hb.Timeout); err != nil {
			return nil, fmt.Errorf("scan heartbeat: %w", err)
		}
		hb.CreateTime = nsTime(createTime)
		hb.ReceiveTime = nsTime(receiveTime)
		heartbeats = append(heartbeats, hb)
	}
	return heartbeats, rows.Err()
}
