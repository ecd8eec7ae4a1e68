package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

// InsertConnectionEvent records a connect/disconnect/timeout/reregistration
// event for auditing (spec.md §4.2, §8.2).
func (db *DB) InsertConnectionEvent(ctx context.Context, e model.ConnectionEvent) error {
	var detailsJSON any
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		detailsJSON = string(b)
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO connection_events (device_id, device_type, kind, timestamp, details)
		VALUES (?, ?, ?, ?, ?)
	`, e.DeviceID, e.DeviceType, e.Kind, e.Timestamp.UTC().Format(time.RFC3339Nano), detailsJSON)
	if err != nil {
		return fmt.Errorf("insert connection event: %w", err)
	}
	return nil
}

// ListConnectionEvents returns events for a device, newest first.
func (db *DB) ListConnectionEvents(ctx context.Context, deviceID string, limit, offset int) ([]model.ConnectionEvent, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, device_id, device_type, kind, timestamp, details
		FROM connection_events WHERE device_id = ? ORDER BY id DESC LIMIT ? OFFSET ?
	`, deviceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list connection events: %w", err)
	}
	defer rows.Close()

	var out []model.ConnectionEvent
	for rows.Next() {
		var e model.ConnectionEvent
		var ts string
		var details *string
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.DeviceType, &e.Kind, &ts, &details); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if details != nil && *details != "" {
			_ = json.Unmarshal([]byte(*details), &e.Details)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
