package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

// InsertStateSnapshot appends a new immutable state record for a device.
// Snapshots are append-only: they are never updated (spec.md §4.3), and
// are deleted only by retention pruning (PruneStateSnapshotsOlderThan).
func (db *DB) InsertStateSnapshot(ctx context.Context, s model.StateSnapshot) error {
	payloadJSON, err := json.Marshal(s.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO state_snapshots (device_id, device_type, payload, timestamp)
		VALUES (?, ?, ?, ?)
	`, s.DeviceID, s.DeviceType, string(payloadJSON), s.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert state snapshot: %w", err)
	}
	return nil
}

// ListStateSnapshots returns the most recent snapshots for a device, newest
// first, bounded by limit/offset (spec.md §5 pagination rules).
func (db *DB) ListStateSnapshots(ctx context.Context, deviceID string, limit, offset int) ([]model.StateSnapshot, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, device_id, device_type, payload, timestamp
		FROM state_snapshots WHERE device_id = ? ORDER BY id DESC LIMIT ? OFFSET ?
	`, deviceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list state snapshots: %w", err)
	}
	defer rows.Close()

	var out []model.StateSnapshot
	for rows.Next() {
		var s model.StateSnapshot
		var payloadJSON, ts string
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.DeviceType, &payloadJSON, &ts); err != nil {
			return nil, err
		}
		if payloadJSON != "" {
			_ = json.Unmarshal([]byte(payloadJSON), &s.Payload)
		}
		s.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, s)
	}
	return out, rows.Err()
}
