package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

// UpsertDevice writes the current known state of a device, overwriting any
// previous row. It is called by the registry on every registration,
// heartbeat-driven transition, and disconnect so the store always mirrors
// the in-memory registry (spec.md §4.2).
func (db *DB) UpsertDevice(ctx context.Context, d model.Device) error {
	metaJSON, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var disconnectedAt any
	if d.DisconnectedAt != nil {
		disconnectedAt = d.DisconnectedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO devices (device_id, device_type, is_online, last_heartbeat, connected_at, disconnected_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			device_type = excluded.device_type,
			is_online = excluded.is_online,
			last_heartbeat = excluded.last_heartbeat,
			connected_at = excluded.connected_at,
			disconnected_at = excluded.disconnected_at,
			metadata = excluded.metadata
	`,
		d.DeviceID, d.DeviceType, boolToInt(d.IsOnline),
		d.LastHeartbeat.UTC().Format(time.RFC3339Nano),
		d.ConnectedAt.UTC().Format(time.RFC3339Nano),
		disconnectedAt, string(metaJSON),
	)
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

// GetDevice returns the stored row for deviceID, or sql.ErrNoRows if absent.
func (db *DB) GetDevice(ctx context.Context, deviceID string) (model.Device, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT device_id, device_type, is_online, last_heartbeat, connected_at, disconnected_at, metadata
		FROM devices WHERE device_id = ?
	`, deviceID)
	return scanDevice(row)
}

// ListDevices returns every known device ordered by device_id, optionally
// filtered by type, honoring the read-side pagination rules of spec.md §5.
func (db *DB) ListDevices(ctx context.Context, deviceType string, limit, offset int) ([]model.Device, error) {
	var rows *sql.Rows
	var err error
	if deviceType != "" {
		rows, err = db.conn.QueryContext(ctx, `
			SELECT device_id, device_type, is_online, last_heartbeat, connected_at, disconnected_at, metadata
			FROM devices WHERE device_type = ? ORDER BY device_id LIMIT ? OFFSET ?
		`, deviceType, limit, offset)
	} else {
		rows, err = db.conn.QueryContext(ctx, `
			SELECT device_id, device_type, is_online, last_heartbeat, connected_at, disconnected_at, metadata
			FROM devices ORDER BY device_id LIMIT ? OFFSET ?
		`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (model.Device, error) {
	var d model.Device
	var online int
	var lastHeartbeat, connectedAt string
	var disconnectedAt sql.NullString
	var metaJSON string

	if err := s.Scan(&d.DeviceID, &d.DeviceType, &online, &lastHeartbeat, &connectedAt, &disconnectedAt, &metaJSON); err != nil {
		return model.Device{}, err
	}

	d.IsOnline = online != 0
	d.LastHeartbeat, _ = time.Parse(time.RFC3339Nano, lastHeartbeat)
	d.ConnectedAt, _ = time.Parse(time.RFC3339Nano, connectedAt)
	if disconnectedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, disconnectedAt.String)
		if err == nil {
			d.DisconnectedAt = &t
		}
	}
	if metaJSON != "" {
		_ = json.Unmarshal([]byte(metaJSON), &d.Metadata)
	}
	return d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
