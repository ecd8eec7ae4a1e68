package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

// statusRank orders lifecycle states so UpdateCommandStatus can refuse to
// move a command backwards (spec.md §4.5 invariant: no regressions).
var statusRank = map[model.CommandStatus]int{
	model.CommandCreated:     0,
	model.CommandSent:        1,
	model.CommandAckSuccess:  2,
	model.CommandAckError:    2,
	model.CommandTimeout:     2,
	model.CommandNoTargets:   2,
}

// CreateCommand inserts a new command record in the "created" state.
func (db *DB) CreateCommand(ctx context.Context, c model.CommandRecord) error {
	payloadJSON, err := json.Marshal(c.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO commands (command_id, device_type, command_name, payload, status, target_device_count, success_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.CommandID, c.DeviceType, c.CommandName, string(payloadJSON), c.Status,
		c.TargetDeviceCount, c.SuccessCount, c.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("create command: %w", err)
	}
	return nil
}

// UpdateCommandStatus transitions a command's lifecycle state. It is a
// no-op (returning nil) if the requested status would be a regression from
// the current stored status, or a move from one terminal status to another,
// since the in-memory router's fsm is the
// source of truth for legality and the store only needs to guard against
// out-of-order writes landing after a terminal state.
func (db *DB) UpdateCommandStatus(ctx context.Context, commandID string, status model.CommandStatus, executedAt, completedAt *time.Time, targetDeviceCount *int, response map[string]any) error {
	current, err := db.getCommandStatus(ctx, commandID)
	if err != nil {
		return err
	}
	if status != current && statusRank[status] <= statusRank[current] {
		return nil
	}

	var respJSON any
	if response != nil {
		b, err := json.Marshal(response)
		if err != nil {
			return fmt.Errorf("marshal response payload: %w", err)
		}
		respJSON = string(b)
	}

	var executedAtStr, completedAtStr any
	if executedAt != nil {
		executedAtStr = executedAt.UTC().Format(time.RFC3339Nano)
	}
	if completedAt != nil {
		completedAtStr = completedAt.UTC().Format(time.RFC3339Nano)
	}

	var targetCount any
	if targetDeviceCount != nil {
		targetCount = *targetDeviceCount
	}

	_, err = db.conn.ExecContext(ctx, `
		UPDATE commands SET status = ?, executed_at = COALESCE(?, executed_at), completed_at = COALESCE(?, completed_at),
			target_device_count = COALESCE(?, target_device_count), response_payload = COALESCE(?, response_payload)
		WHERE command_id = ?
	`, status, executedAtStr, completedAtStr, targetCount, respJSON, commandID)
	if err != nil {
		return fmt.Errorf("update command status: %w", err)
	}
	return nil
}

// IncrementSuccessCount bumps the ack success counter for a fan-out command.
func (db *DB) IncrementSuccessCount(ctx context.Context, commandID string) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE commands SET success_count = success_count + 1 WHERE command_id = ?`, commandID)
	if err != nil {
		return fmt.Errorf("increment success count: %w", err)
	}
	return nil
}

func (db *DB) getCommandStatus(ctx context.Context, commandID string) (model.CommandStatus, error) {
	var status model.CommandStatus
	err := db.conn.QueryRowContext(ctx, `SELECT status FROM commands WHERE command_id = ?`, commandID).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("get command status: %w", err)
	}
	return status, nil
}

// GetCommand returns a single command record by ID.
func (db *DB) GetCommand(ctx context.Context, commandID string) (model.CommandRecord, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT command_id, device_type, command_name, payload, status, target_device_count, success_count, created_at, executed_at, completed_at, response_payload
		FROM commands WHERE command_id = ?
	`, commandID)
	return scanCommand(row)
}

// ListCommands returns commands ordered newest-first, optionally filtered
// by status and/or device type.
func (db *DB) ListCommands(ctx context.Context, status model.CommandStatus, deviceType string, limit, offset int) ([]model.CommandRecord, error) {
	query := `SELECT command_id, device_type, command_name, payload, status, target_device_count, success_count, created_at, executed_at, completed_at, response_payload FROM commands WHERE 1=1`
	var args []any
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if deviceType != "" {
		query += " AND device_type = ?"
		args = append(args, deviceType)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	var out []model.CommandRecord
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCommand(s scanner) (model.CommandRecord, error) {
	var c model.CommandRecord
	var payloadJSON string
	var createdAt string
	var executedAt, completedAt, responsePayload sql.NullString

	if err := s.Scan(&c.CommandID, &c.DeviceType, &c.CommandName, &payloadJSON, &c.Status,
		&c.TargetDeviceCount, &c.SuccessCount, &createdAt, &executedAt, &completedAt, &responsePayload); err != nil {
		return model.CommandRecord{}, err
	}

	if payloadJSON != "" {
		_ = json.Unmarshal([]byte(payloadJSON), &c.Payload)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if executedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, executedAt.String)
		if err == nil {
			c.ExecutedAt = &t
		}
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err == nil {
			c.CompletedAt = &t
		}
	}
	if responsePayload.Valid && responsePayload.String != "" {
		_ = json.Unmarshal([]byte(responsePayload.String), &c.ResponsePayload)
	}
	return c, nil
}
