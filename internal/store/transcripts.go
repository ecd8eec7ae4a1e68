package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

// InsertTranscript records one audio-ingest attempt end to end: the raw
// and normalized text, whether it passed the prefix gate, the match
// outcome, and which command (if any) it produced (spec.md §4.7, §4.8).
func (db *DB) InsertTranscript(ctx context.Context, t model.AudioTranscript) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO audio_transcripts (device_id, raw_text, normalized_text, prefix_ok, matched_command, confidence, manual, command_id, reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.DeviceID, t.RawText, t.NormalizedText, boolToInt(t.PrefixOK), t.MatchedCommand,
		t.Confidence, boolToInt(t.Manual), t.CommandID, t.Reason, t.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// ListTranscripts returns ingest attempts newest-first, optionally
// filtered by device.
func (db *DB) ListTranscripts(ctx context.Context, deviceID string, limit, offset int) ([]model.AudioTranscript, error) {
	query := `SELECT id, device_id, raw_text, normalized_text, prefix_ok, matched_command, confidence, manual, command_id, reason, timestamp FROM audio_transcripts WHERE 1=1`
	var args []any
	if deviceID != "" {
		query += " AND device_id = ?"
		args = append(args, deviceID)
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	var out []model.AudioTranscript
	for rows.Next() {
		var t model.AudioTranscript
		var prefixOK, manual int
		var ts string
		if err := rows.Scan(&t.ID, &t.DeviceID, &t.RawText, &t.NormalizedText, &prefixOK, &t.MatchedCommand,
			&t.Confidence, &manual, &t.CommandID, &t.Reason, &ts); err != nil {
			return nil, err
		}
		t.PrefixOK = prefixOK != 0
		t.Manual = manual != 0
		t.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, t)
	}
	return out, rows.Err()
}
