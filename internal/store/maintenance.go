package store

import (
	"context"
	"fmt"
	"time"
)

// maintenanceTables lists every table the dbtool stats command reports row
// counts for (pruning covers only snapshots, connection events and
// transcripts, via the Prune* methods below), mirroring a hardcoded table list kept at
// the call site rather than derived from sqlite_master (new tables need
// an explicit decision about whether dbtool should touch them).
var maintenanceTables = []string{
	"devices",
	"state_snapshots",
	"commands",
	"connection_events",
	"audio_transcripts",
}

// TableCounts returns the row count of every audit-store table, used by
// "dbtool stats" to give an operator a quick read on database size.
func (db *DB) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(maintenanceTables))
	for _, table := range maintenanceTables {
		var n int64
		if err := db.conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// PruneStateSnapshotsOlderThan deletes snapshot rows whose timestamp
// precedes cutoff and reports how many were removed.
func (db *DB) PruneStateSnapshotsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM state_snapshots WHERE timestamp < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune state snapshots: %w", err)
	}
	return res.RowsAffected()
}

// PruneTranscriptsOlderThan deletes audio transcript rows whose timestamp
// precedes cutoff and reports how many were removed.
func (db *DB) PruneTranscriptsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM audio_transcripts WHERE timestamp < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune transcripts: %w", err)
	}
	return res.RowsAffected()
}

// PruneConnectionEventsOlderThan deletes connection event rows whose
// timestamp precedes cutoff and reports how many were removed.
func (db *DB) PruneConnectionEventsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM connection_events WHERE timestamp < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune connection events: %w", err)
	}
	return res.RowsAffected()
}

// StuckCommandID identifies a command still in "sent" longer than a given
// age, measured from its created_at — normally impossible since the reaper's timeout sweep closes
// these out, but surfaced here as a diagnostic for a reaper that stopped
// ticking or a process that crashed mid-dispatch.
type StuckCommandID struct {
	CommandID   string
	DeviceType  string
	CommandName string
	CreatedAt   time.Time
}

// ListStuckCommands returns commands still in "sent" whose created_at is
// older than olderThan, ordered oldest first.
func (db *DB) ListStuckCommands(ctx context.Context, olderThan time.Duration) ([]StuckCommandID, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339Nano)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT command_id, device_type, command_name, created_at
		FROM commands WHERE status = 'sent' AND created_at < ? ORDER BY created_at ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stuck commands: %w", err)
	}
	defer rows.Close()

	var out []StuckCommandID
	for rows.Next() {
		var s StuckCommandID
		var createdAt string
		if err := rows.Scan(&s.CommandID, &s.DeviceType, &s.CommandName, &createdAt); err != nil {
			return nil, err
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, s)
	}
	return out, rows.Err()
}
