// Package snapshot is the state-snapshot ingestor (C6): a thin handler
// that turns an inbound "status" frame into an append-only audit-store
// record. It performs no retries — a failed write is logged and the
// frame is dropped, per spec.md §4.6.
package snapshot

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

// Store is the subset of the audit store the ingestor writes to.
type Store interface {
	InsertStateSnapshot(ctx context.Context, s model.StateSnapshot) error
}

// Ingestor is wired as the session manager's StatusHandler.
type Ingestor struct {
	store Store
	log   zerolog.Logger
}

func New(store Store, log zerolog.Logger) *Ingestor {
	return &Ingestor{store: store, log: log}
}

// Handle is invoked for every "status" frame received on any session.
func (i *Ingestor) Handle(ctx context.Context, deviceID, deviceType string, payload map[string]any) {
	snap := model.StateSnapshot{
		DeviceID:   deviceID,
		DeviceType: deviceType,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
	if err := i.store.InsertStateSnapshot(ctx, snap); err != nil {
		i.log.Warn().Err(err).Str("device_id", deviceID).Msg("failed to persist state snapshot")
	}
}
