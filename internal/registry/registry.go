// Package registry holds the authoritative in-memory map of known devices
// and their liveness. It is the single source of truth for "is this device
// online" — the session manager and reaper drive it, and every
// registration and offline transition is mirrored to the audit store as a
// best-effort follower write (heartbeat touches are kept in memory only).
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/metrics"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

// Store is the subset of the audit store the registry needs: one method
// per mutation it is responsible for mirroring.
type Store interface {
	UpsertDevice(ctx context.Context, d model.Device) error
	InsertConnectionEvent(ctx context.Context, e model.ConnectionEvent) error
}

// Registry is the single coarse-locked map of device_id -> Device. All
// operations are map-local and return quickly; none perform I/O while
// holding the lock (the audit-store mirror write happens after unlock).
type Registry struct {
	mu      sync.Mutex
	devices map[string]model.Device

	store Store
	log   zerolog.Logger
}

func New(store Store, log zerolog.Logger) *Registry {
	return &Registry{
		devices: make(map[string]model.Device),
		store:   store,
		log:     log,
	}
}

// Register creates or reactivates an entry for device_id. It records a
// "reregistered" event if the device already existed and was online, and
// "connected" otherwise, and reports which case applied.
func (r *Registry) Register(ctx context.Context, deviceID, deviceType string, metadata map[string]any) (model.Device, bool) {
	now := time.Now().UTC()

	r.mu.Lock()
	existing, found := r.devices[deviceID]
	wasOnline := found && existing.IsOnline

	d := existing
	d.DeviceID = deviceID
	d.DeviceType = deviceType
	d.IsOnline = true
	d.LastHeartbeat = now
	d.DisconnectedAt = nil
	if metadata != nil {
		d.Metadata = metadata
	}
	if !found {
		d.ConnectedAt = now
	}
	r.devices[deviceID] = d
	r.mu.Unlock()

	kind := model.EventConnected
	if wasOnline {
		kind = model.EventReregistered
	}
	r.mirror(ctx, d, kind)

	return d, wasOnline
}

// Touch refreshes last_heartbeat for an existing device. It is a no-op,
// and logs nothing, if the device is unknown; the session manager touches
// on every inbound frame, including a new device's first registration
// frame, which arrives before Register has created the entry.
func (r *Registry) Touch(deviceID string) {
	r.mu.Lock()
	d, ok := r.devices[deviceID]
	if ok {
		d.LastHeartbeat = time.Now().UTC()
		r.devices[deviceID] = d
	}
	r.mu.Unlock()
}

// MarkOffline flips is_online false and stamps disconnected_at. reason
// becomes the connection event kind ("disconnected" or "timeout").
func (r *Registry) MarkOffline(ctx context.Context, deviceID, reason string) {
	now := time.Now().UTC()

	r.mu.Lock()
	d, ok := r.devices[deviceID]
	if !ok {
		r.mu.Unlock()
		return
	}
	d.IsOnline = false
	d.DisconnectedAt = &now
	r.devices[deviceID] = d
	r.mu.Unlock()

	kind := model.EventDisconnected
	if reason == "timeout" {
		kind = model.EventTimeout
	}
	r.mirror(ctx, d, kind)
}

func (r *Registry) Get(deviceID string) (model.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	return d, ok
}

func (r *Registry) List() []model.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}

// ListByType returns every known device of the given class, online or not.
func (r *Registry) ListByType(deviceType string) []model.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Device
	for _, d := range r.devices {
		if d.DeviceType == deviceType {
			out = append(out, d)
		}
	}
	return out
}

// OnlineCount reports how many devices of deviceType are currently online.
// Used by tests; the router asks the session manager
// directly rather than the registry, since online-ness for dispatch
// purposes means "has a live session", not "registry says online".
func (r *Registry) OnlineCount(deviceType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.devices {
		if d.DeviceType == deviceType && d.IsOnline {
			n++
		}
	}
	return n
}

// OnlineDeviceCount and TotalDeviceCount satisfy metrics.LiveStats.
func (r *Registry) OnlineDeviceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.devices {
		if d.IsOnline {
			n++
		}
	}
	return n
}

func (r *Registry) TotalDeviceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

func (r *Registry) mirror(ctx context.Context, d model.Device, kind model.ConnectionEventKind) {
	metrics.DeviceConnectionEventsTotal.WithLabelValues(string(kind)).Inc()

	if r.store == nil {
		return
	}
	if err := r.store.UpsertDevice(ctx, d); err != nil {
		r.log.Warn().Err(err).Str("device_id", d.DeviceID).Msg("failed to mirror device to audit store")
	}
	event := model.ConnectionEvent{
		DeviceID:   d.DeviceID,
		DeviceType: d.DeviceType,
		Kind:       kind,
		Timestamp:  time.Now().UTC(),
	}
	if err := r.store.InsertConnectionEvent(ctx, event); err != nil {
		r.log.Warn().Err(err).Str("device_id", d.DeviceID).Msg("failed to record connection event")
	}
}
