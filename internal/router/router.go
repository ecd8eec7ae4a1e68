// Package router is the command dispatcher (C5): it allocates a command
// id, asks the session manager for the live targets of a device class,
// fans the command frame out, and correlates acknowledgements back to a
// lifecycle record. The lifecycle itself is modelled as an explicit
// finite-state machine so the "no regression" invariant (spec.md §8,
// property 3) is enforced by the transition table rather than ad hoc
// comparisons.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/metrics"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/session"
)

const (
	evDispatchSent     = "dispatch_sent"
	evDispatchNoTarget = "dispatch_no_targets"
	evAckSuccess       = "ack_success"
	evAckError         = "ack_error"
	evTimeout          = "timeout"
)

func newLifecycle(initial model.CommandStatus) *fsm.FSM {
	return fsm.NewFSM(
		string(initial),
		fsm.Events{
			{Name: evDispatchSent, Src: []string{string(model.CommandCreated)}, Dst: string(model.CommandSent)},
			{Name: evDispatchNoTarget, Src: []string{string(model.CommandCreated)}, Dst: string(model.CommandNoTargets)},
			{Name: evAckSuccess, Src: []string{string(model.CommandSent)}, Dst: string(model.CommandAckSuccess)},
			{Name: evAckError, Src: []string{string(model.CommandSent)}, Dst: string(model.CommandAckError)},
			{Name: evTimeout, Src: []string{string(model.CommandSent)}, Dst: string(model.CommandTimeout)},
		},
		fsm.Callbacks{},
	)
}

// Store is the subset of the audit store the router drives.
type Store interface {
	CreateCommand(ctx context.Context, c model.CommandRecord) error
	UpdateCommandStatus(ctx context.Context, commandID string, status model.CommandStatus, executedAt, completedAt *time.Time, targetDeviceCount *int, response map[string]any) error
	IncrementSuccessCount(ctx context.Context, commandID string) error
	GetCommand(ctx context.Context, commandID string) (model.CommandRecord, error)
}

// Sessions is the subset of session.Manager the router drives.
type Sessions interface {
	OnlineCountByType(deviceType string) int
	SendToType(deviceType string, f session.Frame) []session.Outcome
}

type pendingAck struct {
	fsm          *fsm.FSM
	deviceType   string
	expected     int
	received     int
	successCount int
	deadline     time.Time
	lastResponse map[string]any
}

// Router owns the pending-ack map; it is the only shared state besides
// what C1/C3 already guard, per spec.md §5.
type Router struct {
	store    Store
	sessions Sessions
	log      zerolog.Logger

	ackTimeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingAck
}

func New(store Store, sessions Sessions, ackTimeout time.Duration, log zerolog.Logger) *Router {
	return &Router{
		store:      store,
		sessions:   sessions,
		ackTimeout: ackTimeout,
		log:        log,
		pending:    make(map[string]*pendingAck),
	}
}

// Dispatch implements spec.md §4.5 steps 1-8.
func (r *Router) Dispatch(ctx context.Context, deviceType, commandName string, payload map[string]any) (model.CommandRecord, error) {
	commandID := uuid.NewString()
	now := time.Now().UTC()

	record := model.CommandRecord{
		CommandID:   commandID,
		DeviceType:  deviceType,
		CommandName: commandName,
		Payload:     payload,
		Status:      model.CommandCreated,
		CreatedAt:   now,
	}
	if err := r.store.CreateCommand(ctx, record); err != nil {
		r.log.Warn().Err(err).Str("command_id", commandID).Msg("failed to persist command record")
	}

	targetCount := r.sessions.OnlineCountByType(deviceType)
	record.TargetDeviceCount = targetCount

	if targetCount == 0 {
		record.Status = model.CommandNoTargets
		if err := r.store.UpdateCommandStatus(ctx, commandID, model.CommandNoTargets, nil, &now, &targetCount, nil); err != nil {
			r.log.Warn().Err(err).Str("command_id", commandID).Msg("failed to persist no_targets transition")
		}
		metrics.CommandsDispatchedTotal.WithLabelValues(string(model.CommandNoTargets)).Inc()
		return record, nil
	}

	frame := session.Frame{
		MessageType: session.MessageCommand,
		CommandID:   commandID,
		CommandName: commandName,
		Payload:     payload,
	}
	outcomes := r.sessions.SendToType(deviceType, frame)

	sentCount := 0
	for _, o := range outcomes {
		if o.Result == "ok" {
			sentCount++
		} else {
			r.log.Warn().Str("command_id", commandID).Str("device_id", o.DeviceID).Str("result", o.Result).Msg("command enqueue failed")
		}
	}
	record.TargetDeviceCount = sentCount

	executedAt := time.Now().UTC()
	record.Status = model.CommandSent
	record.ExecutedAt = &executedAt
	if err := r.store.UpdateCommandStatus(ctx, commandID, model.CommandSent, &executedAt, nil, &sentCount, nil); err != nil {
		r.log.Warn().Err(err).Str("command_id", commandID).Msg("failed to persist sent transition")
	}

	lc := newLifecycle(model.CommandCreated)
	_ = lc.Event(context.Background(), evDispatchSent)

	r.mu.Lock()
	r.pending[commandID] = &pendingAck{
		fsm:        lc,
		deviceType: deviceType,
		expected:   sentCount,
		deadline:   time.Now().Add(r.ackTimeout),
	}
	r.mu.Unlock()

	if sentCount == 0 {
		// Every enqueue failed even though sessions were online at the
		// count check; treat as immediately timed out rather than
		// waiting on acks nobody can send.
		r.mu.Lock()
		delete(r.pending, commandID)
		r.mu.Unlock()
		r.completeTimeout(ctx, commandID)
		record.Status = model.CommandTimeout
	}

	return record, nil
}

// HandleAck implements spec.md §4.5's acknowledgement handling. It is
// wired as the session manager's CommandAckHandler.
func (r *Router) HandleAck(deviceID, commandID, status string, response map[string]any) {
	ctx := context.Background()

	r.mu.Lock()
	pa, ok := r.pending[commandID]
	if !ok {
		r.mu.Unlock()
		r.log.Info().Str("command_id", commandID).Str("device_id", deviceID).Msg("ack for unknown or completed command, dropping")
		return
	}

	pa.received++
	if status == session.AckStatusSuccess {
		pa.successCount++
	}
	pa.lastResponse = response

	if status == session.AckStatusSuccess {
		if err := r.store.IncrementSuccessCount(ctx, commandID); err != nil {
			r.log.Warn().Err(err).Str("command_id", commandID).Msg("failed to persist success count")
		}
	}

	done := pa.received >= pa.expected
	var event string
	if done {
		if pa.successCount == pa.received {
			event = evAckSuccess
		} else {
			event = evAckError
		}
		delete(r.pending, commandID)
	}
	r.mu.Unlock()

	if !done {
		return
	}

	finalStatus := model.CommandAckSuccess
	if event == evAckError {
		finalStatus = model.CommandAckError
	}
	if err := pa.fsm.Event(ctx, event); err != nil {
		r.log.Warn().Err(err).Str("command_id", commandID).Msg("lifecycle transition rejected")
		return
	}

	completedAt := time.Now().UTC()
	if err := r.store.UpdateCommandStatus(ctx, commandID, finalStatus, nil, &completedAt, nil, pa.lastResponse); err != nil {
		r.log.Warn().Err(err).Str("command_id", commandID).Msg("failed to persist ack completion")
	}
	metrics.CommandsDispatchedTotal.WithLabelValues(string(finalStatus)).Inc()
}

// SweepTimeouts is invoked by the reaper on every tick (spec.md §4.5
// timeout sweep, piggy-backed on the reaper's ticker).
func (r *Router) SweepTimeouts(ctx context.Context) {
	now := time.Now()

	r.mu.Lock()
	var expired []string
	for id, pa := range r.pending {
		if now.After(pa.deadline) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(r.pending, id)
	}
	r.mu.Unlock()

	for _, id := range expired {
		r.log.Info().Str("command_id", id).Msg("command ack deadline exceeded")
		r.completeTimeout(ctx, id)
	}
}

func (r *Router) completeTimeout(ctx context.Context, commandID string) {
	completedAt := time.Now().UTC()
	if err := r.store.UpdateCommandStatus(ctx, commandID, model.CommandTimeout, nil, &completedAt, nil, nil); err != nil {
		r.log.Warn().Err(err).Str("command_id", commandID).Msg("failed to persist timeout transition")
	}
	metrics.CommandsDispatchedTotal.WithLabelValues(string(model.CommandTimeout)).Inc()
}
