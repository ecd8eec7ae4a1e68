// Package session owns the set of live bidirectional device channels
// keyed by device id: accepting new connections, routing inbound frames
// by discriminator, and fanning outbound frames out with a bounded
// per-session queue and a single writer per channel.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

// Registry is the subset of registry.Registry the session manager drives.
type Registry interface {
	Register(ctx context.Context, deviceID, deviceType string, metadata map[string]any) (model.Device, bool)
	Touch(deviceID string)
	MarkOffline(ctx context.Context, deviceID, reason string)
}

// StatusHandler is invoked for every inbound "status" frame (forwards to
// the state-snapshot ingestor, C6).
type StatusHandler func(ctx context.Context, deviceID, deviceType string, payload map[string]any)

// CommandAckHandler is invoked for every inbound "command_ack" frame
// (forwards to the command router, C5).
type CommandAckHandler func(deviceID, commandID, status string, response map[string]any)

// reservedIdentifiers are device ids that internal tooling and the
// dashboard use on the same endpoint; accepting a session under one of
// these would let a browser client impersonate a device (spec.md §4.3,
// §9 redesign: unconditional rejection at accept).
var reservedIdentifiers = map[string]bool{
	"dashboard": true,
	"browser":   true,
	"servo":     true,
	"wheel":     true,
	"audio":     true,
	"operator":  true,
	"admin":     true,
}

const (
	outcomeOK        = "ok"
	outcomeNoDevice  = "no_such_device"
	outcomeQueueFull = "queue_full"
)

// Manager owns device_id -> *Session. The map mutex guards only
// insert/remove/lookup; it is never held across channel I/O.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	registry      Registry
	queueCapacity int
	log           zerolog.Logger

	onStatus     StatusHandler
	onCommandAck CommandAckHandler
}

func NewManager(reg Registry, queueCapacity int, log zerolog.Logger) *Manager {
	return &Manager{
		sessions:      make(map[string]*Session),
		registry:      reg,
		queueCapacity: queueCapacity,
		log:           log,
	}
}

// SetStatusHandler wires the state-snapshot ingestor. Called once at
// composition time, before any session is accepted.
func (m *Manager) SetStatusHandler(h StatusHandler) { m.onStatus = h }

// SetCommandAckHandler wires the command router's ack intake. Called once
// at composition time.
func (m *Manager) SetCommandAckHandler(h CommandAckHandler) { m.onCommandAck = h }

// Accept installs a new session for deviceID. If a session already exists
// for this id, it is closed first (without marking the device offline)
// and a reregistered event follows from the first registration frame.
// Reserved identifiers are rejected immediately and the channel closed.
// Accept blocks for the lifetime of the session (it runs the inbound read
// loop); callers should invoke it from its own goroutine per connection.
func (m *Manager) Accept(ctx context.Context, deviceID string, ch Channel) error {
	if reservedIdentifiers[deviceID] {
		m.log.Warn().Str("device_id", deviceID).Msg("rejecting reserved device identifier")
		_ = ch.Close()
		return fmt.Errorf("reserved device identifier: %s", deviceID)
	}

	sess := newSession(deviceID, "", ch, m.queueCapacity, m.log)

	m.mu.Lock()
	if prior, ok := m.sessions[deviceID]; ok {
		prior.replaced = true
		prior.closeChannel()
	}
	m.sessions[deviceID] = sess
	m.mu.Unlock()

	go sess.pump()

	m.readLoop(ctx, sess)
	return nil
}

func (m *Manager) readLoop(ctx context.Context, sess *Session) {
	defer m.onSessionEnded(ctx, sess)

	for {
		var f Frame
		if err := sess.channel.ReadJSON(&f); err != nil {
			m.log.Debug().Err(err).Str("device_id", sess.DeviceID).Msg("channel read ended")
			return
		}
		m.dispatch(ctx, sess, f)
	}
}

func (m *Manager) dispatch(ctx context.Context, sess *Session, f Frame) {
	m.registry.Touch(sess.DeviceID)

	switch f.MessageType {
	case MessageRegistration:
		sess.DeviceType = f.DeviceType
		m.registry.Register(ctx, sess.DeviceID, f.DeviceType, f.Metadata)
	case MessageHeartbeat:
		// touch above already covers liveness; nothing else to do.
	case MessageStatus:
		if m.onStatus != nil {
			m.onStatus(ctx, sess.DeviceID, f.DeviceType, f.Payload)
		}
	case MessageCommandAck:
		if m.onCommandAck != nil {
			m.onCommandAck(sess.DeviceID, f.CommandID, f.Status, f.Response)
		}
	case MessageAudioChunk, MessageAudioResponseEnd:
		// server-originated frame kinds; devices are not expected to send
		// these, but they are recognised (not unknown) so they are
		// dropped quietly rather than logged as protocol noise.
	default:
		m.log.Warn().Str("device_id", sess.DeviceID).Str("message_type", f.MessageType).Msg("unknown frame type, dropping")
	}
}

// onSessionEnded runs once the read loop exits for any reason. It marks
// the device offline unless the session ended because a newer one
// replaced it.
func (m *Manager) onSessionEnded(ctx context.Context, sess *Session) {
	sess.closeChannel()

	m.mu.Lock()
	current, ok := m.sessions[sess.DeviceID]
	isCurrent := ok && current == sess
	if isCurrent {
		delete(m.sessions, sess.DeviceID)
	}
	replaced := sess.replaced
	m.mu.Unlock()

	if replaced {
		return
	}
	m.registry.MarkOffline(ctx, sess.DeviceID, "disconnected")
}

// Send enqueues one frame to a single device's session.
func (m *Manager) Send(deviceID string, f Frame) string {
	m.mu.Lock()
	sess, ok := m.sessions[deviceID]
	m.mu.Unlock()
	if !ok {
		return outcomeNoDevice
	}
	return sess.enqueue(f)
}

// Outcome pairs a device id with the result of a fan-out enqueue attempt.
type Outcome struct {
	DeviceID string
	Result   string
}

// SendToType fans a frame out to every currently live session of the
// given device type.
func (m *Manager) SendToType(deviceType string, f Frame) []Outcome {
	m.mu.Lock()
	targets := make([]*Session, 0)
	for _, sess := range m.sessions {
		if sess.DeviceType == deviceType {
			targets = append(targets, sess)
		}
	}
	m.mu.Unlock()

	outcomes := make([]Outcome, 0, len(targets))
	for _, sess := range targets {
		outcomes = append(outcomes, Outcome{DeviceID: sess.DeviceID, Result: sess.enqueue(f)})
	}
	return outcomes
}

// Close force-closes a session. It does not itself mutate the registry;
// onSessionEnded (driven by the resulting read-loop exit) does that.
func (m *Manager) Close(deviceID, reason string) {
	m.mu.Lock()
	sess, ok := m.sessions[deviceID]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.log.Debug().Str("device_id", deviceID).Str("reason", reason).Msg("closing session")
	sess.closeChannel()
}

// HasSession reports whether a live session currently exists for deviceID.
func (m *Manager) HasSession(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[deviceID]
	return ok
}

// OnlineCountByType is used by the router to compute target_device_count
// without going through the registry (a session existing is the
// dispatch-relevant definition of online).
func (m *Manager) OnlineCountByType(deviceType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sess := range m.sessions {
		if sess.DeviceType == deviceType {
			n++
		}
	}
	return n
}
