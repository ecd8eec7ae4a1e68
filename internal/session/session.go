package session

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/metrics"
)

// Channel is the minimal bidirectional JSON message transport a Session
// needs. *websocket.Conn satisfies this directly.
type Channel interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Session is one live bidirectional channel bound to a device id. The
// outbound queue is a buffered Go channel: enqueue may be called from any
// goroutine and uses a non-blocking send for the drop-newest-on-overflow
// check, and the pump goroutine is the single consumer (it owns all writes
// to channel, the single-writer invariant required by spec.md §5).
type Session struct {
	DeviceID   string
	DeviceType string

	channel Channel
	log     zerolog.Logger

	outbound  chan Frame
	closeOnce sync.Once
	done      chan struct{}

	// replaced is set by the manager when this session is being closed
	// because a newer session for the same device id is taking over, so
	// its end-of-life handling skips marking the device offline.
	replaced bool
}

func newSession(deviceID, deviceType string, ch Channel, queueCapacity int, log zerolog.Logger) *Session {
	return &Session{
		DeviceID:   deviceID,
		DeviceType: deviceType,
		channel:    ch,
		log:        log,
		outbound:   make(chan Frame, queueCapacity),
		done:       make(chan struct{}),
	}
}

// enqueue attempts to place a frame on the outbound queue. On overflow the
// newest frame (this one) is dropped, per spec.md §5 boundary behaviour.
func (s *Session) enqueue(f Frame) (outcome string) {
	select {
	case s.outbound <- f:
		return outcomeOK
	default:
		s.log.Warn().Str("device_id", s.DeviceID).Str("message_type", f.MessageType).Msg("outbound queue full, dropping newest frame")
		metrics.OutboundQueueDropsTotal.Inc()
		return outcomeQueueFull
	}
}

// pump is the single owner of writes to the underlying channel. It exits
// when the session is closed or the channel write fails.
func (s *Session) pump() {
	for {
		select {
		case f := <-s.outbound:
			if err := s.channel.WriteJSON(f); err != nil {
				s.log.Debug().Err(err).Str("device_id", s.DeviceID).Msg("outbound write failed, closing session")
				s.closeChannel()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) closeChannel() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.channel.Close()
	})
}
