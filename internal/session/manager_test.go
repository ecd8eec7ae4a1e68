package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

// fakeChannel is an in-memory stand-in for a *websocket.Conn: inbound
// frames are fed via the `in` channel, outbound writes land on `out`.
type fakeChannel struct {
	in  chan Frame
	out chan Frame

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		in:     make(chan Frame, 16),
		out:    make(chan Frame, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeChannel) ReadJSON(v any) error {
	select {
	case frame, ok := <-f.in:
		if !ok {
			return context.Canceled
		}
		b, _ := json.Marshal(frame)
		return json.Unmarshal(b, v)
	case <-f.closed:
		return context.Canceled
	}
}

func (f *fakeChannel) WriteJSON(v any) error {
	b, _ := json.Marshal(v)
	var fr Frame
	_ = json.Unmarshal(b, &fr)
	select {
	case f.out <- fr:
		return nil
	case <-f.closed:
		return context.Canceled
	}
}

func (f *fakeChannel) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

type fakeRegistry struct {
	mu        sync.Mutex
	touched   []string
	offlined  []string
	registered []string
}

func (r *fakeRegistry) Register(_ context.Context, deviceID, deviceType string, metadata map[string]any) (model.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, deviceID)
	return model.Device{DeviceID: deviceID, DeviceType: deviceType, IsOnline: true}, false
}

func (r *fakeRegistry) Touch(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched = append(r.touched, deviceID)
}

func (r *fakeRegistry) MarkOffline(_ context.Context, deviceID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offlined = append(r.offlined, deviceID)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestAcceptRejectsReservedIdentifier(t *testing.T) {
	mgr := NewManager(&fakeRegistry{}, 8, zerolog.Nop())
	ch := newFakeChannel()

	err := mgr.Accept(context.Background(), "dashboard", ch)
	require.Error(t, err)

	select {
	case <-ch.closed:
	default:
		t.Fatal("expected channel to be closed")
	}
}

func TestRegistrationFrameRegistersDevice(t *testing.T) {
	reg := &fakeRegistry{}
	mgr := NewManager(reg, 8, zerolog.Nop())
	ch := newFakeChannel()

	go mgr.Accept(context.Background(), "esp-1", ch)

	ch.in <- Frame{MessageType: MessageRegistration, DeviceType: "esp32", Metadata: map[string]any{"fw": "1"}}
	waitFor(t, func() bool {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		return len(reg.registered) == 1
	})

	ch.Close()
}

func TestSendEnqueuesToLiveSession(t *testing.T) {
	reg := &fakeRegistry{}
	mgr := NewManager(reg, 8, zerolog.Nop())
	ch := newFakeChannel()
	go mgr.Accept(context.Background(), "wheel-1", ch)

	ch.in <- Frame{MessageType: MessageRegistration, DeviceType: "wheel"}
	waitFor(t, func() bool { return mgr.HasSession("wheel-1") })

	outcome := mgr.Send("wheel-1", Frame{MessageType: MessageCommand, CommandID: "c1", CommandName: "forward"})
	assert.Equal(t, outcomeOK, outcome)

	select {
	case f := <-ch.out:
		assert.Equal(t, "c1", f.CommandID)
	case <-time.After(time.Second):
		t.Fatal("expected outbound frame")
	}
	ch.Close()
}

func TestSendToUnknownDevice(t *testing.T) {
	mgr := NewManager(&fakeRegistry{}, 8, zerolog.Nop())
	outcome := mgr.Send("ghost", Frame{MessageType: MessageCommand})
	assert.Equal(t, outcomeNoDevice, outcome)
}

func TestReacceptClosesPriorSessionAsReregistration(t *testing.T) {
	reg := &fakeRegistry{}
	mgr := NewManager(reg, 8, zerolog.Nop())
	ch1 := newFakeChannel()
	go mgr.Accept(context.Background(), "d1", ch1)
	ch1.in <- Frame{MessageType: MessageRegistration, DeviceType: "esp32"}
	waitFor(t, func() bool { return mgr.HasSession("d1") })

	ch2 := newFakeChannel()
	go mgr.Accept(context.Background(), "d1", ch2)
	ch2.in <- Frame{MessageType: MessageRegistration, DeviceType: "esp32"}

	waitFor(t, func() bool {
		select {
		case <-ch1.closed:
			return true
		default:
			return false
		}
	})

	// The old session's end-of-life must not have reported it offline,
	// since it was replaced, not disconnected.
	time.Sleep(20 * time.Millisecond)
	reg.mu.Lock()
	offlined := append([]string(nil), reg.offlined...)
	reg.mu.Unlock()
	assert.NotContains(t, offlined, "d1")

	ch2.Close()
}

func TestDisconnectMarksOffline(t *testing.T) {
	reg := &fakeRegistry{}
	mgr := NewManager(reg, 8, zerolog.Nop())
	ch := newFakeChannel()
	go mgr.Accept(context.Background(), "d1", ch)
	ch.in <- Frame{MessageType: MessageRegistration, DeviceType: "esp32"}
	waitFor(t, func() bool { return mgr.HasSession("d1") })

	ch.Close()

	waitFor(t, func() bool {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		for _, id := range reg.offlined {
			if id == "d1" {
				return true
			}
		}
		return false
	})
}

func TestOutboundQueueFullDropsNewest(t *testing.T) {
	mgr := NewManager(&fakeRegistry{}, 1, zerolog.Nop())
	ch := newFakeChannel()
	// Nothing drains ch.out, so once its 16-frame buffer is full the pump
	// blocks on its next write. With queueCapacity=1 at most 1+16+1 frames
	// are accepted (queue, out buffer, frame held by the pump), so 20 more
	// sends after the first must hit queue_full at least once.
	go mgr.Accept(context.Background(), "d1", ch)
	ch.in <- Frame{MessageType: MessageRegistration, DeviceType: "esp32"}
	waitFor(t, func() bool { return mgr.HasSession("d1") })

	// First send should succeed (the queue is empty).
	first := mgr.Send("d1", Frame{MessageType: MessageCommand, CommandID: "1"})
	assert.Equal(t, outcomeOK, first)

	full := 0
	for i := 0; i < 20; i++ {
		if mgr.Send("d1", Frame{MessageType: MessageCommand}) == outcomeQueueFull {
			full++
		}
	}
	assert.Greater(t, full, 0)
	// Overflow drops the frame, not the session.
	assert.True(t, mgr.HasSession("d1"))
	ch.Close()
}

func TestStatusFrameInvokesHandler(t *testing.T) {
	reg := &fakeRegistry{}
	mgr := NewManager(reg, 8, zerolog.Nop())

	var gotDeviceID string
	var gotPayload map[string]any
	done := make(chan struct{})
	mgr.SetStatusHandler(func(_ context.Context, deviceID, deviceType string, payload map[string]any) {
		gotDeviceID = deviceID
		gotPayload = payload
		close(done)
	})

	ch := newFakeChannel()
	go mgr.Accept(context.Background(), "d1", ch)
	ch.in <- Frame{MessageType: MessageRegistration, DeviceType: "esp32"}
	waitFor(t, func() bool { return mgr.HasSession("d1") })

	ch.in <- Frame{MessageType: MessageStatus, DeviceType: "esp32", Payload: map[string]any{"angle": 90.0}}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("status handler not invoked")
	}
	assert.Equal(t, "d1", gotDeviceID)
	assert.EqualValues(t, 90.0, gotPayload["angle"])
	ch.Close()
}
