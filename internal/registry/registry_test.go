package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

type fakeStore struct {
	mu     sync.Mutex
	events []model.ConnectionEvent
	upserts []model.Device
}

func (f *fakeStore) UpsertDevice(_ context.Context, d model.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, d)
	return nil
}

func (f *fakeStore) InsertConnectionEvent(_ context.Context, e model.ConnectionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func TestRegisterNewDeviceEmitsConnected(t *testing.T) {
	store := &fakeStore{}
	reg := New(store, zerolog.Nop())

	d, wasOnline := reg.Register(context.Background(), "d1", "esp32", map[string]any{"fw": "1"})
	require.False(t, wasOnline)
	assert.True(t, d.IsOnline)

	require.Len(t, store.events, 1)
	assert.Equal(t, model.EventConnected, store.events[0].Kind)
}

func TestReregisterEmitsReregistered(t *testing.T) {
	store := &fakeStore{}
	reg := New(store, zerolog.Nop())

	reg.Register(context.Background(), "d1", "esp32", nil)
	_, wasOnline := reg.Register(context.Background(), "d1", "esp32", nil)

	require.True(t, wasOnline)
	require.Len(t, store.events, 2)
	assert.Equal(t, model.EventReregistered, store.events[1].Kind)
}

func TestTouchUpdatesHeartbeat(t *testing.T) {
	reg := New(&fakeStore{}, zerolog.Nop())
	reg.Register(context.Background(), "d1", "esp32", nil)

	before, _ := reg.Get("d1")
	reg.Touch("d1")
	after, _ := reg.Get("d1")

	assert.False(t, after.LastHeartbeat.Before(before.LastHeartbeat))
}

func TestTouchUnknownDeviceIsNoop(t *testing.T) {
	reg := New(&fakeStore{}, zerolog.Nop())
	reg.Touch("ghost") // must not panic
}

func TestMarkOfflineEmitsTimeout(t *testing.T) {
	store := &fakeStore{}
	reg := New(store, zerolog.Nop())
	reg.Register(context.Background(), "d1", "esp32", nil)

	reg.MarkOffline(context.Background(), "d1", "timeout")

	d, ok := reg.Get("d1")
	require.True(t, ok)
	assert.False(t, d.IsOnline)
	assert.NotNil(t, d.DisconnectedAt)

	require.Len(t, store.events, 2)
	assert.Equal(t, model.EventTimeout, store.events[1].Kind)
}

func TestListByTypeAndOnlineCount(t *testing.T) {
	reg := New(&fakeStore{}, zerolog.Nop())
	reg.Register(context.Background(), "a", "esp32", nil)
	reg.Register(context.Background(), "b", "esp32", nil)
	reg.Register(context.Background(), "c", "pico", nil)
	reg.MarkOffline(context.Background(), "b", "disconnected")

	assert.Len(t, reg.ListByType("esp32"), 2)
	assert.Equal(t, 1, reg.OnlineCount("esp32"))
	assert.Equal(t, 1, reg.OnlineCount("pico"))
}

func TestAtMostOneEntryPerDeviceID(t *testing.T) {
	reg := New(&fakeStore{}, zerolog.Nop())
	reg.Register(context.Background(), "d1", "esp32", nil)
	reg.Register(context.Background(), "d1", "esp32", nil)

	assert.Len(t, reg.List(), 1)
}
