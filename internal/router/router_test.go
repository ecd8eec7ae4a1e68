package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/session"
)

type fakeStore struct {
	mu           sync.Mutex
	created      []model.CommandRecord
	statuses     map[string]model.CommandStatus
	targetCounts map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{statuses: map[string]model.CommandStatus{}, targetCounts: map[string]int{}}
}

func (f *fakeStore) CreateCommand(_ context.Context, c model.CommandRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, c)
	f.statuses[c.CommandID] = c.Status
	f.targetCounts[c.CommandID] = c.TargetDeviceCount
	return nil
}

func (f *fakeStore) UpdateCommandStatus(_ context.Context, commandID string, status model.CommandStatus, _, _ *time.Time, targetDeviceCount *int, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[commandID] = status
	if targetDeviceCount != nil {
		f.targetCounts[commandID] = *targetDeviceCount
	}
	return nil
}

func (f *fakeStore) IncrementSuccessCount(_ context.Context, commandID string) error { return nil }

func (f *fakeStore) GetCommand(_ context.Context, commandID string) (model.CommandRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.CommandRecord{CommandID: commandID, Status: f.statuses[commandID], TargetDeviceCount: f.targetCounts[commandID]}, nil
}

func (f *fakeStore) statusOf(id string) model.CommandStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}

func (f *fakeStore) targetCountOf(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.targetCounts[id]
}

type fakeSessions struct {
	online  int
	sendErr bool
}

func (f *fakeSessions) OnlineCountByType(_ string) int { return f.online }

func (f *fakeSessions) SendToType(deviceType string, fr session.Frame) []session.Outcome {
	out := make([]session.Outcome, 0, f.online)
	for i := 0; i < f.online; i++ {
		result := "ok"
		if f.sendErr {
			result = "send_failed"
		}
		out = append(out, session.Outcome{DeviceID: deviceType, Result: result})
	}
	return out
}

func TestDispatchNoTargets(t *testing.T) {
	store := newFakeStore()
	sessions := &fakeSessions{online: 0}
	r := New(store, sessions, 30*time.Second, zerolog.Nop())

	rec, err := r.Dispatch(context.Background(), "servo", "handsup", nil)
	require.NoError(t, err)
	assert.Equal(t, model.CommandNoTargets, rec.Status)
	assert.Equal(t, model.CommandNoTargets, store.statusOf(rec.CommandID))
}

func TestDispatchPersistsTargetDeviceCount(t *testing.T) {
	store := newFakeStore()
	sessions := &fakeSessions{online: 2}
	r := New(store, sessions, 30*time.Second, zerolog.Nop())

	rec, err := r.Dispatch(context.Background(), "wheel", "forward", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.TargetDeviceCount)
	assert.Equal(t, 2, store.targetCountOf(rec.CommandID))
}

func TestDispatchSentThenAckSuccess(t *testing.T) {
	store := newFakeStore()
	sessions := &fakeSessions{online: 1}
	r := New(store, sessions, 30*time.Second, zerolog.Nop())

	rec, err := r.Dispatch(context.Background(), "wheel", "forward", map[string]any{"speed": 200})
	require.NoError(t, err)
	assert.Equal(t, model.CommandSent, rec.Status)

	r.HandleAck("wheelcontroller", rec.CommandID, session.AckStatusSuccess, nil)
	assert.Equal(t, model.CommandAckSuccess, store.statusOf(rec.CommandID))
}

func TestDispatchSentThenAckError(t *testing.T) {
	store := newFakeStore()
	sessions := &fakeSessions{online: 1}
	r := New(store, sessions, 30*time.Second, zerolog.Nop())

	rec, _ := r.Dispatch(context.Background(), "wheel", "forward", nil)
	r.HandleAck("wheelcontroller", rec.CommandID, session.AckStatusError, nil)
	assert.Equal(t, model.CommandAckError, store.statusOf(rec.CommandID))
}

func TestFanOutPartialAcksWaitForAll(t *testing.T) {
	store := newFakeStore()
	sessions := &fakeSessions{online: 2}
	r := New(store, sessions, 30*time.Second, zerolog.Nop())

	rec, _ := r.Dispatch(context.Background(), "wheel", "stop", nil)
	r.HandleAck("w1", rec.CommandID, session.AckStatusSuccess, nil)
	// Only one of two expected acks received; status must still be "sent".
	assert.Equal(t, model.CommandSent, store.statusOf(rec.CommandID))

	r.HandleAck("w2", rec.CommandID, session.AckStatusSuccess, nil)
	assert.Equal(t, model.CommandAckSuccess, store.statusOf(rec.CommandID))
}

func TestAckForUnknownCommandIsDropped(t *testing.T) {
	store := newFakeStore()
	r := New(store, &fakeSessions{online: 1}, 30*time.Second, zerolog.Nop())
	r.HandleAck("d1", "nonexistent", session.AckStatusSuccess, nil) // must not panic
}

func TestSweepTimeoutsExpiresPastDeadline(t *testing.T) {
	store := newFakeStore()
	sessions := &fakeSessions{online: 1}
	r := New(store, sessions, 10*time.Millisecond, zerolog.Nop())

	rec, _ := r.Dispatch(context.Background(), "wheel", "forward", nil)
	time.Sleep(30 * time.Millisecond)
	r.SweepTimeouts(context.Background())

	assert.Equal(t, model.CommandTimeout, store.statusOf(rec.CommandID))
}

func TestLateAckAfterTimeoutIsDropped(t *testing.T) {
	store := newFakeStore()
	sessions := &fakeSessions{online: 1}
	r := New(store, sessions, 10*time.Millisecond, zerolog.Nop())

	rec, _ := r.Dispatch(context.Background(), "wheel", "forward", nil)
	time.Sleep(30 * time.Millisecond)
	r.SweepTimeouts(context.Background())

	r.HandleAck("w1", rec.CommandID, session.AckStatusSuccess, nil)
	assert.Equal(t, model.CommandTimeout, store.statusOf(rec.CommandID))
}

func TestAllEnqueueFailuresTimeOutImmediately(t *testing.T) {
	store := newFakeStore()
	sessions := &fakeSessions{online: 1, sendErr: true}
	r := New(store, sessions, 30*time.Second, zerolog.Nop())

	rec, _ := r.Dispatch(context.Background(), "wheel", "forward", nil)
	assert.Equal(t, model.CommandTimeout, store.statusOf(rec.CommandID))
}
