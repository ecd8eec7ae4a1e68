package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/session"
)

type fakeSessionAcceptor struct {
	gotDeviceID string
	accepted    chan struct{}
}

func (f *fakeSessionAcceptor) Accept(ctx context.Context, deviceID string, ch session.Channel) error {
	f.gotDeviceID = deviceID
	close(f.accepted)
	var frame session.Frame
	return ch.ReadJSON(&frame)
}

func TestWebSocketUpgradePassesDeviceIDToAcceptor(t *testing.T) {
	acceptor := &fakeSessionAcceptor{accepted: make(chan struct{})}
	r := chi.NewRouter()
	NewWebSocketHandler(acceptor).Routes(r)

	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/camcontroller"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-acceptor.accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Accept to be invoked")
	}
	assert.Equal(t, "camcontroller", acceptor.gotDeviceID)
}
