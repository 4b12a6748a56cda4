package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/showkit/scenerelay/backend/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	mx      sync.Mutex
	wires   map[string]model.Wire
	deleted []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{wires: make(map[string]model.Wire)}
}

func (f *fakeSessions) CreateSession(_ context.Context, conn string, wire model.Wire) error {
	f.mx.Lock()
	f.wires[conn] = wire
	f.mx.Unlock()
	return nil
}

func (f *fakeSessions) DeleteSession(conn string) {
	f.mx.Lock()
	f.deleted = append(f.deleted, conn)
	f.mx.Unlock()
}

func (f *fakeSessions) onlyWire(t *testing.T) (string, model.Wire) {
	t.Helper()
	f.mx.Lock()
	defer f.mx.Unlock()
	require.Len(t, f.wires, 1)
	for id, wire := range f.wires {
		return id, wire
	}
	return "", model.Wire{} // unreachable
}

func (f *fakeSessions) deletedCount() int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return len(f.deleted)
}

func TestHandler_BridgesWireBothWays(t *testing.T) {
	logger := zerolog.Nop()
	svc := newFakeSessions()
	h := NewHandler(Config{Logger: &logger, SessionService: svc})

	ts := httptest.NewServer(h)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() {
		_ = conn.Close()
	}()

	require.Eventually(t, func() bool {
		svc.mx.Lock()
		defer svc.mx.Unlock()
		return len(svc.wires) == 1
	}, time.Second, 5*time.Millisecond)
	connID, wire := svc.onlyWire(t)
	require.NotEmpty(t, connID)

	// server -> client
	wire.TX <- model.Outbound{
		Event: model.EventConnected,
		Data:  model.Connected{SocketID: connID},
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame struct {
		Event string          `json:"event"`
		Data  model.Connected `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &frame))
	assert.Equal(t, model.EventConnected, frame.Event)
	assert.Equal(t, connID, frame.Data.SocketID)

	// client -> server, source is stamped by the server
	err = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"request-host"}`))
	require.NoError(t, err)

	select {
	case in := <-wire.RX:
		assert.Equal(t, connID, in.SRC)
		assert.Equal(t, model.EventRequestHost, in.Event)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound event")
	}

	// frames without an event name never surface
	err = conn.WriteMessage(websocket.TextMessage, []byte(`{"data":{"x":1}}`))
	require.NoError(t, err)
	err = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"give-up-host"}`))
	require.NoError(t, err)

	select {
	case in := <-wire.RX:
		assert.Equal(t, model.EventGiveUpHost, in.Event)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound event")
	}
}

func TestHandler_DisconnectEndsSession(t *testing.T) {
	logger := zerolog.Nop()
	svc := newFakeSessions()
	h := NewHandler(Config{Logger: &logger, SessionService: svc})

	ts := httptest.NewServer(h)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		svc.mx.Lock()
		defer svc.mx.Unlock()
		return len(svc.wires) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return svc.deletedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
