package ws

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stresscam/internal/emotion"
	"stresscam/internal/monitor"
)

type fakeSnapshot struct {
	latest *monitor.Update
}

func (f *fakeSnapshot) Latest() (*monitor.Update, bool) { return f.latest, f.latest != nil }

func (f *fakeSnapshot) Summary() monitor.Summary {
	return monitor.Summary{SessionID: "session-1", RecordsLogged: 3}
}

func newTestHub() *AffectHub {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewAffectHub(logger)
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/affect"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHandlerGreetsAndStreams(t *testing.T) {
	hub := newTestHub()
	snapshot := &fakeSnapshot{latest: &monitor.Update{FrameSeq: 7, Dominant: emotion.Sad, StressLevel: 61}}
	server := httptest.NewServer(NewHandler(hub, snapshot))
	defer server.Close()

	conn := dial(t, server)

	msg := readJSON(t, conn)
	assert.JSONEq(t, `"summary"`, string(msg["type"]))
	var summary monitor.Summary
	require.NoError(t, json.Unmarshal(msg["summary"], &summary))
	assert.Equal(t, "session-1", summary.SessionID)

	msg = readJSON(t, conn)
	assert.JSONEq(t, `"affect"`, string(msg["type"]))
	var update monitor.Update
	require.NoError(t, json.Unmarshal(msg["update"], &update))
	assert.Equal(t, uint64(7), update.FrameSeq)

	require.Eventually(t, hub.HasClients, time.Second, 10*time.Millisecond)
	hub.OnUpdate(&monitor.Update{FrameSeq: 8, Dominant: emotion.Happy, FaceDetected: true})

	msg = readJSON(t, conn)
	require.NoError(t, json.Unmarshal(msg["update"], &update))
	assert.Equal(t, uint64(8), update.FrameSeq)
	assert.Equal(t, emotion.Happy, update.Dominant)
	assert.True(t, update.FaceDetected)
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := newTestHub()
	server := httptest.NewServer(NewHandler(hub, nil))
	defer server.Close()

	conn := dial(t, server)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubSkipsFullClients(t *testing.T) {
	hub := newTestHub()
	c := &client{send: make(chan []byte, 1)}
	hub.mu.Lock()
	hub.clients[c] = true
	hub.mu.Unlock()

	hub.Broadcast([]byte("one"))
	hub.Broadcast([]byte("two"))
	assert.Equal(t, uint64(1), hub.Skipped())
	assert.Equal(t, []byte("one"), <-c.send)

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())
	_, ok := <-c.send
	assert.False(t, ok)
}
