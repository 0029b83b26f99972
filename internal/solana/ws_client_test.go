package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newWSServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// holdOpen keeps reading until the peer disconnects.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ackSubscribe reads one subscribe request and confirms it with subID.
func ackSubscribe(t *testing.T, conn *websocket.Conn, subID int64) {
	t.Helper()

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var req wsRequest
	require.NoError(t, json.Unmarshal(msg, &req))
	assert.Equal(t, "logsSubscribe", req.Method)

	require.NoError(t, conn.WriteJSON(wsSubscribeResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  subID,
	}))
}

func notification(subID int64, signature string) wsNotification {
	return wsNotification{
		JSONRPC: "2.0",
		Method:  "logsNotification",
		Params: &wsNotificationParams{
			Subscription: subID,
			Result: wsNotificationResult{
				Context: &wsContext{Slot: 100},
				Value: wsLogsValue{
					Signature: signature,
					Logs:      []string{"Program log: Instruction: Swap"},
				},
			},
		},
	}
}

func TestWSClientConnect(t *testing.T) {
	url := newWSServer(t, holdOpen)

	client, err := NewWSClient(context.Background(), url, nil, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, StateSubscribed, client.State())
}

func TestWSClientSubscribeLogs(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		ackSubscribe(t, conn, 12345)
		require.NoError(t, conn.WriteJSON(notification(12345, "testsig")))
		holdOpen(conn)
	})

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, nil, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{RaydiumAMMV4}})
	require.NoError(t, err)
	assert.Equal(t, StateActive, client.State())

	select {
	case notif := <-ch:
		assert.Equal(t, "testsig", notif.Signature)
		assert.Equal(t, int64(100), notif.Slot)
		assert.Len(t, notif.Logs, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestWSClientReconnectResubscribes(t *testing.T) {
	var conns atomic.Int32

	url := newWSServer(t, func(conn *websocket.Conn) {
		n := conns.Add(1)
		if n == 1 {
			ackSubscribe(t, conn, 111)
			// Drop the connection to force a reconnect.
			conn.Close()
			return
		}
		ackSubscribe(t, conn, 222)
		require.NoError(t, conn.WriteJSON(notification(222, "after-reconnect")))
		holdOpen(conn)
	})

	config := DefaultWSConfig()
	config.ReconnectDelay = 50 * time.Millisecond
	config.MaxReconnectDelay = 100 * time.Millisecond

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, &config, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{OrcaWhirlpool}})
	require.NoError(t, err)

	// The original channel must keep delivering under the new
	// subscription ID.
	select {
	case notif := <-ch:
		assert.Equal(t, "after-reconnect", notif.Signature)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for post-reconnect notification")
	}

	assert.Equal(t, StateActive, client.State())
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}

func TestWSClientClose(t *testing.T) {
	url := newWSServer(t, holdOpen)

	client, err := NewWSClient(context.Background(), url, nil, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.Equal(t, StateClosed, client.State())

	// Double close is safe.
	require.NoError(t, client.Close())
}

func TestWSClientSubscribeAfterClose(t *testing.T) {
	url := newWSServer(t, holdOpen)

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = client.SubscribeLogs(ctx, LogsFilter{})
	assert.Error(t, err)
}

func TestWSClientBackoffBounds(t *testing.T) {
	c := &WSClientImpl{config: WSClientConfig{
		ReconnectDelay:    5 * time.Second,
		MaxReconnectDelay: 5 * time.Minute,
	}}

	for attempt := 1; attempt <= 12; attempt++ {
		d := c.backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 5*time.Minute)
	}

	// Attempt 3 caps at 4x the initial delay.
	for i := 0; i < 20; i++ {
		assert.LessOrEqual(t, c.backoff(3), 20*time.Second)
	}
}
