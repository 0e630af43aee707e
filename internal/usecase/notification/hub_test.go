package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	notificationv1 "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/domain/notification/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendAfterCloseFails(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}
	c.close()

	err := c.Send([]byte("payload"))
	assert.Error(t, err)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}
	c.close()
	assert.NotPanics(t, func() { c.close() })
}

func TestClient_ConcurrentSendAndClose(t *testing.T) {
	c := &Client{send: make(chan []byte, 8)}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = c.Send([]byte("payload"))
		}
	}()
	c.close()
	wg.Wait()
}

// A client disconnecting between the dispatcher snapshotting its targets and
// delivering must degrade to a dropped send, never a panic on the settlement
// path.
func TestDispatcher_PublishDuringDisconnectIsDropped(t *testing.T) {
	d := NewDispatcher(nil, newTestLogger(t))

	c := &Client{send: make(chan []byte, 1), userID: "user-1"}
	d.Register("user-1", c)
	c.close()

	assert.NotPanics(t, func() {
		require.NoError(t, d.PublishFill(context.Background(), fillEvent("user-1")))
	})
}

func wsURL(srv *httptest.Server, userID string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "?user_id=" + userID
}

func TestHub_DeliversFillToConnectedClient(t *testing.T) {
	d := NewDispatcher(nil, newTestLogger(t))
	h := NewHub(d, newTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "user-1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return d.Subscribers("user-1") == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, d.PublishFill(context.Background(), fillEvent("user-1")))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var decoded notificationv1.FillEvent
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "user-1", decoded.UserID)
	assert.Equal(t, "ord-1", decoded.OrderID)
}

// After Run has returned, a late connection attempt must not leave ServeWS
// blocked on the register channel. The server shutdown at the end of the
// test would hang on a stuck handler.
func TestHub_RejectsConnectionsAfterShutdown(t *testing.T) {
	d := NewDispatcher(nil, newTestLogger(t))
	h := NewHub(d, newTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "user-1"), nil)
	if err != nil {
		return
	}
	// The upgrade handshake may complete before the hub turns the
	// connection away; it must then be closed promptly.
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, readErr := conn.ReadMessage()
	assert.Error(t, readErr)
	conn.Close()

	assert.Equal(t, 0, d.Subscribers("user-1"))
}
