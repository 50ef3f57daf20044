package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/quire/internal/reload"
)

func startHub(t *testing.T) (*Server, *fakeSource, *httptest.Server) {
	t.Helper()
	srv, source := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Hub().Run(ctx)
	<-srv.Hub().Ready()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return srv, source, ts
}

func dial(ctx context.Context, ts *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if origin != "" {
		opts.HTTPHeader.Set("Origin", origin)
	}

	return websocket.Dial(ctx, url, opts)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestCheckOrigin(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"base url host", "https://blog.example.com", true},
		{"listen address", "http://localhost:8080", true},
		{"loopback", "http://127.0.0.1:8080", true},
		{"other port", "http://localhost:3000", false},
		{"external", "http://malicious.com", false},
		{"javascript scheme", "javascript:alert(1)", false},
		{"file scheme", "file:///etc/passwd", false},
		{"missing", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, srv.Hub().checkOrigin(req))
		})
	}
}

func TestHubBroadcastsReloads(t *testing.T) {
	srv, source, ts := startHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := dial(ctx, ts, "https://blog.example.com")
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	waitFor(t, func() bool { return srv.Hub().Len() == 1 })

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, 1, source.broker.Publish(reload.Event{Generation: 5, At: at, Warnings: 2}))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg UpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "reload", msg.Type)
	assert.Equal(t, uint64(5), msg.Generation)
	assert.Equal(t, 2, msg.Warnings)
	assert.True(t, at.Equal(msg.Timestamp))
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	_, _, ts := startHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := dial(ctx, ts, "http://malicious.com")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHubUnregistersClosedClients(t *testing.T) {
	srv, _, ts := startHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := dial(ctx, ts, "https://blog.example.com")
	require.NoError(t, err)
	waitFor(t, func() bool { return srv.Hub().Len() == 1 })

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	waitFor(t, func() bool { return srv.Hub().Len() == 0 })
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	srv, _, ts := startHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := dial(ctx, ts, "https://blog.example.com")
	require.NoError(t, err)
	waitFor(t, func() bool { return srv.Hub().Len() == 1 })

	srv.Hub().Close()

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
	waitFor(t, func() bool { return srv.Hub().Len() == 0 })
}
