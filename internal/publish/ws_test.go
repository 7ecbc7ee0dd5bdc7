package publish

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-feed/internal/detect"
	"solana-token-feed/internal/domain"
)

func startWS(t *testing.T, h *Hub, cfg WSConfig) string {
	t.Helper()
	server := httptest.NewServer(ServeWS(h, cfg, zerolog.Nop()))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev domain.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func waitForCount(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Count() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWS_StreamsEvents(t *testing.T) {
	h := newTestHub()
	h.Publish(testSnap("a"), detect.Deltas{})
	url := startWS(t, h, DefaultWSConfig())

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readEvent(t, conn)
	assert.Equal(t, domain.EventSnapshot, first.Type)
	assert.Len(t, first.Tokens, 1)

	waitForCount(t, h, 1)
	snap := testSnap("a", "b")
	h.Publish(snap, detect.Deltas{PriceDeltas: snap.Records[1:]})

	assert.Equal(t, domain.EventSnapshot, readEvent(t, conn).Type)
	delta := readEvent(t, conn)
	assert.Equal(t, domain.EventPriceDelta, delta.Type)
	assert.Equal(t, "b", delta.Tokens[0].Key)
}

func TestServeWS_RejectsForeignOrigin(t *testing.T) {
	h := newTestHub()
	cfg := DefaultWSConfig()
	cfg.AllowedOrigin = "http://localhost:3000"
	url := startWS(t, h, cfg)

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"http://localhost:3000"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestServeWS_DisconnectUnsubscribes(t *testing.T) {
	h := newTestHub()
	url := startWS(t, h, DefaultWSConfig())

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	waitForCount(t, h, 1)

	conn.Close()
	waitForCount(t, h, 0)
}

func TestServeWS_SendsPings(t *testing.T) {
	h := newTestHub()
	cfg := DefaultWSConfig()
	cfg.PingInterval = 20 * time.Millisecond
	url := startWS(t, h, cfg)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestOriginAllowed(t *testing.T) {
	assert.True(t, OriginAllowed("*", "http://anything"))
	assert.True(t, OriginAllowed("http://localhost:3000", ""))
	assert.True(t, OriginAllowed("http://localhost:3000", "http://localhost:3000"))
	assert.True(t, OriginAllowed("http://localhost:3000/", "http://LOCALHOST:3000"))
	assert.False(t, OriginAllowed("http://localhost:3000", "http://localhost:4000"))
}
