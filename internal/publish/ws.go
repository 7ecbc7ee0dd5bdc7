package publish

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSConfig holds websocket connection settings.
type WSConfig struct {
	AllowedOrigin string // "*" allows any origin
	PingInterval  time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// DefaultWSConfig returns the default websocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		AllowedOrigin: "*",
		PingInterval:  30 * time.Second,
		ReadTimeout:   60 * time.Second,
		WriteTimeout:  10 * time.Second,
	}
}

// ServeWS upgrades requests to websocket connections that stream hub events
// as JSON text frames.
func ServeWS(hub *Hub, cfg WSConfig, logger zerolog.Logger) http.Handler {
	logger = logger.With().Str("component", "ws").Logger()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return OriginAllowed(cfg.AllowedOrigin, r.Header.Get("Origin"))
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			logger.Debug().Err(err).Str("origin", r.Header.Get("Origin")).Msg("upgrade rejected")
			return
		}

		sub := hub.Subscribe()
		logger.Info().Str("subscriber", sub.ID).Str("remote", r.RemoteAddr).Msg("client connected")

		done := make(chan struct{})
		go readLoop(conn, cfg, done)
		writeLoop(conn, sub, cfg, done)

		sub.Close()
		conn.Close()
		logger.Info().Str("subscriber", sub.ID).Msg("client disconnected")
	})
}

// OriginAllowed reports whether origin may connect. Requests without an
// Origin header come from non-browser clients and are allowed.
func OriginAllowed(allowed, origin string) bool {
	if allowed == "*" || origin == "" {
		return true
	}
	return strings.EqualFold(strings.TrimRight(allowed, "/"), strings.TrimRight(origin, "/"))
}

// readLoop drains client frames so control frames are processed, and closes
// done when the connection fails.
func readLoop(conn *websocket.Conn, cfg WSConfig, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the only writer on conn.
func writeLoop(conn *websocket.Conn, sub *Subscription, cfg WSConfig, done <-chan struct{}) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
