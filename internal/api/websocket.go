package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/config"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/logging"
)

// Event channels pushed to dashboards.
const (
	ChannelStoreUpdated  = "store.updated"
	ChannelSidecarEdited = "sidecar.edited"

	// ChannelConnected is sent once per connection, after the client has
	// been registered. Its payload lists the channels the client receives.
	ChannelConnected = "connected"
)

// wsSendBufferSize is the per-client outbound frame buffer. A client that
// falls this far behind is disconnected.
const wsSendBufferSize = 16

var pushChannels = []string{ChannelStoreUpdated, ChannelSidecarEdited}

// Event is one frame pushed to a dashboard.
type Event struct {
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Hub fans store events out to connected dashboards. Dashboards pick their
// channels when connecting (?channels=store.updated,sidecar.edited) and only
// listen afterwards; frames they send are discarded.
//
// Thread Safety: all methods are safe for concurrent use.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.Mutex
	clients map[*dashboard]struct{}
	closed  bool
}

// dashboard is one connected listener. channels is fixed at connect time.
type dashboard struct {
	conn     *websocket.Conn
	channels []string
	send     chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates an empty hub. Run must be called to tie it to a lifetime.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*dashboard]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every dashboard and
// refuses new ones.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for d := range h.clients {
		delete(h.clients, d)
		close(d.send)
	}
}

// Publish pushes payload to every dashboard listening on channel.
func (h *Hub) Publish(channel string, payload any) {
	data, err := json.Marshal(Event{Channel: channel, Timestamp: time.Now().UTC(), Payload: payload})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for d := range h.clients {
		if !slices.Contains(d.channels, channel) {
			continue
		}
		select {
		case d.send <- data:
		default:
			h.logger.Warn("websocket client too slow, disconnecting", "channel", channel)
			delete(h.clients, d)
			close(d.send)
		}
	}
}

// ClientCount returns the number of connected dashboards.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// register adds d and queues its connected frame. It reports false once the
// hub has shut down.
func (h *Hub) register(d *dashboard) bool {
	hello, err := json.Marshal(Event{
		Channel:   ChannelConnected,
		Timestamp: time.Now().UTC(),
		Payload:   map[string]any{"channels": d.channels},
	})
	if err != nil {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[d] = struct{}{}
	d.send <- hello
	return true
}

// remove drops d if it is still registered. The send channel is closed
// exactly once, under the hub lock.
func (h *Hub) remove(d *dashboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[d]; ok {
		delete(h.clients, d)
		close(d.send)
	}
}

// broadcast is the nil-safe entry point used by handlers.
func (s *Server) broadcast(channel string, payload any) {
	if s.hub != nil {
		s.hub.Publish(channel, payload)
	}
}

// parseChannels reads the channels query parameter. An empty value selects
// every push channel.
func parseChannels(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return slices.Clone(pushChannels), nil
	}
	var out []string
	for _, ch := range strings.Split(raw, ",") {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if !slices.Contains(pushChannels, ch) {
			return nil, fmt.Errorf("unknown channel %q", ch)
		}
		if !slices.Contains(out, ch) {
			out = append(out, ch)
		}
	}
	if len(out) == 0 {
		return slices.Clone(pushChannels), nil
	}
	return out, nil
}

// handleWebSocket upgrades the request and attaches the connection to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "websocket hub not running")
		return
	}
	channels, err := parseChannels(r.URL.Query().Get("channels"))
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	d := &dashboard{conn: conn, channels: channels, send: make(chan []byte, wsSendBufferSize)}
	if !s.hub.register(d) {
		conn.Close() //nolint:errcheck // Hub is shutting down
		return
	}

	go s.hub.writePump(d)
	go s.hub.readPump(d)
}

// readPump keeps the read side alive so pong and close frames are handled.
func (h *Hub) readPump(d *dashboard) {
	defer h.remove(d)

	pongWait := time.Duration(h.cfg.PingInterval+h.cfg.PongTimeout) * time.Second
	d.conn.SetReadLimit(int64(h.cfg.MaxMessageSize))
	d.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck // Best-effort deadline
	d.conn.SetPongHandler(func(string) error {
		return d.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := d.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

// writePump drains d.send and pings on the configured interval. It owns all
// writes to the connection and closes it on exit.
func (h *Hub) writePump(d *dashboard) {
	ticker := time.NewTicker(time.Duration(h.cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		d.conn.Close() //nolint:errcheck // Connection teardown
	}()

	const writeWait = 10 * time.Second
	for {
		select {
		case frame, ok := <-d.send:
			d.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // Best-effort deadline
			if !ok {
				//nolint:errcheck // Peer may already be gone
				d.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := d.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			d.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // Best-effort deadline
			if err := d.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
