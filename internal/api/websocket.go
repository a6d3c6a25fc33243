package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// ChannelStatus carries every status change. New clients start subscribed
// to it.
const ChannelStatus = "climate.status"

const (
	wsQueueLen = 64

	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30 * time.Second
	defaultWSPongTimeout    = 10 * time.Second
)

// WSMessage is the frame exchanged in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe requests.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// inboundFrame defers payload decoding until the type is known.
type inboundFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Origin checking is done by the CORS middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans status events out to connected clients.
type Hub struct {
	readLimit    int64
	pingInterval time.Duration
	writeWait    time.Duration
	logger       *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewHub creates a hub. Zero settings take defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	h := &Hub{
		readLimit:    defaultWSMaxMessageSize,
		pingInterval: defaultWSPingInterval,
		writeWait:    defaultWSPongTimeout,
		logger:       logger,
		clients:      make(map[*wsClient]struct{}),
	}
	if cfg.MaxMessageSize > 0 {
		h.readLimit = int64(cfg.MaxMessageSize)
	}
	if cfg.PingInterval > 0 {
		h.pingInterval = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		h.writeWait = time.Duration(cfg.PongTimeout) * time.Second
	}
	return h
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

// Broadcast queues an event for every client subscribed to channel.
// Clients whose queue is full miss the event.
func (h *Hub) Broadcast(channel string, payload any) {
	frame, err := eventFrame(channel, payload)
	if err != nil {
		h.logger.Error("failed to encode websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.subscribed(channel) {
			c.enqueue(frame)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

func eventFrame(channel string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// handleWebSocket upgrades the connection and sends the cached status as
// the first event.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	// Taken before joining the hub so a first-ever fetch is not sent twice.
	snapshot := s.service.QueryStatus(r.Context(), false)

	c := &wsClient{
		hub:      s.hub,
		conn:     conn,
		queue:    make(chan []byte, wsQueueLen),
		done:     make(chan struct{}),
		channels: map[string]bool{ChannelStatus: true},
	}
	if frame, err := eventFrame(ChannelStatus, snapshot); err == nil {
		c.enqueue(frame)
	}
	s.hub.add(c)

	go c.writeLoop()
	go c.readLoop()
}

// wsClient is one connection. The queue is never closed; done signals
// shutdown to both loops.
type wsClient struct {
	hub   *Hub
	conn  *websocket.Conn
	queue chan []byte

	done      chan struct{}
	closeOnce sync.Once

	mu       sync.RWMutex
	channels map[string]bool
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// enqueue drops the frame when the client is gone or its queue is full.
func (c *wsClient) enqueue(frame []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.queue <- frame:
	default:
	}
}

func (c *wsClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channel]
}

func (c *wsClient) readLoop() {
	defer c.hub.remove(c)

	idle := c.hub.pingInterval + c.hub.writeWait
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }

	c.conn.SetReadLimit(c.hub.readLimit)
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		_ = extend("")
		c.dispatch(data)
	}
}

func (c *wsClient) writeLoop() {
	ping := time.NewTicker(c.hub.pingInterval)
	defer ping.Stop()
	defer c.close()

	for {
		var err error
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(c.hub.writeWait))
			return
		case frame := <-c.queue:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			err = c.conn.WriteMessage(websocket.TextMessage, frame)
		case <-ping.C:
			err = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.hub.writeWait))
		}
		if err != nil {
			return
		}
	}
}

func (c *wsClient) dispatch(data []byte) {
	var in inboundFrame
	if err := json.Unmarshal(data, &in); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch in.Type {
	case WSTypePing:
		c.reply(in.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &sub); err != nil {
				c.reply(in.ID, WSTypeError, map[string]string{"message": "invalid " + in.Type + " payload"})
				return
			}
		}
		add := in.Type == WSTypeSubscribe
		c.mu.Lock()
		for _, ch := range sub.Channels {
			if add {
				c.channels[ch] = true
			} else {
				delete(c.channels, ch)
			}
		}
		c.mu.Unlock()
		c.reply(in.ID, WSTypeResponse, map[string]any{in.Type + "d": sub.Channels})
	default:
		c.reply(in.ID, WSTypeError, map[string]string{"message": "unknown message type: " + in.Type})
	}
}

func (c *wsClient) reply(id, msgType string, payload any) {
	frame, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err == nil {
		c.enqueue(frame)
	}
}
