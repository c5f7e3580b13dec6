package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-babybuddy/internal/coordinator"
	"github.com/nerrad567/gray-logic-babybuddy/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-babybuddy/internal/infrastructure/logging"
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

// ChannelSnapshotUpdated carries every snapshot installed by a coordinator.
// Subscribing replays the current snapshot of each matching entry.
const ChannelSnapshotUpdated = "snapshot.updated"

// wsSendBufferSize is the per-client outbound message buffer size.
const wsSendBufferSize = 256

// WSMessage is the envelope of every frame in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`

	// Entries limits events to these entry ids. Empty means every entry.
	// Only read by subscribe; it replaces the client's previous filter.
	Entries []string `json:"entries,omitempty"`
}

// SnapshotEvent is the payload of a snapshot.updated event.
type SnapshotEvent struct {
	Entry    string                `json:"entry"`
	Snapshot *coordinator.Snapshot `json:"snapshot"`
}

// SnapshotSource returns the current snapshot of every entry.
type SnapshotSource func() []*coordinator.Snapshot

// Hub tracks WebSocket clients and fans events out to them.
//
// Thread Safety: All methods are safe for concurrent use.
type Hub struct {
	cfg       config.WebSocketConfig
	logger    *logging.Logger
	snapshots SnapshotSource

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one connected WebSocket client.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// subject is the token subject the connection's ticket was issued to.
	subject string

	mu            sync.RWMutex
	subscriptions map[string]struct{}
	entries       map[string]struct{} // nil matches every entry
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a hub. snapshots may be nil, in which case subscribing
// replays nothing.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, snapshots SnapshotSource) *Hub {
	return &Hub{
		cfg:       cfg,
		logger:    logger,
		snapshots: snapshots,
		clients:   make(map[*WSClient]struct{}),
	}
}

// newClient creates a client with empty subscriptions.
func (h *Hub) newClient(conn *websocket.Conn, subject string) *WSClient {
	return &WSClient{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subject:       subject,
		subscriptions: make(map[string]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", client.subject, "clients", n)
}

// Unregister removes a client. Only the call that removes the client closes
// its send channel, so concurrent calls during shutdown cannot double-close.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
		h.logger.Debug("websocket client disconnected", "subject", client.subject, "clients", n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every client subscribed to channel whose entry
// filter matches entryID. An empty entryID matches every client.
func (h *Hub) Broadcast(channel, entryID string, payload any) {
	data, err := encodeEvent(channel, payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}

	// Copy the client list so no client lock is taken under the hub lock.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if client.wants(channel, entryID) {
			client.trySend(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "entry", entryID, "recipients", sent)
	}
}

// broadcastSnapshot relays an installed snapshot to subscribed clients.
// It has the coordinator.Listener signature.
func (s *Server) broadcastSnapshot(snap *coordinator.Snapshot) {
	if snap == nil {
		return
	}
	s.hub.Broadcast(ChannelSnapshotUpdated, snap.EntryID, SnapshotEvent{Entry: snap.EntryID, Snapshot: snap})
}

// currentSnapshots is the hub's SnapshotSource.
func (s *Server) currentSnapshots() []*coordinator.Snapshot {
	var snaps []*coordinator.Snapshot
	for _, id := range s.host.Entries() {
		coord, ok := s.host.Coordinator(id)
		if !ok {
			continue
		}
		if snap := coord.Snapshot(); snap != nil {
			snaps = append(snaps, snap)
		}
	}
	return snaps
}

// handleWebSocket upgrades the connection. Authentication is a single-use
// ticket query parameter obtained from POST /auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.tickets.consume(ticket, time.Now())
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := s.hub.newClient(conn, entry.subject)
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// readPump reads frames until the connection fails, then unregisters.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	readWindow := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(readWindow)) }

	//nolint:errcheck // Best-effort deadline on connection setup
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}
		// Any client frame counts as liveness, for browsers that ignore pings.
		//nolint:errcheck // Best-effort deadline reset
		extend()
		c.handleMessage(message)
	}
}

// writePump drains the send channel and pings on the configured interval.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(messageType int, data []byte) error {
		//nolint:errcheck // Best-effort deadline; write error caught by caller
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(messageType, data)
	}

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close frame
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one client frame.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		sub, err := decodeSubscribe(msg.Payload)
		if err != nil {
			c.sendError(msg.ID, "invalid "+msg.Type+" payload")
			return
		}
		if msg.Type == WSTypeSubscribe {
			c.subscribe(msg.ID, sub)
		} else {
			c.unsubscribe(msg.ID, sub)
		}
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// decodeSubscribe re-decodes a generically unmarshalled payload.
func decodeSubscribe(payload any) (WSSubscribePayload, error) {
	var sub WSSubscribePayload
	raw, err := json.Marshal(payload)
	if err != nil {
		return sub, err
	}
	err = json.Unmarshal(raw, &sub)
	return sub, err
}

func (c *WSClient) subscribe(id string, sub WSSubscribePayload) {
	c.mu.Lock()
	for _, ch := range sub.Channels {
		c.subscriptions[ch] = struct{}{}
	}
	c.entries = nil
	if len(sub.Entries) > 0 {
		c.entries = make(map[string]struct{}, len(sub.Entries))
		for _, e := range sub.Entries {
			c.entries[e] = struct{}{}
		}
	}
	c.mu.Unlock()

	c.hub.logger.Info("websocket client subscribed",
		"channels", sub.Channels,
		"entries", sub.Entries,
		"subject", c.subject,
	)
	c.reply(id, WSTypeResponse, map[string]any{"subscribed": sub.Channels})

	if slices.Contains(sub.Channels, ChannelSnapshotUpdated) {
		c.replaySnapshots()
	}
}

func (c *WSClient) unsubscribe(id string, sub WSSubscribePayload) {
	c.mu.Lock()
	for _, ch := range sub.Channels {
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()

	c.reply(id, WSTypeResponse, map[string]any{"unsubscribed": sub.Channels})
}

// replaySnapshots sends the current snapshot of every matching entry.
func (c *WSClient) replaySnapshots() {
	if c.hub.snapshots == nil {
		return
	}
	for _, snap := range c.hub.snapshots() {
		if !c.wants(ChannelSnapshotUpdated, snap.EntryID) {
			continue
		}
		data, err := encodeEvent(ChannelSnapshotUpdated, SnapshotEvent{Entry: snap.EntryID, Snapshot: snap})
		if err != nil {
			continue
		}
		c.trySend(data)
	}
}

// wants reports whether the client receives events of channel for entryID.
func (c *WSClient) wants(channel, entryID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.subscriptions[channel]; !ok {
		return false
	}
	if c.entries == nil || entryID == "" {
		return true
	}
	_, ok := c.entries[entryID]
	return ok
}

// trySend queues data without blocking. A full buffer drops the frame and a
// closed channel (client gone mid-broadcast) is ignored.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

// reply sends a non-event message to the client.
func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}

func encodeEvent(channel string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}
