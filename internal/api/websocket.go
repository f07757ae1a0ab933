package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soundmesh/soundmesh-core/internal/infrastructure/config"
	"github.com/soundmesh/soundmesh-core/internal/infrastructure/logging"
	"github.com/soundmesh/soundmesh-core/internal/state"
)

// Wire-level message types. Clients send subscribe/unsubscribe/ping; the
// hub answers with response/error and pushes event frames.
const (
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgPing        = "ping"
	msgPong        = "pong"
	msgEvent       = "event"
	msgResponse    = "response"
	msgError       = "error"
)

// Broadcast channels a session may subscribe to.
const (
	channelZones   = "zones"
	channelClients = "clients"
	channelSystem  = "system"
)

// sessionBuffer is the outbound frame buffer per session. A session that
// falls this far behind starts dropping events rather than stalling the
// broadcaster.
const sessionBuffer = 256

// wsFrame is the JSON envelope for every WebSocket message in both
// directions.
type wsFrame struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Hub tracks live WebSocket sessions and fans state events out to them.
type Hub struct {
	cfg      config.WebSocketConfig
	logger   *logging.Logger
	mu       sync.RWMutex
	sessions map[*wsSession]struct{}
}

// wsSession is one upgraded connection with its subscription set.
type wsSession struct {
	hub     *Hub
	conn    *websocket.Conn
	out     chan []byte
	subject string

	mu       sync.RWMutex
	channels map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the CORS middleware in front of the upgrade.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[*wsSession]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes every live session.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	open := h.sessions
	h.sessions = make(map[*wsSession]struct{})
	h.mu.Unlock()

	for sess := range open {
		close(sess.out)
		sess.conn.Close()
	}
}

func (h *Hub) attach(sess *wsSession) {
	h.mu.Lock()
	h.sessions[sess] = struct{}{}
	n := len(h.sessions)
	h.mu.Unlock()
	h.logger.Debug("websocket session opened", "sessions", n)
}

// detach removes the session and closes its out channel. The channel is
// closed exactly once: only the caller that actually deletes the map entry
// does it, so a read-loop exit racing Run cannot double-close.
func (h *Hub) detach(sess *wsSession) {
	h.mu.Lock()
	_, live := h.sessions[sess]
	delete(h.sessions, sess)
	n := len(h.sessions)
	h.mu.Unlock()

	if live {
		close(sess.out)
	}
	h.logger.Debug("websocket session closed", "sessions", n)
}

// Broadcast pushes an event frame to every session subscribed to channel.
// The session list is snapshotted first so no session lock is taken while
// the hub lock is held.
func (h *Hub) Broadcast(channel string, payload any) {
	frame, err := json.Marshal(wsFrame{
		Type:      msgEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("marshal websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*wsSession, 0, len(h.sessions))
	for sess := range h.sessions {
		targets = append(targets, sess)
	}
	h.mu.RUnlock()

	for _, sess := range targets {
		if sess.wants(channel) {
			sess.enqueue(frame)
		}
	}
}

// subscribeStateUpdates wires the state store to the hub: whenever a commit
// lands, zones and clients that changed are pushed to their channels. The
// observer only diffs two snapshots and hands frames to buffered session
// channels, so it never blocks the store.
func (s *Server) subscribeStateUpdates() {
	s.states.OnUpdate(func(previous, current *state.SystemState) {
		for id, zone := range current.Zones {
			if prev, ok := previous.Zones[id]; !ok || !zonesEqual(prev, zone) {
				s.hub.Broadcast(channelZones, zone)
			}
		}
		for id, client := range current.Clients {
			if prev, ok := previous.Clients[id]; !ok || prev != client {
				s.hub.Broadcast(channelClients, client)
			}
		}
		if previous.Status != current.Status {
			s.hub.Broadcast(channelSystem, map[string]any{
				"status":  current.Status,
				"version": current.Version,
			})
		}
	})
}

// zonesEqual reports whether two zone snapshots match, membership included.
func zonesEqual(a, b state.ZoneState) bool {
	if a.ID != b.ID || a.Name != b.Name || a.CurrentStreamID != b.CurrentStreamID ||
		a.Volume != b.Volume || a.Muted != b.Muted || a.Playback != b.Playback ||
		a.TrackIndex != b.TrackIndex || a.PlaylistIndex != b.PlaylistIndex {
		return false
	}
	if len(a.ClientIDs) != len(b.ClientIDs) {
		return false
	}
	for i := range a.ClientIDs {
		if a.ClientIDs[i] != b.ClientIDs[i] {
			return false
		}
	}
	return true
}

// handleWebSocket validates the single-use ticket, upgrades the connection
// and starts the session loops.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	subject, ok := s.tickets.consume(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sess := &wsSession{
		hub:      s.hub,
		conn:     conn,
		out:      make(chan []byte, sessionBuffer),
		channels: make(map[string]struct{}),
		subject:  subject,
	}
	s.hub.attach(sess)

	go sess.writeLoop(s.wsCfg)
	go sess.readLoop(s.wsCfg)
}

// readLoop consumes inbound frames until the connection drops, then
// detaches the session.
func (c *wsSession) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	//nolint:errcheck // Best-effort initial deadline
	c.conn.SetReadDeadline(time.Now().Add(idle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any inbound frame counts as liveness, not just protocol pongs;
		// browsers do not always answer control pings.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(idle))
		c.dispatch(data)
	}
}

// writeLoop drains the out channel and keeps the connection alive with
// periodic pings.
func (c *wsSession) writeLoop(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	deadline := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case frame, ok := <-c.out:
			if !ok {
				//nolint:errcheck // Best-effort close frame after detach
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Write error below ends the loop anyway
			c.conn.SetWriteDeadline(time.Now().Add(deadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Ping error below ends the loop anyway
			c.conn.SetWriteDeadline(time.Now().Add(deadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch handles one inbound frame.
func (c *wsSession) dispatch(data []byte) {
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}

	switch frame.Type {
	case msgSubscribe, msgUnsubscribe:
		channels, ok := decodeChannels(frame.Payload)
		if !ok {
			c.replyError(frame.ID, "invalid "+frame.Type+" payload")
			return
		}
		c.updateChannels(frame, channels)
	case msgPing:
		c.reply(frame.ID, msgPong, nil)
	default:
		c.replyError(frame.ID, "unknown message type: "+frame.Type)
	}
}

// updateChannels applies a subscribe or unsubscribe to the session's
// channel set and acknowledges it.
func (c *wsSession) updateChannels(frame wsFrame, channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		if frame.Type == msgSubscribe {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	c.mu.Unlock()

	if frame.Type == msgSubscribe {
		c.hub.logger.Debug("websocket subscription", "channels", channels, "subject", c.subject)
		c.reply(frame.ID, msgResponse, map[string]any{"subscribed": channels})
		return
	}
	c.reply(frame.ID, msgResponse, map[string]any{"unsubscribed": channels})
}

// decodeChannels extracts the channel list from a loosely-typed payload.
func decodeChannels(payload any) ([]string, bool) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}
	var body struct {
		Channels []string `json:"channels"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, false
	}
	return body.Channels, true
}

// enqueue hands a frame to the session buffer. Frames for a full buffer
// are dropped, and a send on a channel the hub already closed is absorbed
// rather than crashing the broadcaster.
func (c *wsSession) enqueue(frame []byte) {
	defer func() {
		recover() //nolint:errcheck // Send raced a detach
	}()

	select {
	case c.out <- frame:
	default:
	}
}

func (c *wsSession) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

// reply sends a response frame back to this session via enqueue, so a
// session torn down mid-reply is handled the same way as a slow one.
func (c *wsSession) reply(id, msgType string, payload any) {
	frame, err := json.Marshal(wsFrame{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func (c *wsSession) replyError(id, message string) {
	c.reply(id, msgError, map[string]string{"message": message})
}
