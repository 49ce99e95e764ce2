package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/homesim/internal/infrastructure/config"
	"github.com/nerrad567/homesim/internal/infrastructure/logging"
)

// Message types on the event stream.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// WSChannelAll matches every event kind.
	WSChannelAll = "*"
)

const (
	eventQueueSize = 256
	replyQueueSize = 16
	fanoutQueue    = 64
)

// WSMessage is the envelope for everything written to a subscriber, and
// for requests read from it.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload lists the event kinds a subscriber wants.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

type request struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

type outbound struct {
	kind string
	data []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Hub fans out device, sensor and task events to connected subscribers.
// The subscriber set is owned by the Run goroutine; everything else talks
// to it over channels.
type Hub struct {
	logger *logging.Logger

	readLimit int64
	keepalive time.Duration
	grace     time.Duration

	join   chan *Subscriber
	leave  chan *Subscriber
	events chan outbound
	done   chan struct{}

	count atomic.Int64
}

// Subscriber is one event-stream connection.
type Subscriber struct {
	hub     *Hub
	conn    *websocket.Conn
	events  chan []byte // closed by the hub
	replies chan []byte

	kinds atomic.Pointer[map[string]struct{}]
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	limit := int64(cfg.MaxMessageSize)
	if limit <= 0 {
		limit = 8192
	}
	return &Hub{
		logger:    logger,
		readLimit: limit,
		keepalive: secondsOr(cfg.PingInterval, 30),
		grace:     secondsOr(cfg.PongTimeout, 10),
		join:      make(chan *Subscriber),
		leave:     make(chan *Subscriber),
		events:    make(chan outbound, fanoutQueue),
		done:      make(chan struct{}),
	}
}

func secondsOr(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}

// Run owns the subscriber set until ctx is cancelled, then disconnects
// everyone.
func (h *Hub) Run(ctx context.Context) {
	subs := make(map[*Subscriber]struct{})
	defer func() {
		close(h.done)
		for s := range subs {
			close(s.events)
			s.conn.Close()
		}
		h.count.Store(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-h.join:
			subs[s] = struct{}{}
			h.count.Store(int64(len(subs)))
			h.logger.Debug("event stream subscriber joined", "subscribers", len(subs))
		case s := <-h.leave:
			if _, ok := subs[s]; ok {
				delete(subs, s)
				close(s.events)
				h.count.Store(int64(len(subs)))
				h.logger.Debug("event stream subscriber left", "subscribers", len(subs))
			}
		case ev := <-h.events:
			h.fanout(subs, ev)
		}
	}
}

func (h *Hub) fanout(subs map[*Subscriber]struct{}, ev outbound) {
	delivered, dropped := 0, 0
	for s := range subs {
		if !s.wants(ev.kind) {
			continue
		}
		select {
		case s.events <- ev.data:
			delivered++
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("slow event stream subscribers skipped", "kind", ev.kind, "dropped", dropped)
	}
	if delivered > 0 {
		h.logger.Debug("event fanned out", "kind", ev.kind, "subscribers", delivered)
	}
}

// Broadcast queues payload for every subscriber of kind. It never blocks
// on slow subscribers; if the hub itself is backed up the event is dropped.
func (h *Hub) Broadcast(kind string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: kind,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding event for stream", "kind", kind, "error", err)
		return
	}

	select {
	case h.events <- outbound{kind: kind, data: data}:
	case <-h.done:
	default:
		h.logger.Warn("event stream backlog full, dropping event", "kind", kind)
	}
}

// ClientCount reports the number of connected subscribers.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Serve attaches conn to the hub and starts its pumps. It returns nil if
// the hub has already shut down.
func (h *Hub) Serve(conn *websocket.Conn) *Subscriber {
	s := &Subscriber{
		hub:     h,
		conn:    conn,
		events:  make(chan []byte, eventQueueSize),
		replies: make(chan []byte, replyQueueSize),
	}
	empty := map[string]struct{}{}
	s.kinds.Store(&empty)

	select {
	case h.join <- s:
	case <-h.done:
		conn.Close()
		return nil
	}

	go s.writeLoop()
	go s.readLoop()
	return s
}

func (s *Subscriber) wants(kind string) bool {
	kinds := *s.kinds.Load()
	if _, ok := kinds[WSChannelAll]; ok {
		return true
	}
	_, ok := kinds[kind]
	return ok
}

// updateKinds swaps in a new subscription set; only readLoop writes it.
func (s *Subscriber) updateKinds(add bool, names []string) {
	cur := *s.kinds.Load()
	next := make(map[string]struct{}, len(cur)+len(names))
	for k := range cur {
		next[k] = struct{}{}
	}
	for _, n := range names {
		if add {
			next[n] = struct{}{}
		} else {
			delete(next, n)
		}
	}
	s.kinds.Store(&next)
}

func (s *Subscriber) readLoop() {
	h := s.hub
	defer func() {
		select {
		case h.leave <- s:
		case <-h.done:
		}
		s.conn.Close()
	}()

	deadline := h.keepalive + h.grace
	s.conn.SetReadLimit(h.readLimit)
	s.conn.SetReadDeadline(time.Now().Add(deadline)) //nolint:errcheck // reset on every frame
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("event stream read failed", "error", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(deadline)) //nolint:errcheck // best effort
		s.handle(data)
	}
}

func (s *Subscriber) writeLoop() {
	h := s.hub
	ping := time.NewTicker(h.keepalive)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		s.conn.SetWriteDeadline(time.Now().Add(h.grace)) //nolint:errcheck // write reports failure
		return s.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-s.events:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if write(websocket.TextMessage, data) != nil {
				return
			}
		case data := <-s.replies:
			if write(websocket.TextMessage, data) != nil {
				return
			}
		case <-ping.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (s *Subscriber) handle(data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		s.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch req.Type {
	case WSTypePing:
		s.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(req.Payload) > 0 {
			if err := json.Unmarshal(req.Payload, &sub); err != nil {
				s.reply(req.ID, WSTypeError, map[string]string{"message": "invalid " + req.Type + " payload"})
				return
			}
		}
		add := req.Type == WSTypeSubscribe
		s.updateKinds(add, sub.Channels)
		key := "unsubscribed"
		if add {
			key = "subscribed"
		}
		s.reply(req.ID, WSTypeResponse, map[string]any{key: sub.Channels})
	default:
		s.reply(req.ID, WSTypeError, map[string]string{"message": "unknown message type: " + req.Type})
	}
}

func (s *Subscriber) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	select {
	case s.replies <- data:
	default:
		s.hub.logger.Warn("event stream reply dropped", "type", msgType)
	}
}

// handleWebSocket upgrades the request and hands the connection to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event stream not running")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	s.hub.Serve(conn)
}
