package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"websocket-service/internal/ports"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var _ ports.MessageSink = (*Hub)(nil)

// Clients never send application data, only control frames.
const maxClientMessage = 512

type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ClientQueue  int
	// MaxClients caps concurrent connections; 0 means unlimited.
	MaxClients int
	// Replay is how many history messages a new client receives.
	Replay int
	// CheckOrigin overrides the upgrader's same-origin check.
	CheckOrigin func(r *http.Request) bool
}

// Hub fans consumed messages out to every connected websocket client.
type Hub struct {
	opts     Options
	history  ports.MessageHistory
	metrics  *metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uint64]*Client
	nextID  uint64
	closed  bool
}

type Client struct {
	ID   uint64
	conn *websocket.Conn
	send chan *websocket.PreparedMessage
	done chan struct{}
	once sync.Once
}

// NewHub creates a hub. history may be nil; reg may be nil to skip metric
// registration.
func NewHub(opts Options, history ports.MessageHistory, reg prometheus.Registerer, logger *zap.Logger) *Hub {
	return &Hub{
		opts:    opts,
		history: history,
		metrics: newMetrics(reg),
		logger:  logger.Named("hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
		clients: make(map[uint64]*Client),
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.admit(); err != nil {
		h.metrics.rejectedClients.Inc()
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	if _, err := h.Add(conn); err != nil {
		h.metrics.rejectedClients.Inc()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(h.opts.WriteTimeout))
		conn.Close()
	}
}

func (h *Hub) admit() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ports.ErrHubClosed
	}
	if h.opts.MaxClients > 0 && len(h.clients) >= h.opts.MaxClients {
		return ports.ErrHubFull
	}
	return nil
}

// Add registers conn, queues the recent history for it and starts its reader
// and writer.
func (h *Hub) Add(conn *websocket.Conn) (*Client, error) {
	client := &Client{
		conn: conn,
		send: make(chan *websocket.PreparedMessage, h.opts.ClientQueue),
		done: make(chan struct{}),
	}
	// History is queued before registration so replayed messages precede
	// live ones.
	h.replay(client)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ports.ErrHubClosed
	}
	if h.opts.MaxClients > 0 && len(h.clients) >= h.opts.MaxClients {
		h.mu.Unlock()
		return nil, ports.ErrHubFull
	}
	h.nextID++
	client.ID = h.nextID
	h.clients[client.ID] = client
	h.mu.Unlock()

	h.metrics.activeClients.Inc()
	h.logger.Debug("client connected", zap.Uint64("client", client.ID), zap.String("remote", conn.RemoteAddr().String()))

	go h.writer(client)
	go h.reader(client)

	return client, nil
}

func (h *Hub) replay(c *Client) {
	if h.history == nil || h.opts.Replay <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.WriteTimeout)
	defer cancel()

	msgs, err := h.history.Recent(ctx, h.opts.Replay)
	if err != nil {
		h.logger.Warn("failed to load history", zap.Error(err))
		return
	}
	if len(msgs) > cap(c.send) {
		msgs = msgs[len(msgs)-cap(c.send):]
	}
	for _, m := range msgs {
		pm, err := websocket.NewPreparedMessage(websocket.BinaryMessage, m)
		if err != nil {
			continue
		}
		c.send <- pm
	}
}

// Deliver records payload in the history and broadcasts it. History failures
// are logged, not returned.
func (h *Hub) Deliver(ctx context.Context, payload []byte) error {
	if h.isClosed() {
		return ports.ErrHubClosed
	}
	if h.history != nil {
		if err := h.history.Append(ctx, payload); err != nil {
			h.logger.Warn("failed to record history", zap.Error(err))
		}
	}
	return h.Broadcast(payload)
}

// Broadcast queues payload for every client. Clients with a full queue miss
// the message.
func (h *Hub) Broadcast(payload []byte) error {
	pm, err := websocket.NewPreparedMessage(websocket.BinaryMessage, payload)
	if err != nil {
		return err
	}
	h.metrics.totalMessages.Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case <-c.done:
		case c.send <- pm:
		default:
			h.metrics.droppedMessages.Inc()
			h.logger.Debug("client queue full, dropping message", zap.Uint64("client", c.ID))
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// Close disconnects every client with a going-away frame. Later Add and
// Deliver calls fail with ports.ErrHubClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	deadline := time.Now().Add(h.opts.WriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		h.remove(c)
	}
	return nil
}

func (h *Hub) remove(c *Client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c.ID)
		h.mu.Unlock()

		close(c.done)
		c.conn.Close()
		h.metrics.activeClients.Dec()
		h.logger.Debug("client disconnected", zap.Uint64("client", c.ID))
	})
}

func (h *Hub) reader(c *Client) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxClientMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				h.logger.Warn("read error", zap.Uint64("client", c.ID), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writer(c *Client) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		h.remove(c)
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := c.conn.WritePreparedMessage(msg); err != nil {
				h.logger.Debug("write failed", zap.Uint64("client", c.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
				h.logger.Debug("ping failed", zap.Uint64("client", c.ID), zap.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}
