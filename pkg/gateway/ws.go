package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/joripage/orderentry-dev/pkg/refquote"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsMessage is what clients send to manage their asset subscriptions.
type wsMessage struct {
	Type   string   `json:"type"`   // "subscribe", "unsubscribe"
	Assets []string `json:"assets"` // ["BTC-USD", "ETH-USD"]
}

type quoteClient struct {
	hub        *QuoteHub
	conn       *websocket.Conn
	send       chan []byte
	assets     map[string]bool
	assetsLock sync.RWMutex
}

// QuoteHub relays reference quote updates to websocket clients, each client
// filtered to the assets it subscribed.
type QuoteHub struct {
	tracker    *refquote.Tracker
	clients    map[*quoteClient]bool
	register   chan *quoteClient
	unregister chan *quoteClient
	done       chan struct{}
	mu         sync.RWMutex
}

func NewQuoteHub(tracker *refquote.Tracker) *QuoteHub {
	return &QuoteHub{
		tracker:    tracker,
		clients:    make(map[*quoteClient]bool),
		register:   make(chan *quoteClient),
		unregister: make(chan *quoteClient),
		done:       make(chan struct{}),
	}
}

// Run pumps tracker updates to the connected clients until ctx ends.
func (h *QuoteHub) Run(ctx context.Context) {
	var updates <-chan refquote.Quote
	cancel := func() {}
	if h.tracker != nil {
		updates, cancel = h.tracker.Subscribe(64)
	}
	defer cancel()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case q, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			h.broadcast(q)
		}
	}
}

func (h *QuoteHub) broadcast(q refquote.Quote) {
	data, err := json.Marshal(q)
	if err != nil {
		zap.S().Warnf("marshal quote: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.subscribed(q.Asset) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// slow client, drop the tick
		}
	}
}

// HandleWebSocket upgrades the connection and attaches it to the hub.
func (h *QuoteHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.S().Warnf("websocket upgrade: %v", err)
		return
	}

	client := &quoteClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 64),
		assets: make(map[string]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close() // nolint
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *quoteClient) subscribed(asset string) bool {
	c.assetsLock.RLock()
	defer c.assetsLock.RUnlock()
	return c.assets[asset]
}

func (c *quoteClient) handleMessage(msg wsMessage) {
	switch msg.Type {
	case "subscribe":
		for _, asset := range msg.Assets {
			asset = strings.ToUpper(asset)
			c.assetsLock.Lock()
			c.assets[asset] = true
			c.assetsLock.Unlock()
			c.sendCurrent(asset)
		}
	case "unsubscribe":
		c.assetsLock.Lock()
		for _, asset := range msg.Assets {
			delete(c.assets, strings.ToUpper(asset))
		}
		c.assetsLock.Unlock()
	}
}

// sendCurrent pushes the latest known quote right after a subscribe so the
// client does not wait for the next tick.
func (c *quoteClient) sendCurrent(asset string) {
	if c.hub.tracker == nil {
		return
	}
	q, ok := c.hub.tracker.Latest(asset)
	if !ok {
		return
	}
	data, err := json.Marshal(q)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *quoteClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close() // nolint
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				zap.S().Debugf("websocket read: %v", err)
			}
			break
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *quoteClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close() // nolint
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
