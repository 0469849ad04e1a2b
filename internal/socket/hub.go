package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"refill-api-server/internal/logger"
)

const writeWait = 10 * time.Second

// Conn is the part of *websocket.Conn the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type client struct {
	conn Conn
	// gorilla allows one concurrent writer per connection.
	writeMu sync.Mutex
}

// Hub tracks live websocket connections keyed by user email. One user may
// hold several connections (tabs, devices).
type Hub struct {
	clients map[string]map[*client]struct{}
	mu      sync.RWMutex
	log     *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		log:     log.WithComponent("socket.hub"),
	}
}

// Register adds conn for email. The returned func removes it again.
func (h *Hub) Register(email string, conn Conn) (unregister func()) {
	c := &client{conn: conn}
	h.mu.Lock()
	set, ok := h.clients[email]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[email] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	h.log.Infow("websocket client registered", "email", email)

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.clients[email]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.clients, email)
			}
		}
		h.log.Infow("websocket client unregistered", "email", email)
	}
}

// Connected reports how many connections email currently holds.
func (h *Hub) Connected(email string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[email])
}

// Send writes message to every connection of email. An offline user is not
// an error.
func (h *Hub) Send(email string, message []byte) error {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[email]))
	for c := range h.clients[email] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		h.log.Debugw("websocket client not connected", "email", email)
		return nil
	}

	var firstErr error
	for _, c := range targets {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.conn.WriteMessage(websocket.TextMessage, message)
		c.writeMu.Unlock()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Notification is the JSON frame pushed to clients.
type Notification struct {
	Type    string    `json:"type"`
	Subject string    `json:"subject"`
	Text    string    `json:"text"`
	SentAt  time.Time `json:"sentAt"`
}

// Notify implements notify.Gateway for in-app delivery.
func (h *Hub) Notify(_ context.Context, recipients []string, subject, _, text string) bool {
	frame, err := json.Marshal(Notification{
		Type:    "notification",
		Subject: subject,
		Text:    text,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		h.log.Errorw("encode websocket notification", "error", err)
		return false
	}
	ok := true
	for _, email := range recipients {
		if err := h.Send(email, frame); err != nil {
			h.log.Warnw("websocket notification failed", "email", email, "error", err)
			ok = false
		}
	}
	return ok
}
