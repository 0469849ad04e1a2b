package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"refill-api-server/internal/auth"
	"refill-api-server/internal/logger"
	"refill-api-server/internal/socket"
)

// pongWait is how long a client may stay silent before it is dropped.
const pongWait = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	Hub    *socket.Hub
	Tokens *auth.Tokens
}

// ServeWs authenticates with ?token= because browsers cannot set headers on
// a websocket handshake.
func (h *WebSocketHandler) ServeWs(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "Token is required"})
		return
	}
	id, err := h.Tokens.ParseToken(tokenString)
	if err != nil || id.Email == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "Invalid or expired token"})
		return
	}
	log := logger.FromContext(c.Request.Context()).With("email", id.Email)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnw("failed to upgrade connection", "error", err)
		return
	}

	unregister := h.Hub.Register(id.Email, conn)
	defer func() {
		unregister()
		conn.Close()
	}()

	// Every ping, pong or message extends the read deadline.
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	extend := func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	conn.SetPingHandler(func(data string) error {
		if err := extend(data); err != nil {
			return err
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	conn.SetPongHandler(extend)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Infow("unexpected websocket close", "error", err)
			}
			return
		}
		_ = extend("")
	}
}
