package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bloops-games/carousing/internal/logging"
	"github.com/bloops-games/carousing/internal/overlay"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// newUpgrader accepts clients without an Origin, same-host pages and the allowed origins.
func newUpgrader(allowed []string) websocket.Upgrader {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[strings.TrimRight(o, "/")] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || origins[origin] {
				return true
			}

			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return strings.EqualFold(u.Host, r.Host)
		},
	}
}

// client is one overlay websocket. It renders frames into a buffered queue drained by
// writePump; a client that falls behind loses frames and catches up on the next view.
type client struct {
	conn *websocket.Conn
	send chan []byte

	mtx    sync.Mutex
	closed bool
}

func (c *client) Render(f overlay.Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.closed {
		return fmt.Errorf("client closed")
	}

	select {
	case c.send <- b:
		return nil
	default:
		return fmt.Errorf("send queue full")
	}
}

func (c *client) close() {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// serveWS upgrades the request and keeps the caller online until the socket closes.
func (h *Handler) serveWS(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.FromContext(ctx).Named("api.serveWS")
	user := callerUser(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("upgrade for %s: %v", user.ID, err)
		return
	}

	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.presence.Join(user.ID)
	h.metrics.Online.Set(float64(len(h.presence.Online())))

	view := overlay.New(user, h.engine, h.tables, h.hub, cl)

	go cl.writePump(logger.With(zap.String("user", user.ID)))

	if err := view.Open(ctx); err != nil {
		logger.Warnf("open overlay for %s: %v", user.ID, err)
	}

	cl.readPump(logger.With(zap.String("user", user.ID)))

	view.Close()
	cl.close()
	h.presence.Leave(user.ID)
	h.metrics.Online.Set(float64(len(h.presence.Online())))
}

// readPump discards client messages and returns when the connection dies.
func (c *client) readPump(logger *zap.SugaredLogger) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warnf("websocket read: %v", err)
			}
			return
		}
	}
}

func (c *client) writePump(logger *zap.SugaredLogger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debugf("websocket write: %v", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
