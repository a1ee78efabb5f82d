package signal

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sigrelay/sigrelay/internal/app"
	"github.com/sigrelay/sigrelay/internal/config"
	"github.com/sigrelay/sigrelay/internal/core"
	"github.com/sigrelay/sigrelay/internal/protocol"
)

// Controller owns the websocket side of the relay: one connection per peer,
// one reader goroutine feeding the router, one writer goroutine draining the
// peer's send queue.
type Controller struct {
	Router *app.Router
	Codec  *protocol.Codec
	Cfg    *config.Config
}

func NewController(cfg *config.Config, router *app.Router) *Controller {
	return &Controller{
		Router: router,
		Codec:  protocol.NewCodec(),
		Cfg:    cfg,
	}
}

// wsConn is the registry's connection handle. TrySend never blocks: the
// writePump drains the channel, and a full channel means the peer is too
// slow to keep its slot.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close stops accepting outbound frames. The underlying socket is closed by
// the writePump once it has drained what was already queued.
func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades an admitted request and serves the peer until its
// connection drops. Credential validation has already happened in the
// gateway middleware by the time this runs.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}

	pid := ctl.Router.Registry.Admit(conn)
	log.Info().Str("module", "signal").Str("peer", string(pid)).Msg("new WS connection")

	_ = conn.TrySend(protocol.Encode(protocol.NewWelcome(pid)))

	go ctl.writePump(ctx, conn)
	ctl.readPump(pid, conn)
}
