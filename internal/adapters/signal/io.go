package signal

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sigrelay/sigrelay/internal/domain"
	"github.com/sigrelay/sigrelay/internal/protocol"
)

const writeWait = 5 * time.Second

// writePump is the only writer on the socket. It exits when the send channel
// closes, after draining whatever is queued, so replies enqueued right before
// a forced disconnect still reach the peer. The context only matters at
// server shutdown.
func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()
	defer func() {
		c.Close()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump reads one message at a time and feeds it to the router, so a
// peer's messages are dispatched in send order. It is the connection's
// authoritative exit path: when it returns, the peer is removed from the
// registry and any session it was in is torn down.
func (ctl *Controller) readPump(pid domain.PeerID, c *wsConn) {
	defer func() {
		c.Close()
		ctl.Router.Disconnect(pid)
		log.Info().Str("module", "signal").Str("peer", string(pid)).Msg("connection closed")
	}()

	pongWait := ctl.Cfg.PingPeriod + writeWait
	c.conn.SetReadLimit(ctl.Cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	consecutiveErrors := 0
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("peer", string(pid)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if perr := ctl.handleFrame(&pid, c, data); perr != nil {
			consecutiveErrors++
			if consecutiveErrors >= ctl.Cfg.ErrorThreshold {
				log.Warn().Str("module", "signal").Str("peer", string(pid)).
					Int("errors", consecutiveErrors).
					Msg("too many consecutive protocol errors, dropping connection")
				return
			}
			continue
		}
		consecutiveErrors = 0
	}
}

// handleFrame decodes and dispatches one inbound frame. Protocol rejections
// are answered with a wire error and reported to the caller for the
// consecutive-error count; they never close the connection by themselves.
func (ctl *Controller) handleFrame(pid *domain.PeerID, c *wsConn, data []byte) *protocol.Error {
	env, err := ctl.Codec.Decode(data)
	if err != nil {
		return ctl.reject(*pid, c, err)
	}
	res, err := ctl.Router.Dispatch(*pid, env)
	if err != nil {
		return ctl.reject(*pid, c, err)
	}
	// register may rekey the provisional id to a caller-chosen one
	*pid = res.PeerID
	if res.Reply != nil {
		_ = c.TrySend(res.Reply)
	}
	return nil
}

func (ctl *Controller) reject(pid domain.PeerID, c *wsConn, err error) *protocol.Error {
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		perr = protocol.ErrValidation.WithMessage(err.Error())
	}
	log.Debug().Str("module", "signal").Str("peer", string(pid)).
		Str("reason", perr.Reason).Msg("rejected message")
	_ = c.TrySend(protocol.Encode(perr.Wire()))
	return perr
}
