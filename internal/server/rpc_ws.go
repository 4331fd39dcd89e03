package server

import (
	"context"
	"net/http"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
)

// wsChannel adapts a coder/websocket.Conn to the jrpc2 channel.Channel
// interface, one per connection.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
	// ready, when set, holds off the first read until it is closed.
	ready chan struct{}
}

func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

func (c *wsChannel) Recv() ([]byte, error) {
	if c.ready != nil {
		select {
		case <-c.ready:
		case <-c.ctx.Done():
			return nil, c.ctx.Err()
		}
	}
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

// Close shuts the connection down with a normal closure status.
func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}

// serveWS upgrades the request and runs a push-enabled jrpc2 server on it
// until the peer goes away. The server joins the notifier's broadcast set
// for its lifetime, before the first request is read, so any reply the
// client sees implies it will get pushes.
func (rs *RPCServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, nil)
	if err != nil {
		rs.log.Warning("websocket accept: %v", err)
		return
	}
	conn.SetReadLimit(1 << 20)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	srv := jrpc2.NewServer(rs.methods, &jrpc2.ServerOptions{AllowPush: true})
	ch := &wsChannel{conn: conn, ctx: ctx, ready: make(chan struct{})}
	srv.Start(ch)
	if rs.notifier != nil {
		rs.notifier.Register(srv)
		defer rs.notifier.Unregister(srv)
	}
	close(ch.ready)
	if err := srv.Wait(); err != nil && ctx.Err() == nil {
		rs.log.Info("websocket client left: %v", err)
	}
}
