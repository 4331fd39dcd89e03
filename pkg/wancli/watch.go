package wancli

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"

	"github.com/wanpull/wanpull/common"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

// NotifyHandlers receive the daemon pushes. Nil fields are skipped.
type NotifyHandlers struct {
	Progress func(wanlib.Progress)
	Terminal func(wanlib.TerminalEvent)
	State    func(wanlib.StateChange)
	// Ready is called once the stream is established.
	Ready func()
}

func (h *NotifyHandlers) dispatch(req *jrpc2.Request) {
	switch common.NotifyType(req.Method()) {
	case common.NotifyProgress:
		var p wanlib.Progress
		if h.Progress != nil && req.UnmarshalParams(&p) == nil {
			h.Progress(p)
		}
	case common.NotifyTerminal:
		var ev wanlib.TerminalEvent
		if h.Terminal != nil && req.UnmarshalParams(&ev) == nil {
			h.Terminal(ev)
		}
	case common.NotifyState:
		var ch wanlib.StateChange
		if h.State != nil && req.UnmarshalParams(&ch) == nil {
			h.State(ch)
		}
	}
}

// wsChannel carries jrpc2 frames as websocket text messages.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
}

func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}

func (c *Client) wsURL() string {
	return "ws" + strings.TrimPrefix(c.base, "http") + common.WebSocketPath
}

// Watch streams engine events to h until ctx is done, which returns nil,
// or the daemon goes away, which returns ErrDisconnected.
func (c *Client) Watch(ctx context.Context, h NotifyHandlers) error {
	opts := &cws.DialOptions{}
	if c.secret != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + c.secret}}
	}
	conn, _, err := cws.Dial(ctx, c.wsURL(), opts)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.wsURL(), err)
	}
	conn.SetReadLimit(1 << 20)

	stopped := make(chan error, 1)
	cli := jrpc2.NewClient(&wsChannel{conn: conn, ctx: ctx}, &jrpc2.ClientOptions{
		OnNotify: h.dispatch,
		OnStop: func(_ *jrpc2.Client, err error) {
			stopped <- err
		},
	})
	defer cli.Close()
	// a reply means the daemon has subscribed this stream
	var v common.VersionResponse
	if err := cli.CallResult(ctx, common.MethodVersion, nil, &v); err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	if h.Ready != nil {
		h.Ready()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-stopped:
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDisconnected, err)
		}
		return ErrDisconnected
	}
}
