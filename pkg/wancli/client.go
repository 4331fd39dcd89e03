// Package wancli is the JSON-RPC client of the wanpull daemon. Calls go over
// HTTP POST; Watch streams engine events over the websocket endpoint.
package wancli

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/wanpull/wanpull/common"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	base   string
	secret string
	http   *http.Client
	rpc    *jrpc2.Client
}

// NewClient returns a client for the daemon at addr, either host:port or
// an http(s) URL. An empty secret sends no Authorization header.
func NewClient(addr, secret string) *Client {
	base := baseURL(addr)
	hc := &http.Client{
		Timeout:   defaultTimeout,
		Transport: &bearerTransport{secret: secret, next: http.DefaultTransport},
	}
	ch := jhttp.NewChannel(base+common.RPCPath, &jhttp.ChannelOptions{Client: hc})
	return &Client{
		base:   base,
		secret: secret,
		http:   hc,
		rpc:    jrpc2.NewClient(ch, nil),
	}
}

func baseURL(addr string) string {
	addr = strings.TrimRight(addr, "/")
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}

// Close releases the underlying RPC client.
func (c *Client) Close() error {
	return c.rpc.Close()
}

func invoke[T any](ctx context.Context, c *Client, method string, params any) (*T, error) {
	var out T
	if err := c.rpc.CallResult(ctx, method, params, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return &out, nil
}

// bearerTransport adds the daemon secret to every request.
type bearerTransport struct {
	secret string
	next   http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.secret == "" {
		return t.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.secret)
	return t.next.RoundTrip(req)
}
