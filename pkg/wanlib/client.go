package wanlib

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

const DefaultMaxRedirects = 10

var (
	ErrInvalidProxyURL         = errors.New("invalid proxy url")
	ErrUnsupportedProxyScheme  = errors.New("unsupported proxy scheme")
	ErrTooManyRedirects        = errors.New("redirect loop detected")
	ErrCrossProtocolRedirect   = errors.New("cross-protocol redirect not supported")
	errDeviceBindingNotAllowed = errors.New("binding to a device is only supported on linux")
)

// ClientOptions configures the http client of a transfer.
// Zero timeouts fall back to the defaults; they are never unbounded.
type ClientOptions struct {
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	InsecureSkipVerify bool
	// ProxyURL accepts http, https and socks5 urls.
	ProxyURL string
	// BindDevice additionally pins the socket to the interface by name.
	BindDevice bool
}

func (o *ClientOptions) connectTimeout() time.Duration {
	if o == nil || o.ConnectTimeout <= 0 {
		return DEF_CONNECT_TIMEOUT
	}
	return o.ConnectTimeout
}

func (o *ClientOptions) readTimeout() time.Duration {
	if o == nil || o.ReadTimeout <= 0 {
		return DEF_READ_TIMEOUT
	}
	return o.ReadTimeout
}

// ClientFactory builds the http client used for one interface.
type ClientFactory func(iface Interface) (*http.Client, error)

// BoundClientFactory returns a ClientFactory calling NewBoundClient with opts.
func BoundClientFactory(opts *ClientOptions) ClientFactory {
	return func(iface Interface) (*http.Client, error) {
		return NewBoundClient(iface, opts)
	}
}

// NewBoundClient returns an http client whose connections originate from
// iface.SourceIP. Every read on the underlying connection is bounded by the
// read timeout.
func NewBoundClient(iface Interface, opts *ClientOptions) (*http.Client, error) {
	ip := net.ParseIP(iface.SourceIP)
	if ip == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSourceIP, iface.SourceIP)
	}
	if opts == nil {
		opts = &ClientOptions{}
	}
	dialer := &net.Dialer{
		LocalAddr: &net.TCPAddr{IP: ip},
		Timeout:   opts.connectTimeout(),
		KeepAlive: 30 * time.Second,
	}
	if opts.BindDevice && iface.Name != "" {
		ctl, err := bindToDevice(iface.Name)
		if err != nil {
			return nil, err
		}
		dialer.Control = ctl
	}

	readTimeout := opts.readTimeout()
	var dial func(ctx context.Context, network, addr string) (net.Conn, error) = dialer.DialContext

	transport := &http.Transport{
		TLSHandshakeTimeout:   opts.connectTimeout(),
		ResponseHeaderTimeout: readTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   2,
	}
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if opts.ProxyURL != "" {
		parsed, err := parseProxyURL(opts.ProxyURL)
		if err != nil {
			return nil, err
		}
		if parsed.Scheme == "socks5" {
			var auth *proxy.Auth
			if parsed.User != nil {
				pass, _ := parsed.User.Password()
				auth = &proxy.Auth{User: parsed.User.Username(), Password: pass}
			}
			// the proxy is reached through the bound dialer so the
			// source ip still applies to the first hop
			socks, err := proxy.SOCKS5("tcp", parsed.Host, auth, dialer)
			if err != nil {
				return nil, err
			}
			cd, ok := socks.(proxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("%w: socks5 dialer lacks context support", ErrInvalidProxyURL)
			}
			dial = cd.DialContext
		} else {
			transport.Proxy = http.ProxyURL(parsed)
		}
	}
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &deadlineConn{Conn: conn, readTimeout: readTimeout}, nil
	}
	return &http.Client{
		Transport:     transport,
		CheckRedirect: RedirectPolicy(DefaultMaxRedirects),
	}, nil
}

func parseProxyURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyURL, raw)
	}
	switch parsed.Scheme {
	case "http", "https", "socks5":
		return parsed, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedProxyScheme, parsed.Scheme)
}

// deadlineConn refreshes the read deadline before every read so a stalled
// peer surfaces as a timeout instead of blocking forever.
type deadlineConn struct {
	net.Conn
	readTimeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

// RedirectPolicy limits redirect hops, rejects redirects leaving http(s)
// and drops custom headers when the redirect changes host.
func RedirectPolicy(maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: exceeded %d hops (last url: %s)",
				ErrTooManyRedirects, maxRedirects, via[len(via)-1].URL)
		}
		if len(via) == 0 {
			return nil
		}
		prev := via[len(via)-1]
		if !isHTTPScheme(req.URL.Scheme) {
			return fmt.Errorf("%w: %s -> %s", ErrCrossProtocolRedirect, prev.URL.Scheme, req.URL.Scheme)
		}
		if prev.URL.Host != req.URL.Host {
			for key := range req.Header {
				if !redirectSafeHeaders[http.CanonicalHeaderKey(key)] {
					req.Header.Del(key)
				}
			}
		}
		return nil
	}
}

var redirectSafeHeaders = map[string]bool{
	"User-Agent":      true,
	"Accept":          true,
	"Accept-Language": true,
	"Accept-Encoding": true,
	"Range":           true,
}

func isHTTPScheme(scheme string) bool {
	return scheme == "http" || scheme == "https"
}
