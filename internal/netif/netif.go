// Package netif discovers the local IPv4 interfaces a transfer can be bound
// to and checks which of them actually reach the internet.
package netif

import (
	"context"
	"io"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	"golang.org/x/sync/errgroup"

	"github.com/wanpull/wanpull/pkg/logger"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

const (
	DEF_PROBE_URL     = "http://httpbin.org/ip"
	DEF_PROBE_TIMEOUT = 3 * time.Second
	DEF_PROBE_TTL     = 30 * time.Second
)

// virtualPatterns are case-insensitive name fragments of adapters that
// never carry a real uplink.
var virtualPatterns = []string{
	"vethernet", "vmware", "vmnet", "virtualbox",
	"loopback", "tap", "openvpn", "hyper-v",
	"bluetooth", "docker", "veth", "br-", "virbr",
}

// ProbeFunc reports whether iface can fetch url.
type ProbeFunc func(ctx context.Context, iface wanlib.Interface) bool

// Options configures a Detector. Zero values take the package defaults.
type Options struct {
	ProbeURL     string
	ProbeTimeout time.Duration
	// ProbeTTL bounds how long a reachability result is reused.
	ProbeTTL time.Duration
	Client   *wanlib.ClientOptions
	Log      logger.Logger

	// List and Probe replace the system enumeration and the http probe.
	List  func(ctx context.Context) ([]psnet.InterfaceStat, error)
	Probe ProbeFunc
}

type probeResult struct {
	ok bool
	at time.Time
}

// Detector enumerates interfaces and caches reachability for ProbeTTL.
type Detector struct {
	opts Options

	mu    sync.Mutex
	cache map[string]probeResult
	now   func() time.Time
}

func New(opts Options) *Detector {
	if opts.ProbeURL == "" {
		opts.ProbeURL = DEF_PROBE_URL
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DEF_PROBE_TIMEOUT
	}
	if opts.ProbeTTL <= 0 {
		opts.ProbeTTL = DEF_PROBE_TTL
	}
	if opts.Log == nil {
		opts.Log = logger.NewNopLogger()
	}
	if opts.List == nil {
		opts.List = systemInterfaces
	}
	d := &Detector{
		opts:  opts,
		cache: make(map[string]probeResult),
		now:   time.Now,
	}
	if d.opts.Probe == nil {
		d.opts.Probe = d.httpProbe
	}
	return d
}

// ListInterfaces returns every interface holding an IPv4 address, one record
// per address. Up reflects the link flag; Reachable is not probed.
func (d *Detector) ListInterfaces(ctx context.Context) ([]wanlib.Interface, error) {
	stats, err := d.opts.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []wanlib.Interface
	for _, st := range stats {
		up := slices.Contains(st.Flags, "up")
		for _, a := range st.Addrs {
			ip := ipv4(a.Addr)
			if ip == "" {
				continue
			}
			out = append(out, wanlib.Interface{Name: st.Name, SourceIP: ip, Up: up})
		}
	}
	return out, nil
}

// Candidates filters ListInterfaces down to connected physical adapters.
func (d *Detector) Candidates(ctx context.Context) ([]wanlib.Interface, error) {
	all, err := d.ListInterfaces(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, iface := range all {
		if iface.Up && !IsVirtual(iface.Name) && !skipAddress(iface.SourceIP) {
			out = append(out, iface)
		}
	}
	return out, nil
}

// ListReachableInterfaces probes every candidate in parallel and returns
// those that answered, in enumeration order.
func (d *Detector) ListReachableInterfaces(ctx context.Context) ([]wanlib.Interface, error) {
	cands, err := d.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	ok := make([]bool, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	for i, iface := range cands {
		g.Go(func() error {
			ok[i] = d.reachable(gctx, iface)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []wanlib.Interface
	for i, iface := range cands {
		if ok[i] {
			iface.Reachable = true
			out = append(out, iface)
		}
	}
	return out, nil
}

func (d *Detector) reachable(ctx context.Context, iface wanlib.Interface) bool {
	now := d.now()
	d.mu.Lock()
	r, hit := d.cache[iface.SourceIP]
	d.mu.Unlock()
	if hit && now.Sub(r.at) < d.opts.ProbeTTL {
		return r.ok
	}
	ok := d.opts.Probe(ctx, iface)
	if ctx.Err() != nil {
		return ok
	}
	d.mu.Lock()
	d.cache[iface.SourceIP] = probeResult{ok: ok, at: now}
	d.mu.Unlock()
	if !ok {
		d.opts.Log.Warning("interface %s (%s) has no internet access", iface.Name, iface.SourceIP)
	}
	return ok
}

// Forget drops cached probe results.
func (d *Detector) Forget() {
	d.mu.Lock()
	clear(d.cache)
	d.mu.Unlock()
}

func (d *Detector) httpProbe(ctx context.Context, iface wanlib.Interface) bool {
	opts := wanlib.ClientOptions{}
	if d.opts.Client != nil {
		opts = *d.opts.Client
	}
	opts.ConnectTimeout = d.opts.ProbeTimeout
	opts.ReadTimeout = d.opts.ProbeTimeout
	client, err := wanlib.NewBoundClient(iface, &opts)
	if err != nil {
		d.opts.Log.Error("probe %s: %v", iface.SourceIP, err)
		return false
	}
	defer client.CloseIdleConnections()
	ctx, cancel := context.WithTimeout(ctx, d.opts.ProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.opts.ProbeURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", wanlib.DEF_USER_AGENT)
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode == http.StatusOK
}

func systemInterfaces(ctx context.Context) ([]psnet.InterfaceStat, error) {
	return psnet.InterfacesWithContext(ctx)
}

// IsVirtual reports whether name looks like a virtual or tunnel adapter.
func IsVirtual(name string) bool {
	n := strings.ToLower(name)
	for _, p := range virtualPatterns {
		if strings.Contains(n, p) {
			return true
		}
	}
	return false
}

func skipAddress(ip string) bool {
	return strings.HasPrefix(ip, "127.") || strings.HasPrefix(ip, "169.254.")
}

// ipv4 extracts the dotted address from a gopsutil "a.b.c.d/nn" entry.
func ipv4(addr string) string {
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		addr = addr[:i]
	}
	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() == nil {
		return ""
	}
	return ip.To4().String()
}
