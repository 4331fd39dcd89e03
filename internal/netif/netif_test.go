package netif

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/wanpull/wanpull/pkg/wanlib"
)

func stat(name string, up bool, addrs ...string) psnet.InterfaceStat {
	st := psnet.InterfaceStat{Name: name}
	if up {
		st.Flags = []string{"up", "broadcast", "multicast"}
	}
	for _, a := range addrs {
		st.Addrs = append(st.Addrs, psnet.InterfaceAddr{Addr: a})
	}
	return st
}

func fixedList(stats ...psnet.InterfaceStat) func(context.Context) ([]psnet.InterfaceStat, error) {
	return func(context.Context) ([]psnet.InterfaceStat, error) { return stats, nil }
}

func TestIsVirtual(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"eth0", false},
		{"Wi-Fi 2", false},
		{"wlp3s0", false},
		{"docker0", true},
		{"vEthernet (WSL)", true},
		{"VMware Network Adapter VMnet8", true},
		{"br-12ab34", true},
		{"virbr0", true},
		{"Bluetooth Network Connection", true},
	}
	for _, tt := range tests {
		if got := IsVirtual(tt.name); got != tt.want {
			t.Errorf("IsVirtual(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCandidatesFilter(t *testing.T) {
	d := New(Options{List: fixedList(
		stat("lo", true, "127.0.0.1/8", "::1/128"),
		stat("eth0", true, "192.168.1.10/24", "fe80::1/64"),
		stat("wlan0", true, "10.0.0.5/24"),
		stat("eth1", false, "192.168.2.10/24"),
		stat("docker0", true, "172.17.0.1/16"),
		stat("eth2", true, "169.254.10.2/16"),
	)})
	got, err := d.Candidates(context.Background())
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(got) != 2 || got[0].SourceIP != "192.168.1.10" || got[1].SourceIP != "10.0.0.5" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
	all, _ := d.ListInterfaces(context.Background())
	if len(all) != 6 {
		t.Fatalf("ListInterfaces returned %d ipv4 records, want 6", len(all))
	}
}

func TestListReachableProbesInParallelAndCaches(t *testing.T) {
	var calls atomic.Int32
	d := New(Options{
		List: fixedList(
			stat("eth0", true, "192.168.1.10/24"),
			stat("wlan0", true, "10.0.0.5/24"),
		),
		Probe: func(ctx context.Context, iface wanlib.Interface) bool {
			calls.Add(1)
			return iface.SourceIP == "10.0.0.5"
		},
	})
	for i := 0; i < 2; i++ {
		got, err := d.ListReachableInterfaces(context.Background())
		if err != nil {
			t.Fatalf("ListReachableInterfaces: %v", err)
		}
		if len(got) != 1 || got[0].Name != "wlan0" || !got[0].Reachable {
			t.Fatalf("unexpected reachable set: %+v", got)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("probe calls = %d, want 2 (second listing cached)", calls.Load())
	}
	d.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := d.ListReachableInterfaces(context.Background()); err != nil {
		t.Fatalf("ListReachableInterfaces: %v", err)
	}
	if calls.Load() != 4 {
		t.Fatalf("expired cache not re-probed: %d calls", calls.Load())
	}
}

func TestListErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	d := New(Options{List: func(context.Context) ([]psnet.InterfaceStat, error) { return nil, boom }})
	if _, err := d.ListReachableInterfaces(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
}

func TestHTTPProbeUsesBoundClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ip" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"origin":"127.0.0.1"}`))
	}))
	defer srv.Close()

	d := New(Options{ProbeURL: srv.URL + "/ip", ProbeTimeout: 2 * time.Second})
	if !d.httpProbe(context.Background(), wanlib.Interface{Name: "lo", SourceIP: "127.0.0.1"}) {
		t.Fatal("probe over loopback failed")
	}
	d.opts.ProbeURL = srv.URL + "/missing"
	if d.httpProbe(context.Background(), wanlib.Interface{Name: "lo", SourceIP: "127.0.0.1"}) {
		t.Fatal("non-200 probe reported reachable")
	}
}
