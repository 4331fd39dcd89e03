package cmd

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/fatih/color"
	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/wanpull/wanpull/internal/config"
	"github.com/wanpull/wanpull/internal/daemon"
	"github.com/wanpull/wanpull/internal/netif"
	"github.com/wanpull/wanpull/pkg/logger"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

const (
	testSecret = "cmd-secret"
	wanIP      = "192.0.2.10"
)

func init() {
	color.NoColor = true
}

// startDaemon runs an in-process daemon with a single fake uplink and
// returns the --addr/--secret arguments that reach it.
func startDaemon(t *testing.T) []string {
	t.Helper()
	cfg := &config.Config{
		ConfigDir:   t.TempDir(),
		ListenAddr:  "127.0.0.1:0",
		RPCSecret:   testSecret,
		DownloadDir: t.TempDir(),
		ChunkSize:   4096,
		BackupKeep:  1,
	}
	r := daemon.New(cfg, daemon.BuildInfo{Version: "test"}, &daemon.Dependencies{
		Log: logger.NewMockLogger(),
		Interfaces: netif.New(netif.Options{
			List: func(context.Context) ([]psnet.InterfaceStat, error) {
				return []psnet.InterfaceStat{
					{Name: "eth0", Flags: []string{"up"}, Addrs: []psnet.InterfaceAddr{{Addr: wanIP + "/24"}}},
				}, nil
			},
			Probe: func(context.Context, wanlib.Interface) bool { return true },
		}),
		ClientFactory: func(wanlib.Interface) (*http.Client, error) {
			return &http.Client{}, nil
		},
	})
	errc := make(chan error, 1)
	go func() { errc <- r.Start(context.Background()) }()
	deadline := time.Now().Add(5 * time.Second)
	for !r.IsRunning() {
		select {
		case err := <-errc:
			t.Fatalf("daemon exited early: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("daemon did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Cleanup(func() { _ = r.Shutdown() })
	return []string{"--addr", r.Addr().String(), "--secret", testSecret}
}

// run executes "wanpull <command...> <conn flags> <args...>".
func run(t *testing.T, command []string, conn []string, args ...string) string {
	t.Helper()
	argv := append([]string{"wanpull"}, command...)
	argv = append(argv, conn...)
	argv = append(argv, args...)
	var err error
	out, _ := captureOutput(func() {
		err = Execute(argv, BuildArgs{Version: "1.0", BuildType: "test", Commit: "abc"})
	})
	if err != nil {
		t.Fatalf("Execute(%v): %v", argv, err)
	}
	return out
}

var queuedLine = regexp.MustCompile(`queued (\S+) via`)

func TestVersionCommand(t *testing.T) {
	out := run(t, []string{"version"}, nil)
	assertContainsAll(t, out, []string{"wanpull 1.0-test", "=abc"})
}

func TestAddRequiresInterface(t *testing.T) {
	out := run(t, []string{"add"}, nil, "http://example.invalid/f")
	assertContains(t, out, "no interface provided")
}

func TestAddRejectsBadRate(t *testing.T) {
	out := run(t, []string{"add"}, []string{"-i", wanIP, "-r", "fast"}, "http://example.invalid/f")
	assertContains(t, out, "fast")
}

func TestCommandsAgainstDaemon(t *testing.T) {
	conn := startDaemon(t)

	out := run(t, []string{"interfaces"}, conn)
	assertContainsAll(t, out, []string{"eth0", wanIP})

	out = run(t, []string{"list"}, conn)
	assertContains(t, out, "no transfers")

	out = run(t, []string{"add"}, append([]string{"-i", wanIP, "-r", "1MB"}, conn...), "http://example.invalid/a.iso")
	m := queuedLine.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("add output: %s", out)
	}
	id := m[1]
	assertContains(t, out, "(eth0)")

	out = run(t, []string{"list"}, conn)
	assertContainsAll(t, out, []string{"queued", "eth0/" + wanIP})

	out = run(t, []string{"status"}, conn, id)
	assertContainsAll(t, out, []string{"http://example.invalid/a.iso", "queued"})

	out = run(t, []string{"queue"}, conn)
	assertContains(t, out, "0. "+id)

	out = run(t, []string{"queue", "move"}, conn, "3", "0")
	assertErrorFormat(t, out, "queue move", "move")

	out = run(t, []string{"pause"}, conn, "missing")
	assertErrorFormat(t, out, "pause", "pause")

	out = run(t, []string{"save"}, conn)
	assertContains(t, out, "1 queued")

	out = run(t, []string{"stats"}, conn)
	assertContainsAll(t, out, []string{"last 1m0s", "INTERFACE", "total", "0 B/s"})

	out = run(t, []string{"queue", "remove"}, conn, id)
	assertContains(t, out, id)
	out = run(t, []string{"queue"}, conn)
	assertContains(t, out, "queue is empty")
}

func TestTriggerAndHistoryCommands(t *testing.T) {
	conn := startDaemon(t)

	out := run(t, []string{"trigger", "add"}, conn, "pause_all", "0", "3", "*", "*", "*")
	assertContains(t, out, "pause_all next at")

	out = run(t, []string{"trigger", "list"}, conn)
	assertContains(t, out, "0 3 * * *")

	out = run(t, []string{"trigger", "add"}, conn, "explode", "0", "3", "*", "*", "*")
	assertErrorFormat(t, out, "trigger add", "add")

	out = run(t, []string{"history"}, conn)
	assertContains(t, out, "history is empty")
}

func TestClientReportsUnreachableDaemon(t *testing.T) {
	out := run(t, []string{"list"}, []string{"--addr", "127.0.0.1:1"})
	assertErrorFormat(t, out, "list", "get_list")
}
