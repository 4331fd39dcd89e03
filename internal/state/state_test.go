package state

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/wanpull/wanpull/pkg/logger"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

func newTestStore(t *testing.T, keep int) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := NewStore(Options{Fs: fs, Path: "/cfg/download_state.json", Keep: keep, Log: logger.NewMockLogger()})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return s, fs
}

func sampleSnapshot() wanlib.Snapshot {
	return wanlib.Snapshot{
		Active: []wanlib.TransferRequest{{
			ID: "a1", URL: "http://x/a", InterfaceName: "eth0", InterfaceID: "10.0.0.2",
			DestinationPath: "/dl/a", RateLimit: 1024, ResumeOffset: 4096, TotalBytes: 10000,
		}},
		Queued: []wanlib.TransferRequest{
			{ID: "q1", URL: "http://x/b", InterfaceName: "wlan0", InterfaceID: "10.0.1.2", DestinationPath: "/dl/"},
			{ID: "q2", URL: "http://x/c", InterfaceName: "eth0", InterfaceID: "10.0.0.2", DestinationPath: "/dl/c"},
		},
	}
}

func TestSaveLoad(t *testing.T) {
	s, _ := newTestStore(t, 3)
	want := sampleSnapshot()
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Active) != 1 || got.Active[0] != want.Active[0] {
		t.Fatalf("active mismatch: %+v", got.Active)
	}
	if len(got.Queued) != 2 || got.Queued[0].ID != "q1" || got.Queued[1].ID != "q2" {
		t.Fatalf("queue order not preserved: %+v", got.Queued)
	}
}

func TestLoadMissingIsEmpty(t *testing.T) {
	s, _ := newTestStore(t, 3)
	snap, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Active)+len(snap.Queued) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestMissingResumeOffsetDefaultsToZero(t *testing.T) {
	s, fs := newTestStore(t, 3)
	doc := `{"version":1,"queued_downloads":[{"url":"http://x/a","interface":{"name":"eth0","ip":"10.0.0.2"},"destination":"/dl/a"}],"active_downloads":[]}`
	if err := afero.WriteFile(fs, s.Path(), []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	snap, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Queued) != 1 || snap.Queued[0].ResumeOffset != 0 || snap.Queued[0].InterfaceID != "10.0.0.2" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestInvalidEntriesDropped(t *testing.T) {
	doc := Document{
		Queued: []Entry{{URL: "http://x/a"}, {URL: "http://x/b", Interface: InterfaceRef{IP: "10.0.0.2"}}},
		Active: []Entry{{Interface: InterfaceRef{IP: "10.0.0.2"}}},
	}
	snap := doc.Snapshot()
	if len(snap.Queued) != 1 || len(snap.Active) != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestBackupsRotate(t *testing.T) {
	s, fs := newTestStore(t, 3)
	for i := 0; i < 6; i++ {
		if err := s.Save(sampleSnapshot()); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}
	names, err := s.backups()
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("kept %d backups, want 3: %v", len(names), names)
	}
	if ok, _ := afero.Exists(fs, s.Path()+".tmp"); ok {
		t.Fatal("temporary file left behind")
	}
}

func TestCorruptFallsBackToBackup(t *testing.T) {
	s, fs := newTestStore(t, 5)
	first := sampleSnapshot()
	if err := s.Save(first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second := sampleSnapshot()
	second.Queued = second.Queued[:1]
	if err := s.Save(second); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := afero.WriteFile(fs, s.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	snap, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// the only backup holds the first save
	if len(snap.Queued) != 2 {
		t.Fatalf("expected backup contents, got %+v", snap)
	}
}

func TestCorruptWithoutBackupFails(t *testing.T) {
	s, fs := newTestStore(t, 5)
	if err := afero.WriteFile(fs, s.Path(), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := s.Load(); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDocumentLayout(t *testing.T) {
	doc := NewDocument(sampleSnapshot(), time.Unix(0, 0).UTC())
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, key := range []string{`"version":1`, `"queued_downloads"`, `"active_downloads"`, `"resume_offset":4096`, `"interface":{"name":"eth0","ip":"10.0.0.2"}`} {
		if !strings.Contains(string(b), key) {
			t.Fatalf("missing %s in %s", key, b)
		}
	}
}

func TestClear(t *testing.T) {
	s, fs := newTestStore(t, 3)
	if err := s.Save(sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
	if ok, _ := afero.Exists(fs, filepath.Join("/cfg", "download_state.json")); ok {
		t.Fatal("state file still present")
	}
}
