// Package state persists the engine's queue and admitted transfers so they
// survive a restart. The on-disk document is JSON; every save keeps a
// timestamped copy of the previous file in a backup directory.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/wanpull/wanpull/pkg/logger"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

const (
	// DocumentVersion is written into every saved document.
	DocumentVersion = 1

	DEF_BACKUP_KEEP = 10

	backupPrefix = "state_"
	backupLayout = "20060102_150405.000000000"
)

// InterfaceRef names the interface an entry is bound to.
type InterfaceRef struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// Entry is one persisted transfer.
type Entry struct {
	ID           string       `json:"id,omitempty"`
	URL          string       `json:"url"`
	Interface    InterfaceRef `json:"interface"`
	Destination  string       `json:"destination"`
	RateLimit    int64        `json:"rate_limit,omitempty"`
	ResumeOffset int64        `json:"resume_offset,omitempty"`
	TotalBytes   int64        `json:"total_bytes,omitempty"`
}

// Document is the state file layout.
type Document struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Queued    []Entry   `json:"queued_downloads"`
	Active    []Entry   `json:"active_downloads"`
}

func entryFrom(req wanlib.TransferRequest) Entry {
	return Entry{
		ID:           string(req.ID),
		URL:          req.URL,
		Interface:    InterfaceRef{Name: req.InterfaceName, IP: req.InterfaceID},
		Destination:  req.DestinationPath,
		RateLimit:    req.RateLimit,
		ResumeOffset: req.ResumeOffset,
		TotalBytes:   req.TotalBytes,
	}
}

func (e Entry) request() wanlib.TransferRequest {
	return wanlib.TransferRequest{
		ID:              wanlib.TransferID(e.ID),
		URL:             e.URL,
		InterfaceName:   e.Interface.Name,
		InterfaceID:     e.Interface.IP,
		DestinationPath: e.Destination,
		RateLimit:       e.RateLimit,
		ResumeOffset:    e.ResumeOffset,
		TotalBytes:      e.TotalBytes,
	}
}

// NewDocument converts an engine snapshot.
func NewDocument(snap wanlib.Snapshot, now time.Time) Document {
	doc := Document{
		Version:   DocumentVersion,
		Timestamp: now,
		Queued:    make([]Entry, 0, len(snap.Queued)),
		Active:    make([]Entry, 0, len(snap.Active)),
	}
	for _, r := range snap.Queued {
		doc.Queued = append(doc.Queued, entryFrom(r))
	}
	for _, r := range snap.Active {
		doc.Active = append(doc.Active, entryFrom(r))
	}
	return doc
}

// Snapshot converts the document back, dropping entries without a url or
// interface address.
func (d Document) Snapshot() wanlib.Snapshot {
	var snap wanlib.Snapshot
	for _, e := range d.Active {
		if e.URL != "" && e.Interface.IP != "" {
			snap.Active = append(snap.Active, e.request())
		}
	}
	for _, e := range d.Queued {
		if e.URL != "" && e.Interface.IP != "" {
			snap.Queued = append(snap.Queued, e.request())
		}
	}
	return snap
}

// Options configures a Store.
type Options struct {
	Fs        afero.Fs
	Path      string
	BackupDir string
	// Keep is the number of backups retained; zero means DEF_BACKUP_KEEP.
	Keep int
	Log  logger.Logger
}

// Store reads and writes the state document.
type Store struct {
	fs        afero.Fs
	path      string
	backupDir string
	keep      int
	log       logger.Logger
	now       func() time.Time
}

func NewStore(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.New("state: empty path")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.BackupDir == "" {
		opts.BackupDir = filepath.Join(filepath.Dir(opts.Path), "backups")
	}
	if opts.Keep <= 0 {
		opts.Keep = DEF_BACKUP_KEEP
	}
	if opts.Log == nil {
		opts.Log = logger.NewNopLogger()
	}
	if err := opts.Fs.MkdirAll(opts.BackupDir, 0o755); err != nil {
		return nil, fmt.Errorf("state: create backup dir: %w", err)
	}
	return &Store{
		fs:        opts.Fs,
		path:      opts.Path,
		backupDir: opts.BackupDir,
		keep:      opts.Keep,
		log:       opts.Log,
		now:       time.Now,
	}, nil
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// Save writes snap atomically, backing up the previous document first.
func (s *Store) Save(snap wanlib.Snapshot) error {
	now := s.now()
	b, err := json.MarshalIndent(NewDocument(snap, now), "", "  ")
	if err != nil {
		return err
	}
	if ok, _ := afero.Exists(s.fs, s.path); ok {
		if err := s.backup(now); err != nil {
			s.log.Warning("state: backup failed: %v", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0o644); err != nil {
		return fmt.Errorf("state: write: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("state: rename: %w", err)
	}
	return nil
}

// Load returns the persisted snapshot. A missing file is an empty snapshot;
// a corrupt one falls back to the newest readable backup.
func (s *Store) Load() (wanlib.Snapshot, error) {
	doc, err := s.read(s.path)
	if err == nil {
		return doc.Snapshot(), nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return wanlib.Snapshot{}, nil
	}
	s.log.Error("state: %s unreadable: %v", s.path, err)
	backups, berr := s.backups()
	if berr != nil {
		return wanlib.Snapshot{}, err
	}
	for i := len(backups) - 1; i >= 0; i-- {
		p := filepath.Join(s.backupDir, backups[i])
		doc, berr := s.read(p)
		if berr != nil {
			continue
		}
		s.log.Warning("state: restored from backup %s", backups[i])
		return doc.Snapshot(), nil
	}
	return wanlib.Snapshot{}, err
}

// Clear removes the state file. Backups are kept.
func (s *Store) Clear() error {
	err := s.fs.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) read(path string) (Document, error) {
	var doc Document
	b, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return doc, fmt.Errorf("state: decode %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

func (s *Store) backup(now time.Time) error {
	b, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return err
	}
	name := backupPrefix + now.Format(backupLayout) + ".json"
	if err := afero.WriteFile(s.fs, filepath.Join(s.backupDir, name), b, 0o644); err != nil {
		return err
	}
	return s.prune()
}

// backups lists backup file names oldest first.
func (s *Store) backups() ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.backupDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, fi := range infos {
		if !fi.IsDir() && strings.HasPrefix(fi.Name(), backupPrefix) {
			names = append(names, fi.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) prune() error {
	names, err := s.backups()
	if err != nil {
		return err
	}
	for len(names) > s.keep {
		if err := s.fs.Remove(filepath.Join(s.backupDir, names[0])); err != nil {
			return err
		}
		names = names[1:]
	}
	return nil
}
