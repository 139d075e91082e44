package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Load when no snapshot has been saved yet.
var ErrNotFound = errors.New("snapshot not found")

// Store persists snapshots.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	// Load returns the most recently saved snapshot, or ErrNotFound.
	Load(ctx context.Context) (*Snapshot, error)
	// History lists the saved snapshots, newest first.
	History(ctx context.Context) ([]Entry, error)
	Close() error
}

// Entry summarizes one saved snapshot.
type Entry struct {
	ID        string
	CreatedAt time.Time
	Root      string
}

// Open returns the store for path, chosen by extension: .yaml and .yml are
// YAML files, .db, .sqlite and .sqlite3 are SQLite databases keeping every
// saved snapshot, anything else is a JSON file.
func Open(path string) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return &FileStore{Path: path, Format: FormatYAML}, nil
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLite(path)
	default:
		return &FileStore{Path: path, Format: FormatJSON}, nil
	}
}

// Format is a file serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FileStore keeps a single snapshot in a JSON or YAML file. Save replaces
// the file atomically.
type FileStore struct {
	Path   string
	Format Format
}

func (s *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var data []byte
	var err error
	switch s.Format {
	case FormatYAML:
		data, err = yaml.Marshal(snap)
	default:
		data, err = json.MarshalIndent(snap, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	snap := &Snapshot{}
	switch s.Format {
	case FormatYAML:
		err = yaml.Unmarshal(data, snap)
	default:
		err = json.Unmarshal(data, snap)
	}
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.Path, err)
	}
	if snap.Relationships == nil {
		return nil, fmt.Errorf("decode snapshot %s: no relationships", s.Path)
	}
	return snap, nil
}

// History returns the stored snapshot, if any.
func (s *FileStore) History(ctx context.Context) ([]Entry, error) {
	snap, err := s.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []Entry{{ID: snap.ID, CreatedAt: snap.CreatedAt, Root: snap.Root}}, nil
}

func (s *FileStore) Close() error { return nil }
