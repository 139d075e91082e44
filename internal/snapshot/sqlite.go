package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/phobologic/classmap/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	root TEXT NOT NULL,
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tuples (
	snapshot_id TEXT NOT NULL,
	category TEXT NOT NULL,
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	member TEXT NOT NULL,
	FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_tuples_snapshot ON tuples(snapshot_id);
`

// SQLiteStore keeps every saved snapshot in a SQLite database. Load returns
// the newest one.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize snapshot schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, created_at, root, version) VALUES (?, ?, ?, ?)`,
		snap.ID, snap.CreatedAt.UnixNano(), snap.Root, snap.Version)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tuples (snapshot_id, category, source, target, member) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare tuple insert: %w", err)
	}
	defer stmt.Close()

	for category, tuples := range snap.Relationships {
		for _, t := range tuples {
			if _, err := stmt.ExecContext(ctx, snap.ID, string(category), t.Source, t.Target, t.Member); err != nil {
				return fmt.Errorf("insert tuple: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, root, version FROM snapshots ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	).Scan(&snap.ID, &created, &snap.Root, &snap.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	snap.CreatedAt = time.Unix(0, created).UTC()

	snap.Relationships = make(map[model.Category][]Tuple, len(model.Categories))
	for _, c := range model.Categories {
		snap.Relationships[c] = []Tuple{}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, source, target, member FROM tuples WHERE snapshot_id = ? ORDER BY category, source, target, member`,
		snap.ID)
	if err != nil {
		return nil, fmt.Errorf("query tuples: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var t Tuple
		if err := rows.Scan(&category, &t.Source, &t.Target, &t.Member); err != nil {
			return nil, fmt.Errorf("scan tuple: %w", err)
		}
		c := model.Category(category)
		snap.Relationships[c] = append(snap.Relationships[c], t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read tuples: %w", err)
	}
	return snap, nil
}

// History returns every saved snapshot, newest first.
func (s *SQLiteStore) History(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, root FROM snapshots ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &created, &e.Root); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
