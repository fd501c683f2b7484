package store

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/friggog/tree-gen/internal/mesh"
)

const schema = `
CREATE TABLE IF NOT EXISTS meshes (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	seed TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_meshes_created ON meshes(created_at);
`

// SQLite persists gob-encoded descriptors in a single database file.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	// A single connection serialises writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(id uuid.UUID) (*mesh.Descriptor, bool, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM meshes WHERE id = ?`, id.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load mesh %s: %w", id, err)
	}
	d, err := decode(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode mesh %s: %w", id, err)
	}
	return d, true, nil
}

func (s *SQLite) Save(d *mesh.Descriptor) error {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(d); err != nil {
		return fmt.Errorf("encode mesh: %w", err)
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO meshes (id, name, seed, created_at, payload) VALUES (?, ?, ?, ?, ?)`,
		d.ID.String(), d.Name, strconv.FormatUint(d.Seed, 10), time.Now().UnixNano(), payload.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("save mesh %s: %w", d.ID, err)
	}
	return nil
}

func (s *SQLite) Delete(id uuid.UUID) error {
	if _, err := s.db.Exec(`DELETE FROM meshes WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete mesh %s: %w", id, err)
	}
	return nil
}

// ForEach visits descriptors in save order. Rows are read before fn runs so
// fn may modify the store.
func (s *SQLite) ForEach(fn func(d *mesh.Descriptor) bool) error {
	rows, err := s.db.Query(`SELECT id, payload FROM meshes ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("list meshes: %w", err)
	}
	var payloads [][]byte
	var ids []string
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			rows.Close()
			return fmt.Errorf("scan mesh: %w", err)
		}
		ids = append(ids, id)
		payloads = append(payloads, payload)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("list meshes: %w", err)
	}
	rows.Close()

	for i, payload := range payloads {
		d, err := decode(payload)
		if err != nil {
			return fmt.Errorf("decode mesh %s: %w", ids[i], err)
		}
		if !fn(d) {
			break
		}
	}
	return nil
}

func (s *SQLite) Len() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM meshes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count meshes: %w", err)
	}
	return n, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func decode(payload []byte) (*mesh.Descriptor, error) {
	var d mesh.Descriptor
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&d); err != nil {
		return nil, err
	}
	return &d, nil
}
