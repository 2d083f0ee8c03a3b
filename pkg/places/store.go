// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

// Package places persists named world coordinates ("the base", "my farm")
// so the planner can resolve verbal destinations into concrete targets.
package places

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const placesTable = "places"

// Place is one named location.
type Place struct {
	Name      string
	X, Y, Z   int
	SavedBy   string
	UpdatedAt time.Time
}

// Store persists places in a SQLite database. Names are normalized on the
// way in, so "The Base" and "base" address the same row.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures schema.
func Open(path string) (*Store, error) {
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create places dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open places db %s: %w", path, err)
	}
	return NewStore(db)
}

// NewStore wraps an existing database handle and ensures schema.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := ensurePlacesSchema(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NormalizeName canonicalizes a place name: lowercased, articles dropped,
// inner whitespace collapsed.
func NormalizeName(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	out := fields[:0]
	for _, f := range fields {
		if f == "the" || f == "a" || f == "an" {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// Upsert inserts or replaces the place under its normalized name.
func (s *Store) Upsert(ctx context.Context, p Place) error {
	name := NormalizeName(p.Name)
	if name == "" {
		return fmt.Errorf("place name is required")
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (name, x, y, z, saved_by, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET x = excluded.x, y = excluded.y, z = excluded.z,
			saved_by = excluded.saved_by, updated_at = excluded.updated_at`, placesTable),
		name, p.X, p.Y, p.Z, p.SavedBy, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert place %q: %w", name, err)
	}
	return nil
}

// Get returns the place stored under name, or nil when it is not known.
func (s *Store) Get(ctx context.Context, name string) (*Place, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT name, x, y, z, saved_by, updated_at FROM %s WHERE name = ?", placesTable),
		NormalizeName(name))
	p, err := scanPlace(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get place %q: %w", name, err)
	}
	return p, nil
}

// Delete removes the place stored under name. Deleting an unknown name is
// not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE name = ?", placesTable),
		NormalizeName(name))
	if err != nil {
		return fmt.Errorf("delete place %q: %w", name, err)
	}
	return nil
}

// List returns all known places ordered by name.
func (s *Store) List(ctx context.Context) ([]Place, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT name, x, y, z, saved_by, updated_at FROM %s ORDER BY name", placesTable))
	if err != nil {
		return nil, fmt.Errorf("list places: %w", err)
	}
	defer rows.Close()

	var out []Place
	for rows.Next() {
		p, err := scanPlace(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list places: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// FormatForPrompt renders known places as a compact planner context block.
func FormatForPrompt(places []Place) string {
	if len(places) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range places {
		fmt.Fprintf(&b, "- %s: %d, %d, %d\n", p.Name, p.X, p.Y, p.Z)
	}
	return strings.TrimRight(b.String(), "\n")
}

func scanPlace(scan func(...any) error) (*Place, error) {
	var (
		p           Place
		updatedAtMs int64
	)
	if err := scan(&p.Name, &p.X, &p.Y, &p.Z, &p.SavedBy, &updatedAtMs); err != nil {
		return nil, err
	}
	p.UpdatedAt = time.UnixMilli(updatedAtMs).UTC()
	return &p, nil
}

func ensurePlacesSchema(db *sql.DB) error {
	_, err := db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			saved_by TEXT,
			updated_at INTEGER NOT NULL
		)`, placesTable))
	return err
}
