// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

// SQLiteCatalog reads the library app's SQLite database. The schema is owned
// by the library app (media, genre, tag, media_tag tables); we open read-only
// so a daemon bug can never corrupt the catalog.
type SQLiteCatalog struct {
	db *sql.DB
}

// OpenSQLite opens the catalog database at dbPath.
func OpenSQLite(dbPath string) (*SQLiteCatalog, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	return &SQLiteCatalog{db: db}, nil
}

// Close closes the database handle.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

const mediaQuery = `
SELECT m.id, m.filename, m.filepath, COALESCE(g.name, ''),
       COALESCE(GROUP_CONCAT(t.name, ','), '')
FROM media m
LEFT JOIN genre g ON g.id = m.genre_id
LEFT JOIN media_tag mt ON mt.media_id = m.id
LEFT JOIN tag t ON t.id = mt.tag_id
`

// Lookup resolves a single media id.
func (c *SQLiteCatalog) Lookup(ctx context.Context, id int64) (*MediaRef, error) {
	row := c.db.QueryRowContext(ctx, mediaQuery+"WHERE m.id = ? GROUP BY m.id", id)
	ref, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup media %d: %w", id, err)
	}
	return &ref, nil
}

// List returns all catalog entries ordered by id.
func (c *SQLiteCatalog) List(ctx context.Context) ([]MediaRef, error) {
	rows, err := c.db.QueryContext(ctx, mediaQuery+"GROUP BY m.id ORDER BY m.id")
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []MediaRef
	for rows.Next() {
		ref, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMedia(s scanner) (MediaRef, error) {
	var ref MediaRef
	var genre, tags string
	if err := s.Scan(&ref.ID, &ref.Filename, &ref.Path, &genre, &tags); err != nil {
		return MediaRef{}, err
	}
	ref.Genre = genre
	if tags != "" {
		ref.Tags = strings.Split(tags, ",")
	}
	return ref, nil
}

var _ Catalog = (*SQLiteCatalog)(nil)
