// Package palettedb archives extracted palettes in a SQLite database so that
// repeated runs over the same image can be looked up instead of recomputed.
package palettedb

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/MeKo-Tech/huewheel/internal/analysis"
	"github.com/MeKo-Tech/huewheel/internal/colorspace"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotFound is returned by Lookup when no palette matches the key.
var ErrNotFound = errors.New("palette not found")

// Key identifies a palette: the same pixels analysed with the same settings
// always give the same palette.
type Key struct {
	Fingerprint string
	Clusters    int
	Seed        int64
	WheelSize   int
}

// Entry is one archived palette.
type Entry struct {
	Key
	ID           int64
	Source       string
	VisibleCells int
	CreatedAt    time.Time
	Swatches     []analysis.Swatch
	// WheelPNG is the rendered wheel, if it was stored.
	WheelPNG []byte
}

// Store is a palette archive. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the archive at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS palettes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fingerprint TEXT NOT NULL,
			clusters INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			wheel_size INTEGER NOT NULL,
			source TEXT,
			visible_cells INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			wheel_png BLOB
		);

		CREATE UNIQUE INDEX IF NOT EXISTS palette_key ON palettes (fingerprint, clusters, seed, wheel_size);

		CREATE TABLE IF NOT EXISTS swatches (
			palette_id INTEGER NOT NULL REFERENCES palettes(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			h REAL NOT NULL,
			s REAL NOT NULL,
			v REAL NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			weight REAL NOT NULL,
			PRIMARY KEY (palette_id, position)
		);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Save stores an entry, replacing any palette with the same key, and returns its ID.
func (s *Store) Save(ctx context.Context, e Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM palettes WHERE fingerprint=? AND clusters=? AND seed=? AND wheel_size=?",
		e.Fingerprint, e.Clusters, e.Seed, e.WheelSize,
	); err != nil {
		return 0, fmt.Errorf("failed to replace palette: %w", err)
	}

	var wheel []byte
	if len(e.WheelPNG) > 0 {
		if wheel, err = gzipCompress(e.WheelPNG); err != nil {
			return 0, fmt.Errorf("failed to compress wheel: %w", err)
		}
	}

	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO palettes (fingerprint, clusters, seed, wheel_size, source, visible_cells, created_at, wheel_png)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Fingerprint, e.Clusters, e.Seed, e.WheelSize, e.Source, e.VisibleCells, created.UnixMilli(), wheel,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert palette: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read palette id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO swatches (palette_id, position, h, s, v, x, y, weight) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare swatch insert: %w", err)
	}
	defer stmt.Close()

	for i, sw := range e.Swatches {
		if _, err := stmt.ExecContext(ctx, id, i, sw.HSV.H, sw.HSV.S, sw.HSV.V, sw.Centroid[0], sw.Centroid[1], sw.Weight); err != nil {
			return 0, fmt.Errorf("failed to insert swatch %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// Lookup returns the palette stored under key.
func (s *Store) Lookup(ctx context.Context, key Key) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fingerprint, clusters, seed, wheel_size, source, visible_cells, created_at, wheel_png
		 FROM palettes WHERE fingerprint=? AND clusters=? AND seed=? AND wheel_size=?`,
		key.Fingerprint, key.Clusters, key.Seed, key.WheelSize,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s k=%d seed=%d size=%d", ErrNotFound, key.Fingerprint, key.Clusters, key.Seed, key.WheelSize)
	}
	if err != nil {
		return nil, err
	}

	if e.Swatches, err = s.swatches(ctx, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

// List returns up to limit palettes, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, fingerprint, clusters, seed, wheel_size, source, visible_cells, created_at, NULL
		FROM palettes ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query palettes: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate palettes: %w", err)
	}

	for i := range out {
		if out[i].Swatches, err = s.swatches(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*Entry, error) {
	var (
		e       Entry
		source  sql.NullString
		created int64
		wheel   []byte
	)
	err := sc.Scan(&e.ID, &e.Fingerprint, &e.Clusters, &e.Seed, &e.WheelSize, &source, &e.VisibleCells, &created, &wheel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan palette: %w", err)
	}
	e.Source = source.String
	e.CreatedAt = time.UnixMilli(created)

	if len(wheel) > 0 {
		if e.WheelPNG, err = gzipDecompress(wheel); err != nil {
			return nil, fmt.Errorf("failed to decompress wheel: %w", err)
		}
	}
	return &e, nil
}

func (s *Store) swatches(ctx context.Context, id int64) ([]analysis.Swatch, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT h, s, v, x, y, weight FROM swatches WHERE palette_id=? ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query swatches: %w", err)
	}
	defer rows.Close()

	var out []analysis.Swatch
	for rows.Next() {
		var sw analysis.Swatch
		if err := rows.Scan(&sw.HSV.H, &sw.HSV.S, &sw.HSV.V, &sw.Centroid[0], &sw.Centroid[1], &sw.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan swatch: %w", err)
		}
		sw.RGB = sw.HSV.RGB()
		sw.Hex = sw.RGB.Hex()
		sw.Coord = colorspace.Coord{X: int(math.Round(sw.Centroid[0])), Y: int(math.Round(sw.Centroid[1]))}
		out = append(out, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate swatches: %w", err)
	}
	return out, nil
}

// FromReport builds an archive entry for a report produced with params.
func FromReport(r *analysis.Report, params analysis.Params, source string, wheelPNG []byte) Entry {
	return Entry{
		Key: Key{
			Fingerprint: r.Fingerprint,
			Clusters:    params.Clusters,
			Seed:        params.Seed,
			WheelSize:   params.WheelSize,
		},
		Source:       source,
		VisibleCells: r.VisibleCells,
		Swatches:     r.Palette,
		WheelPNG:     wheelPNG,
	}
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)

	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}
