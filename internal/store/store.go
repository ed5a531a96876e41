package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/adminraster-go/internal/admin"
	"github.com/wegman-software/adminraster-go/internal/logger"
	"github.com/wegman-software/adminraster-go/internal/tiling"
)

// ErrStore marks every persistence failure
var ErrStore = errors.New("store error")

// ErrTileNotFound is returned when a tile index has no stored blob
var ErrTileNotFound = errors.New("tile not found")

// TileBlob is one encoded tile ready for storage
type TileBlob struct {
	Index int
	PNG   []byte
}

// Store persists region records and tile blobs in PostgreSQL
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to PostgreSQL. maxConns <= 0 keeps the pgxpool default.
func Open(ctx context.Context, connString string, maxConns int) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse connection string: %w", ErrStore, err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to PostgreSQL: %w", ErrStore, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to reach PostgreSQL: %w", ErrStore, err)
	}

	return &Store{pool: pool}, nil
}

// Close closes connections
func (s *Store) Close() {
	s.pool.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sov (
	id   INTEGER PRIMARY KEY,
	name TEXT
);
CREATE TABLE IF NOT EXISTS admin0 (
	id   INTEGER PRIMARY KEY,
	name TEXT
);
CREATE TABLE IF NOT EXISTS admin1 (
	id       INTEGER PRIMARY KEY,
	name     TEXT,
	disputed BOOLEAN NOT NULL DEFAULT FALSE,
	admin0   INTEGER REFERENCES admin0(id),
	sov      INTEGER REFERENCES sov(id)
);
CREATE TABLE IF NOT EXISTS tiles (
	id  INTEGER PRIMARY KEY CHECK (id >= 0 AND id < %d),
	png BYTEA NOT NULL
);
`

// EnsureSchema creates the sov, admin0, admin1 and tiles tables
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(schemaSQL, tiling.TileCount)); err != nil {
		return fmt.Errorf("%w: failed to create schema: %w", ErrStore, err)
	}
	return nil
}

// ReplaceRegions swaps the sov, admin0 and admin1 tables for r in one
// transaction. On failure the previous records stay in place.
func (s *Store) ReplaceRegions(ctx context.Context, r *admin.Regions) error {
	log := logger.Get()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrStore, err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"admin1", "admin0", "sov"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("%w: failed to clear %s: %w", ErrStore, table, err)
		}
	}

	if err := copyNamed(ctx, tx, "sov", r.Sov); err != nil {
		return err
	}
	if err := copyNamed(ctx, tx, "admin0", r.Admin0); err != nil {
		return err
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"admin1"},
		[]string{"id", "name", "disputed", "admin0", "sov"},
		pgx.CopyFromSlice(len(r.Admin1), func(i int) ([]any, error) {
			a := r.Admin1[i]
			return []any{a.ID, a.Name, a.Disputed, a.Admin0, a.Sov}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: COPY admin1 failed: %w", ErrStore, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: failed to commit regions: %w", ErrStore, err)
	}

	log.Info("Regions committed",
		zap.Int("sov", len(r.Sov)),
		zap.Int("admin0", len(r.Admin0)),
		zap.Int64("admin1", n))
	return nil
}

func copyNamed(ctx context.Context, tx pgx.Tx, table string, rows []admin.Named) error {
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{table},
		[]string{"id", "name"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return []any{rows[i].ID, rows[i].Name}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: COPY %s failed: %w", ErrStore, table, err)
	}
	return nil
}

// ReplaceTiles swaps the whole tiles table for tiles in one transaction
func (s *Store) ReplaceTiles(ctx context.Context, tiles []TileBlob) error {
	for _, t := range tiles {
		if t.Index < 0 || t.Index >= tiling.TileCount {
			return fmt.Errorf("%w: tile index %d: %w", ErrStore, t.Index, tiling.ErrOutOfRange)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrStore, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM tiles"); err != nil {
		return fmt.Errorf("%w: failed to clear tiles: %w", ErrStore, err)
	}

	var bytes int64
	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"tiles"},
		[]string{"id", "png"},
		pgx.CopyFromSlice(len(tiles), func(i int) ([]any, error) {
			bytes += int64(len(tiles[i].PNG))
			return []any{tiles[i].Index, tiles[i].PNG}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: COPY tiles failed: %w", ErrStore, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: failed to commit tiles: %w", ErrStore, err)
	}

	logger.Get().Info("Tiles committed",
		zap.Int64("tiles", n),
		zap.Int64("bytes", bytes))
	return nil
}

// Tile returns the stored PNG for a tile index
func (s *Store) Tile(ctx context.Context, index int) ([]byte, error) {
	var png []byte
	err := s.pool.QueryRow(ctx, "SELECT png FROM tiles WHERE id = $1", index).Scan(&png)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: tile %d: %w", ErrStore, index, ErrTileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read tile %d: %w", ErrStore, index, err)
	}
	return png, nil
}

// Region resolves an admin1 id to its names. Missing admin0 or sov rows
// are reported as admin.NotAvailable. found is false when no admin1 row
// has the id.
func (s *Store) Region(ctx context.Context, id int) (rec admin.Record, found bool, err error) {
	var name, admin0, sov *string
	var disputed bool
	err = s.pool.QueryRow(ctx, `
		SELECT a1.name, a1.disputed, a0.name, s.name
		FROM admin1 a1
		LEFT JOIN admin0 a0 ON a0.id = a1.admin0
		LEFT JOIN sov s ON s.id = a1.sov
		WHERE a1.id = $1`, id).Scan(&name, &disputed, &admin0, &sov)
	if errors.Is(err, pgx.ErrNoRows) {
		return admin.Record{}, false, nil
	}
	if err != nil {
		return admin.Record{}, false, fmt.Errorf("%w: failed to read region %d: %w", ErrStore, id, err)
	}

	return admin.Record{
		ID:       id,
		Admin1:   orNA(name),
		Admin0:   orNA(admin0),
		Sov:      orNA(sov),
		Disputed: disputed,
	}, true, nil
}

// Records lists every admin1 region with resolved names in id order
func (s *Store) Records(ctx context.Context) ([]admin.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a1.id, a1.name, a1.disputed, a0.name, s.name
		FROM admin1 a1
		LEFT JOIN admin0 a0 ON a0.id = a1.admin0
		LEFT JOIN sov s ON s.id = a1.sov
		ORDER BY a1.id`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list regions: %w", ErrStore, err)
	}
	defer rows.Close()

	var out []admin.Record
	for rows.Next() {
		var rec admin.Record
		var name, admin0, sov *string
		if err := rows.Scan(&rec.ID, &name, &rec.Disputed, &admin0, &sov); err != nil {
			return nil, fmt.Errorf("%w: failed to scan region: %w", ErrStore, err)
		}
		rec.Admin1, rec.Admin0, rec.Sov = orNA(name), orNA(admin0), orNA(sov)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to list regions: %w", ErrStore, err)
	}
	return out, nil
}

// TileCount returns the number of stored tiles
func (s *Store) TileCount(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM tiles").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count tiles: %w", ErrStore, err)
	}
	return n, nil
}

func orNA(s *string) string {
	if s == nil {
		return admin.NotAvailable
	}
	return *s
}
