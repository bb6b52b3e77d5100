package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// PGCache keeps embedded chunks per URL in postgres. Rows older than the
// retention window are removed by Prune.
type PGCache struct {
	db        *sql.DB
	retention time.Duration
}

func NewPGCache(dsn string, retention time.Duration) (*PGCache, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &PGCache{db: db, retention: retention}, nil
}

// Migrate applies cache schema migrations from the given directory.
// dir example: file://migrations
func Migrate(dir, dsn string) error {
	if dir == "" {
		dir = "file://migrations"
	}
	m, err := migrate.New(dir, dsn)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (c *PGCache) Get(ctx context.Context, url string) ([]Chunk, bool, error) {
	var payload []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT payload FROM chunk_cache WHERE url = $1 AND created_at > $2`,
		url, time.Now().Add(-c.retention)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var chunks []Chunk
	if err := json.Unmarshal(payload, &chunks); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry: %w", err)
	}
	return chunks, true, nil
}

func (c *PGCache) Put(ctx context.Context, url string, chunks []Chunk) error {
	payload, err := json.Marshal(chunks)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO chunk_cache (url, payload, created_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (url) DO UPDATE SET payload = EXCLUDED.payload, created_at = NOW()`,
		url, payload)
	return err
}

// Prune removes rows older than the retention window and reports how many.
func (c *PGCache) Prune(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM chunk_cache WHERE created_at <= $1`, time.Now().Add(-c.retention))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (c *PGCache) Close() error { return c.db.Close() }
