package memory

import (
	"fmt"

	"github.com/omidshahri/glassmind/config"
)

// NewCache builds the cache backend selected by memory.cache. The postgres
// backend applies its schema migrations first.
func NewCache(cfg config.MemoryConfig) (Cache, error) {
	switch cfg.Cache {
	case "", "none":
		return NewNopCache(), nil
	case "redis":
		return NewRedisCache(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Retention), nil
	case "postgres":
		dsn := cfg.Postgres.DSN()
		if err := Migrate("", dsn); err != nil {
			return nil, fmt.Errorf("cache migration failed: %w", err)
		}
		return NewPGCache(dsn, cfg.Retention)
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Cache)
	}
}
