package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/easeaico/persona-engine/internal/config"
	"github.com/easeaico/persona-engine/internal/repository"
	"github.com/easeaico/persona-engine/internal/storage"
)

// OpenStores connects the persistence backends named in cfg. Bandit
// checkpoints go to Redis when REDIS_ADDR is set, otherwise to PostgreSQL;
// dialogue and style state need PostgreSQL. The returned close function
// releases every opened connection.
func OpenStores(ctx context.Context, cfg config.Config) (Stores, func(), error) {
	var stores Stores
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DatabaseURL != "" {
		db, err := repository.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return Stores{}, func() {}, fmt.Errorf("failed to connect to database: %w", err)
		}
		closers = append(closers, db.Close)
		stores.Bandit = db.Checkpoints
		stores.Dialogue = db.Dialogue
		stores.Styles = db.StylePrefs
		slog.Info("database checkpoints enabled")
	}

	if cfg.RedisAddr != "" {
		rdb, err := storage.DialRedis(ctx, cfg.RedisAddr, cfg.RedisKeyPrefix)
		if err != nil {
			closeAll()
			return Stores{}, func() {}, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		stores.Bandit = rdb
		slog.Info("redis bandit checkpoints enabled", "addr", cfg.RedisAddr, "prefix", cfg.RedisKeyPrefix)
	}
	return stores, closeAll, nil
}
