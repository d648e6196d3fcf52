// Package modules groups the fx providers the newsdesk server is assembled from.
package modules

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	schema "github.com/memohai/newsdesk/db"
	"github.com/memohai/newsdesk/internal/auth"
	"github.com/memohai/newsdesk/internal/config"
	"github.com/memohai/newsdesk/internal/db"
	"github.com/memohai/newsdesk/internal/logger"
)

// ConfigPath is the config file the server loads; empty uses the default.
type ConfigPath string

var InfraModule = fx.Module(
	"infra",
	fx.Provide(
		provideConfig,
		provideLogger,
		provideDBConn,
		provideRevoker,
	),
)

// ---------------------------------------------------------------------------
// infrastructure providers
// ---------------------------------------------------------------------------

func provideConfig(path ConfigPath) (config.Config, error) {
	cfg, err := config.Load(string(path))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*db.SQL, error) {
	migrations, err := fs.Sub(schema.MigrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations fs: %w", err)
	}
	conn, err := db.OpenConfigured(context.Background(), log, cfg, schema.SQLiteSchema, migrations)
	if err != nil {
		return nil, err
	}
	log.Info("database ready", slog.String("driver", conn.Driver))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return conn.Close()
		},
	})
	return conn, nil
}

// provideRevoker keeps revoked token IDs in Redis when redis.addr is set so
// logouts hold across restarts and replicas.
func provideRevoker(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*auth.Revoker, error) {
	if cfg.Redis.Addr == "" {
		log.Warn("redis not configured; token revocations are kept in memory")
		return auth.NewRevoker(auth.NewMemoryKV(), ""), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return auth.NewRevoker(auth.NewRedisKV(client), ""), nil
}
