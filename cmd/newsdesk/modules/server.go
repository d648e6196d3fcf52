package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/memohai/newsdesk/internal/accounts"
	"github.com/memohai/newsdesk/internal/auth"
	"github.com/memohai/newsdesk/internal/config"
	"github.com/memohai/newsdesk/internal/handlers"
	"github.com/memohai/newsdesk/internal/media"
	"github.com/memohai/newsdesk/internal/server"
	"github.com/memohai/newsdesk/internal/version"
)

var ServerModule = fx.Module(
	"server",
	fx.Provide(
		provideServerHandler(providePingHandler),
		provideServerHandler(provideAuthHandler),
		provideServerHandler(provideMediaHandler),
		provideServerHandler(handlers.NewNewsHandler),
		provideServerHandler(handlers.NewContactHandler),
		provideServer,
	),
	fx.Invoke(startServer),
)

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

// ---------------------------------------------------------------------------
// handlers
// ---------------------------------------------------------------------------

func providePingHandler(log *slog.Logger, catalog *media.CatalogService) *handlers.PingHandler {
	return handlers.NewPingHandler(log, catalog)
}

func provideAuthHandler(log *slog.Logger, cfg config.Config, accountService *accounts.Service, revoker *auth.Revoker) (*handlers.AuthHandler, error) {
	expiresIn, err := cfg.Auth.JWTExpiry()
	if err != nil {
		return nil, err
	}
	return handlers.NewAuthHandler(log, accountService, revoker, cfg.Auth.JWTSecret, expiresIn), nil
}

func provideMediaHandler(log *slog.Logger, cfg config.Config, ingest *media.IngestService, catalog *media.CatalogService) *handlers.MediaHandler {
	return handlers.NewMediaHandler(log, ingest, catalog, cfg.Storage.MaxUploadBytes)
}

// ---------------------------------------------------------------------------
// server
// ---------------------------------------------------------------------------

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	Revoker        *auth.Revoker
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) (*server.Server, error) {
	if params.Config.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	return server.NewServer(params.Logger, server.Options{
		Addr:      params.Config.Server.Addr,
		JWTSecret: params.Config.Auth.JWTSecret,
		Revoker:   params.Revoker,
	}, params.ServerHandlers...), nil
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting newsdesk %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
