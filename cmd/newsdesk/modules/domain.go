package modules

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/newsdesk/internal/accounts"
	"github.com/memohai/newsdesk/internal/config"
	"github.com/memohai/newsdesk/internal/contact"
	"github.com/memohai/newsdesk/internal/news"
)

var DomainModule = fx.Module(
	"domain",
	fx.Provide(
		provideAccountService,
		news.NewService,
		provideContactService,
	),
)

func provideAccountService(log *slog.Logger, cfg config.Config) (*accounts.Service, error) {
	if cfg.Admin.PasswordHash == "" && cfg.Admin.Password == config.Default().Admin.Password {
		log.Warn("admin password uses default placeholder; please update config.toml")
	}
	return accounts.NewService(log, cfg.Admin)
}

func provideContactService(log *slog.Logger, cfg config.Config) *contact.Service {
	if !cfg.SMTP.Enabled() {
		log.Warn("smtp not configured; contact form submissions will fail")
		return contact.NewService(log, nil)
	}
	return contact.NewService(log, contact.NewSMTPSender(log, cfg.SMTP))
}
