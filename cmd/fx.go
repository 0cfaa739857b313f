package cmd

import (
	"go.uber.org/fx"

	"github.com/vendorflow/taskintake/config"
	"github.com/vendorflow/taskintake/internal/acceptance"
	"github.com/vendorflow/taskintake/internal/bus/server"
	"github.com/vendorflow/taskintake/internal/ledger"
	"github.com/vendorflow/taskintake/internal/mailbox"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.WithLogger(provideFxEventLogger),
		fx.Provide(
			func() *config.Config { return cfg },
			provideLoggerProvider,
			provideRootLogger,
		),
		ledger.Module,
		mailbox.Module,
		acceptance.Module,
		server.Module,
	)
}
