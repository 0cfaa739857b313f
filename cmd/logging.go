package cmd

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// provideLoggerProvider builds the otel log SDK's LoggerProvider backing the
// slog root logger. No exporter or processor is attached, so records handed
// to this provider are not written anywhere; a collector exporter can be
// added here without touching call sites.
func provideLoggerProvider(lc fx.Lifecycle) *sdklog.LoggerProvider {
	provider := sdklog.NewLoggerProvider()
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return provider.Shutdown(ctx)
		},
	})
	return provider
}

// provideRootLogger is the slog logger every component in this service
// receives, bridged onto the otel log SDK so structured fields survive into
// whatever exporter is eventually attached to the LoggerProvider.
func provideRootLogger(provider *sdklog.LoggerProvider) *slog.Logger {
	handler := otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider))
	return slog.New(handler)
}

// provideFxEventLogger gives Fx its own zap-backed event logger, kept
// separate from the application's slog logger so dependency-graph noise
// never mixes with domain logs.
func provideFxEventLogger() fxevent.Logger {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		zapLogger = zap.NewNop()
	}
	return &fxevent.ZapLogger{Logger: zapLogger}
}

func init() {
	// slog.Default is a plain stderr text handler for the whole process; the
	// otel-bridged logger is never installed as the default, it only reaches
	// components that receive *slog.Logger from the Fx graph.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}
