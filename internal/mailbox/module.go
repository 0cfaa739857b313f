package mailbox

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/vendorflow/taskintake/config"
	"github.com/vendorflow/taskintake/internal/store/uidstore"
)

// DiagnosticsPublisher lets the health monitor surface alerts on the
// dashboard bus without the mailbox package importing it directly.
type DiagnosticsPublisher interface {
	PublishDiagnostics(mailbox, message string)
}

// Module wires the listener fleet into the Fx graph.
var Module = fx.Module("mailbox",
	fx.Provide(
		NewPauseGate,
		provideUIDStore,
		provideHealthMonitor,
		provideListeners,
		NewFleet,
	),
	fx.Invoke(registerFleetLifecycle),
)

func provideUIDStore(cfg *config.Config) *uidstore.Store {
	return uidstore.New(cfg.DataDir)
}

func provideHealthMonitor(cfg *config.Config, pub DiagnosticsPublisher) *HealthMonitor {
	return NewHealthMonitor(cfg.AlertWindow, cfg.AlertReconnects, cfg.AlertConsecutive, func(a Alert) {
		pub.PublishDiagnostics(a.Mailbox, a.Message)
	})
}

func provideListeners(cfg *config.Config, store *uidstore.Store, acceptor Acceptor, health *HealthMonitor, pause *PauseGate, logger *slog.Logger) []*Listener {
	listeners := make([]*Listener, 0, len(cfg.Mailboxes))
	for _, name := range cfg.Mailboxes {
		lc := Config{
			Name:                name,
			Host:                cfg.IMAPHost,
			Port:                cfg.IMAPPort,
			TLS:                 cfg.IMAPTLS,
			User:                cfg.EmailUser,
			Pass:                cfg.EmailPass,
			InitialDelay:        cfg.InitialDelay,
			MaxDelay:            cfg.MaxDelay,
			MaxRetries:          cfg.MaxRetries,
			MaxRetryDelay:       cfg.MaxRetryDelay,
			HealthCheckInterval: cfg.HealthCheckInterval,
			HealthCheckTimeout:  cfg.HealthCheckTimeout,
		}
		listeners = append(listeners, NewListener(lc, store, acceptor, health, pause, logger))
	}
	return listeners
}

func registerFleetLifecycle(lc fx.Lifecycle, fleet *Fleet, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := fleet.Run(ctx); err != nil {
					logger.Error("mailbox: fleet exited", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
