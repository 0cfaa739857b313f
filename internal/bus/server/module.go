// Package server composes the dashboard bus, WS channel, and REST surface
// into one HTTP listener. It lives outside package bus because both bus/ws
// and bus/api import bus itself — this composition root is the one place
// allowed to see all three.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"

	"github.com/vendorflow/taskintake/config"
	"github.com/vendorflow/taskintake/internal/acceptance"
	"github.com/vendorflow/taskintake/internal/bus"
	"github.com/vendorflow/taskintake/internal/bus/api"
	"github.com/vendorflow/taskintake/internal/bus/ws"
	"github.com/vendorflow/taskintake/internal/domain/bizday"
	"github.com/vendorflow/taskintake/internal/domain/event"
	"github.com/vendorflow/taskintake/internal/ledger"
	"github.com/vendorflow/taskintake/internal/mailbox"
)

var Module = fx.Module("bus",
	fx.Provide(
		provideStatusProvider,
		provideHub,
		provideBusPublisher,
		provideDiagnosticsPublisher,
		provideWSHandler,
		provideAPIHandlers,
		provideRouter,
	),
	fx.Invoke(registerHTTPServer, wireHolidayWatch),
)

// provideBusPublisher and provideDiagnosticsPublisher expose the one Hub
// singleton under the narrow interfaces acceptance and mailbox depend on,
// without either of those packages importing bus directly.
func provideBusPublisher(hub *bus.Hub) acceptance.BusPublisher { return hub }

func provideDiagnosticsPublisher(hub *bus.Hub) mailbox.DiagnosticsPublisher { return hub }

func provideStatusProvider(pause *mailbox.PauseGate, decider *acceptance.Decider) *bus.StatusProvider {
	return bus.NewStatusProvider(pause, decider)
}

func provideHub(cfg *config.Config, status *bus.StatusProvider, logger *slog.Logger) *bus.Hub {
	return bus.NewHub(cfg.HeartbeatInterval, status, logger)
}

// provideWSHandler ties the WS ping cadence to the same heartbeatInterval
// the hub sweeps dead sessions against, per cfg.HeartbeatInterval.
func provideWSHandler(hub *bus.Hub, cfg *config.Config, logger *slog.Logger) *ws.Handler {
	return ws.NewHandler(hub, cfg.HeartbeatInterval, logger)
}

func provideAPIHandlers(l *ledger.Ledger, hub *bus.Hub, fleet *mailbox.Fleet, decider *acceptance.Decider) *api.Handlers {
	return api.NewHandlers(l, hub, fleet, decider)
}

func provideRouter(handlers *api.Handlers, wsHandler *ws.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	handlers.Mount(r)
	r.Handle("/ws", wsHandler)
	return r
}

// wireHolidayWatch arms the config hot-reload watch once the holiday table
// and the dashboard bus both exist: every reload swaps the table's contents
// and broadcasts workingHoursUpdated for each date in the refreshed list,
// per §4.E.
func wireHolidayWatch(cfg *config.Config, table *bizday.HolidayTable, hub *bus.Hub) {
	cfg.WatchHolidays(func(holidays []string) {
		table.Set(holidays)
		for _, date := range holidays {
			hub.Publish(event.NewWorkingHoursUpdatedEvent(date))
		}
	})
}

func registerHTTPServer(lc fx.Lifecycle, cfg *config.Config, router chi.Router, logger *slog.Logger) {
	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: router,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("bus: http server exited", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
