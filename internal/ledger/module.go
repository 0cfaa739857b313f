package ledger

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/vendorflow/taskintake/config"
	"github.com/vendorflow/taskintake/internal/domain/bizday"
)

// Module wires the ledger into the Fx graph: C_default, the data directory,
// and the business-day predicate all come from config, never compiled in.
var Module = fx.Module("ledger",
	fx.Provide(provideHolidayTable),
	fx.Provide(provideLedger),
)

// provideHolidayTable builds the table from the initial config snapshot.
// Arming the hot-reload watch is done later, in bus/server's fx.Invoke,
// once the dashboard bus exists to broadcast workingHoursUpdated from the
// same callback — wiring it here would depend on the bus, which in turn
// depends on the ledger this table feeds, a provider cycle.
func provideHolidayTable(cfg *config.Config) *bizday.HolidayTable {
	return bizday.NewHolidayTable(bizday.Weekday{}, cfg.Holidays)
}

func provideLedger(cfg *config.Config, table *bizday.HolidayTable, logger *slog.Logger) (*Ledger, error) {
	return New(logger,
		WithDefaultCapacity(cfg.CapacityDefault),
		WithDataDir(cfg.DataDir),
		WithBusinessDayPredicate(table),
	)
}
