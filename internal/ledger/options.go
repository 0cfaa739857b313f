package ledger

import (
	"time"

	"github.com/vendorflow/taskintake/internal/domain/bizday"
)

// Option configures a Ledger at construction time.
type Option func(*Ledger)

// WithDefaultCapacity sets C_default, the baseline words-per-day budget used
// when no override exists for a date.
func WithDefaultCapacity(words float64) Option {
	return func(l *Ledger) { l.defaultCapacity = words }
}

// WithBusinessDayPredicate injects the predicate allocate() walks against.
// Kept abstract per spec §9: never bake holiday logic into the ledger.
func WithBusinessDayPredicate(p bizday.Predicate) Option {
	return func(l *Ledger) { l.bizday = p }
}

// WithDataDir sets the directory the ledger's JSON files live under.
func WithDataDir(dir string) Option {
	return func(l *Ledger) { l.dataDir = dir }
}

// WithNow overrides the ledger's notion of "today", for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}
