package mailbox

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Fleet owns one Listener per configured mailbox and starts them
// concurrently, matching the pack's IMAP sync tool's errgroup-bounded
// concurrent-mailbox pattern, generalized here to long-lived listeners
// instead of one-shot sync passes.
type Fleet struct {
	listeners []*Listener
	logger    *slog.Logger
}

func NewFleet(listeners []*Listener, logger *slog.Logger) *Fleet {
	return &Fleet{listeners: listeners, logger: logger}
}

// Run blocks until ctx is cancelled or any listener returns a non-nil error;
// on either, every other listener is given the chance to shut down cleanly
// before Run returns.
func (f *Fleet) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range f.listeners {
		l := l
		g.Go(func() error {
			return l.Run(gctx)
		})
	}
	return g.Wait()
}

// Statuses returns a health snapshot for every listener, for /api/health.
func (f *Fleet) Statuses() []Status {
	out := make([]Status, 0, len(f.listeners))
	for _, l := range f.listeners {
		out = append(out, l.Status())
	}
	return out
}
