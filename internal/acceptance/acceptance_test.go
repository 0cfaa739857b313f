package acceptance

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorflow/taskintake/internal/domain/bizday"
	"github.com/vendorflow/taskintake/internal/domain/event"
	"github.com/vendorflow/taskintake/internal/domain/model"
	"github.com/vendorflow/taskintake/internal/ledger"
)

type fakeBus struct {
	published []event.Eventer
}

func (f *fakeBus) Publish(ev event.Eventer) { f.published = append(f.published, ev) }

type fakeDispatcher struct {
	calls int
	err   error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, offer model.TaskOffer, plan []model.AllocationEntry) error {
	f.calls++
	return f.err
}

func newTestDecider(t *testing.T) (*Decider, *fakeBus, *fakeDispatcher) {
	t.Helper()
	l, err := ledger.New(nil,
		ledger.WithDataDir(t.TempDir()),
		ledger.WithDefaultCapacity(5000),
		ledger.WithBusinessDayPredicate(bizday.Weekday{}),
		ledger.WithNow(func() time.Time { return mustParse(t, "2026-01-20") }),
	)
	require.NoError(t, err)

	bus := &fakeBus{}
	dispatcher := &fakeDispatcher{}
	d := NewDecider(l, bus, dispatcher, slog.Default())
	return d, bus, dispatcher
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return tm
}

func strPtr(s string) *string    { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestDecideAdmitsAcceptableOffer(t *testing.T) {
	d, bus, dispatcher := newTestDecider(t)

	offer := model.TaskOffer{
		OrderID:        strPtr("1"),
		Status:         "New",
		AmountWords:    floatPtr(1000),
		PlannedEndDate: strPtr("2026-01-23"),
		AcceptURL:      strPtr("https://projects.moravia.com/Task/1/detail/notification?command=Accept"),
		Mailbox:        "inbox",
	}

	d.decide(context.Background(), offer)

	completed, onHold := d.Counts()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 0, onHold)
	assert.Equal(t, 1, dispatcher.calls)
	require.NotEmpty(t, bus.published)
}

func TestDecideTracksOnHoldWithoutAdmitting(t *testing.T) {
	d, bus, dispatcher := newTestDecider(t)

	offer := model.TaskOffer{Status: "On Hold", Mailbox: "inbox"}
	d.decide(context.Background(), offer)

	completed, onHold := d.Counts()
	assert.Equal(t, 0, completed)
	assert.Equal(t, 1, onHold)
	assert.Equal(t, 0, dispatcher.calls)
	require.Len(t, bus.published, 1)
}

func TestDecideDropsOfferWithNeitherLinkNorOnHold(t *testing.T) {
	d, bus, dispatcher := newTestDecider(t)

	offer := model.TaskOffer{Status: "New", Mailbox: "inbox"}
	d.decide(context.Background(), offer)

	completed, onHold := d.Counts()
	assert.Equal(t, 0, completed)
	assert.Equal(t, 0, onHold)
	assert.Equal(t, 0, dispatcher.calls)
	assert.Empty(t, bus.published)
}

func TestAdmitRejectsOfferMissingAmountOrDeadline(t *testing.T) {
	d, _, dispatcher := newTestDecider(t)

	offer := model.TaskOffer{
		Status:    "New",
		AcceptURL: strPtr("https://projects.moravia.com/Task/1/detail/notification?command=Accept"),
		Mailbox:   "inbox",
	}
	d.decide(context.Background(), offer)

	completed, _ := d.Counts()
	assert.Equal(t, 0, completed)
	assert.Equal(t, 0, dispatcher.calls)
}

func TestAdmitRejectedByLedgerDoesNotIncrementCounters(t *testing.T) {
	d, _, dispatcher := newTestDecider(t)

	offer := model.TaskOffer{
		OrderID:        strPtr("1"),
		Status:         "New",
		AmountWords:    floatPtr(1_000_000),
		PlannedEndDate: strPtr("2026-01-23"),
		AcceptURL:      strPtr("https://projects.moravia.com/Task/1/detail/notification?command=Accept"),
		Mailbox:        "inbox",
	}
	d.decide(context.Background(), offer)

	completed, onHold := d.Counts()
	assert.Equal(t, 0, completed)
	assert.Equal(t, 0, onHold)
	assert.Equal(t, 0, dispatcher.calls)
}

func TestCountsAreRaceSafeAcrossConcurrentDecisions(t *testing.T) {
	d, _, _ := newTestDecider(t)

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			offer := model.TaskOffer{Status: "On Hold", Mailbox: "inbox"}
			d.decide(context.Background(), offer)
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}

	_, onHold := d.Counts()
	assert.Equal(t, 20, onHold)
}
