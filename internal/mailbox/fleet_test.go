package mailbox

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorflow/taskintake/internal/domain/model"
	"github.com/vendorflow/taskintake/internal/store/uidstore"
)

type noopAcceptor struct{}

func (noopAcceptor) Accept(model.TaskOffer) {}

func newTestListener(t *testing.T, name string) *Listener {
	t.Helper()
	store := uidstore.New(t.TempDir())
	health := NewHealthMonitor(time.Minute, 10, 5, func(Alert) {})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := Config{
		Name:          name,
		InitialDelay:  time.Millisecond,
		MaxDelay:      time.Millisecond,
		MaxRetries:    1,
		MaxRetryDelay: time.Millisecond,
	}
	return NewListener(cfg, store, noopAcceptor{}, health, NewPauseGate(), logger)
}

func TestFleetStatusesReportsEveryListener(t *testing.T) {
	f := NewFleet([]*Listener{newTestListener(t, "a"), newTestListener(t, "b")}, nil)

	statuses := f.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "a", statuses[0].Mailbox)
	assert.Equal(t, StateDisconnected, statuses[0].State)
	assert.Equal(t, "b", statuses[1].Mailbox)
}

func TestFleetRunReturnsPromptlyOnCancelledContext(t *testing.T) {
	f := NewFleet([]*Listener{newTestListener(t, "a")}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
