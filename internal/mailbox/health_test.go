package mailbox

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S6: ten reconnects inside the alert window fire exactly one alert; further
// reconnects for the same mailbox are suppressed until the window rolls.
func TestHealthMonitorReconnectStormFiresOnce(t *testing.T) {
	var alerts []Alert
	h := NewHealthMonitor(5*time.Minute, 10, 3, func(a Alert) {
		alerts = append(alerts, a)
	})

	for i := 0; i < 10; i++ {
		h.RecordReconnect("inbox@example.com")
	}
	require.Len(t, alerts, 1)
	assert.Equal(t, "inbox@example.com", alerts[0].Mailbox)

	h.RecordReconnect("inbox@example.com")
	assert.Len(t, alerts, 1, "a second alert must be suppressed inside the cooldown window")
}

func TestHealthMonitorReconnectCountsAreBelowThreshold(t *testing.T) {
	var alerts []Alert
	h := NewHealthMonitor(5*time.Minute, 10, 3, func(a Alert) {
		alerts = append(alerts, a)
	})

	for i := 0; i < 9; i++ {
		h.RecordReconnect("inbox@example.com")
	}
	assert.Empty(t, alerts)
}

func TestHealthMonitorTracksMailboxesIndependently(t *testing.T) {
	var alerts []Alert
	h := NewHealthMonitor(5*time.Minute, 3, 3, func(a Alert) {
		alerts = append(alerts, a)
	})

	for i := 0; i < 3; i++ {
		h.RecordReconnect("a@example.com")
	}
	require.Len(t, alerts, 1)
	assert.Equal(t, "a@example.com", alerts[0].Mailbox)

	h.RecordReconnect("b@example.com")
	h.RecordReconnect("b@example.com")
	assert.Len(t, alerts, 1, "b has not yet reached its own threshold")
}

func TestHealthMonitorConsecutiveFailuresAlertAtEachMultiple(t *testing.T) {
	var alerts []Alert
	h := NewHealthMonitor(5*time.Minute, 10, 3, func(a Alert) {
		alerts = append(alerts, a)
	})

	h.RecordHealthCheck("inbox", false, errors.New("timeout"))
	h.RecordHealthCheck("inbox", false, errors.New("timeout"))
	assert.Empty(t, alerts)

	h.RecordHealthCheck("inbox", false, errors.New("timeout"))
	require.Len(t, alerts, 1)

	h.RecordHealthCheck("inbox", true, nil)
	h.RecordHealthCheck("inbox", false, errors.New("timeout"))
	h.RecordHealthCheck("inbox", false, errors.New("timeout"))
	assert.Len(t, alerts, 1, "the failure streak was reset by the healthy check")
}
