// Package model holds the data types shared across the intake pipeline:
// mailbox cursors, task offers, capacity ledger entries, and accepted-task
// records. None of these types carry behavior beyond small invariant-safe
// helpers; mutation lives in the owning component (store/uidstore, ledger).
package model

import "time"

// MailboxCursor is the durable "already processed" marker for one mailbox.
// SeenUids is kept small (capped by the owning store) and is a defensive
// de-dup layer on top of LastSeenUid, not the primary source of truth.
type MailboxCursor struct {
	Mailbox      string   `json:"-"`
	LastSeenUid  uint32   `json:"lastSeenUid"`
	SeenUids     []uint32 `json:"seenUids,omitempty"`
}

// TaskOffer is the ephemeral record the parser hands to the acceptor. A nil
// AcceptURL combined with an on-hold Status is a valid, deliverable offer.
type TaskOffer struct {
	OrderID        *string
	WorkflowName   *string
	Status         string
	AmountWords    *float64
	PlannedEndDate *string // normalized "YYYY-MM-DD HH:mm", nil if unparseable
	AcceptURL      *string
	Mailbox        string
	SourceUID      uint32
	ReceivedAt     time.Time
}

// IsOnHold reports whether the offer's status text is "on hold" case-insensitively.
func (o TaskOffer) IsOnHold() bool {
	return normalizeStatus(o.Status) == "on hold"
}

func normalizeStatus(s string) string {
	out := make([]rune, 0, len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			if !prevSpace {
				out = append(out, ' ')
			}
			prevSpace = true
			continue
		}
		prevSpace = false
		if r >= 'A' && r <= 'Z' {
			r = r + ('a' - 'A')
		}
		out = append(out, r)
	}
	return string(out)
}

// AllocationEntry is one day's reservation inside an AllocationPlan.
type AllocationEntry struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}

// AcceptedTaskRecord is the persistent outcome of a successful allocate().
type AcceptedTaskRecord struct {
	ID             string            `json:"id"`
	OrderID        *string           `json:"orderId"`
	WorkflowName   *string           `json:"workflowName"`
	AmountWords    float64           `json:"amountWords"`
	PlannedEndDate string            `json:"plannedEndDate"`
	AllocationPlan []AllocationEntry `json:"allocationPlan"`
	AcceptedAt     time.Time         `json:"acceptedAt"`
}

// CapacityLogEntry is one append-only audit row for override/adjust mutations.
type CapacityLogEntry struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Date      string    `json:"date"`
	Amount    float64   `json:"amount"`
	User      string    `json:"user,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncResult is returned by Ledger.SyncWithTasks.
type SyncResult struct {
	After            map[string]float64 `json:"after"`
	Diff             float64            `json:"diff"`
	DeletedOverrides []string           `json:"deletedOverrides"`
}

// PruneResult is returned by Ledger.PruneBefore.
type PruneResult struct {
	Deleted            int `json:"deleted"`
	AllocationsRemoved int `json:"allocationsRemoved"`
	TasksRemoved       int `json:"tasksRemoved"`
}

// TaskSummary is the small digest shown alongside the accepted-task listing.
type TaskSummary struct {
	Total       int `json:"total"`
	CompletedCount int `json:"completedCount"`
	OnHoldCount    int `json:"onHoldCount"`
}
