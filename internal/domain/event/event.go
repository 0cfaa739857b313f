// Package event defines the broadcast events published on the dashboard bus.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies one of the event types listed for the dashboard channel.
type Kind string

const (
	KindUpdateStatus         Kind = "updateStatus"
	KindCapacityUpdated      Kind = "capacityUpdated"
	KindTasksUpdated         Kind = "tasksUpdated"
	KindWorkingHoursUpdated  Kind = "workingHoursUpdated"
	KindQueueUpdated         Kind = "queueUpdated"
	KindDiagnostics          Kind = "diagnostics"
)

// Eventer is satisfied by every event broadcast on the bus. GetCached/SetCached
// let the hub's marshaller skip re-encoding an event it has already encoded.
type Eventer interface {
	GetID() uuid.UUID
	GetKind() Kind
	GetOccurredAt() time.Time
	GetPayload() any
	GetCached() []byte
	SetCached([]byte)
}

// base is embedded by every concrete event and supplies the Eventer plumbing.
type base struct {
	id         uuid.UUID
	kind       Kind
	occurredAt time.Time
	cached     []byte
}

func newBase(kind Kind) base {
	return base{id: uuid.New(), kind: kind, occurredAt: time.Now()}
}

func (b *base) GetID() uuid.UUID          { return b.id }
func (b *base) GetKind() Kind             { return b.kind }
func (b *base) GetOccurredAt() time.Time  { return b.occurredAt }
func (b *base) GetCached() []byte         { return b.cached }
func (b *base) SetCached(buf []byte)      { b.cached = buf }
