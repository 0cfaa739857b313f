package event

// UpdateStatusPayload carries task counters and the current pause state.
type UpdateStatusPayload struct {
	QueueDepth  int  `json:"queueDepth"`
	AcceptedCount int `json:"acceptedCount"`
	Paused      bool `json:"paused"`
}

// UpdateStatusEvent reports overall intake status, e.g. after a toggle-pause.
type UpdateStatusEvent struct {
	base
	Payload UpdateStatusPayload
}

func NewUpdateStatusEvent(p UpdateStatusPayload) *UpdateStatusEvent {
	return &UpdateStatusEvent{base: newBase(KindUpdateStatus), Payload: p}
}

func (e *UpdateStatusEvent) GetPayload() any { return e.Payload }

// CapacityUpdatedPayload names the single date whose capacity changed.
type CapacityUpdatedPayload struct {
	Date string `json:"date"`
}

type CapacityUpdatedEvent struct {
	base
	Payload CapacityUpdatedPayload
}

func NewCapacityUpdatedEvent(date string) *CapacityUpdatedEvent {
	return &CapacityUpdatedEvent{base: newBase(KindCapacityUpdated), Payload: CapacityUpdatedPayload{Date: date}}
}

func (e *CapacityUpdatedEvent) GetPayload() any { return e.Payload }

// TasksUpdatedPayload is empty for a bare refresh nudge, or populated when an
// on-hold offer is recorded.
type TasksUpdatedPayload struct {
	CompletedCount int `json:"completedCount,omitempty"`
	OnHoldCount    int `json:"onHoldCount,omitempty"`
}

type TasksUpdatedEvent struct {
	base
	Payload TasksUpdatedPayload
}

func NewTasksUpdatedEvent(p TasksUpdatedPayload) *TasksUpdatedEvent {
	return &TasksUpdatedEvent{base: newBase(KindTasksUpdated), Payload: p}
}

func (e *TasksUpdatedEvent) GetPayload() any { return e.Payload }

// WorkingHoursUpdatedPayload names one date of a reloaded holiday list.
type WorkingHoursUpdatedPayload struct {
	Date string `json:"date"`
}

type WorkingHoursUpdatedEvent struct {
	base
	Payload WorkingHoursUpdatedPayload
}

func NewWorkingHoursUpdatedEvent(date string) *WorkingHoursUpdatedEvent {
	return &WorkingHoursUpdatedEvent{base: newBase(KindWorkingHoursUpdated), Payload: WorkingHoursUpdatedPayload{Date: date}}
}

func (e *WorkingHoursUpdatedEvent) GetPayload() any { return e.Payload }

// QueueUpdatedEvent is a bare nudge with no payload fields.
type QueueUpdatedEvent struct {
	base
}

func NewQueueUpdatedEvent() *QueueUpdatedEvent {
	return &QueueUpdatedEvent{base: newBase(KindQueueUpdated)}
}

func (e *QueueUpdatedEvent) GetPayload() any { return struct{}{} }

// DiagnosticsPayload carries free-form operational detail — reconnect-storm
// and consecutive-failure alerts from the mailbox health monitor land here.
type DiagnosticsPayload struct {
	Mailbox string `json:"mailbox,omitempty"`
	Message string `json:"message"`
	Level   string `json:"level"`
}

type DiagnosticsEvent struct {
	base
	Payload DiagnosticsPayload
}

func NewDiagnosticsEvent(p DiagnosticsPayload) *DiagnosticsEvent {
	return &DiagnosticsEvent{base: newBase(KindDiagnostics), Payload: p}
}

func (e *DiagnosticsEvent) GetPayload() any { return e.Payload }
