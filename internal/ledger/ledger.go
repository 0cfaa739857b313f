// Package ledger implements spec component B: the capacity planner. A
// Ledger owns three in-memory maps (capacity, override, accepted tasks),
// serializes every mutation behind a single mutex, and persists each
// mutation atomically via internal/store/jsonfile.
package ledger

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v3"
	"github.com/oklog/ulid"

	"github.com/vendorflow/taskintake/internal/domain/bizday"
	"github.com/vendorflow/taskintake/internal/domain/model"
	"github.com/vendorflow/taskintake/internal/store/jsonfile"
)

// Error kinds raised by Allocate, matching spec §7.
var (
	ErrInsufficientCapacity = errors.New("ledger: insufficient capacity by deadline")
	ErrMissingDeadline      = errors.New("ledger: plannedEndDate is required")
	ErrInvalidAmount        = errors.New("ledger: amountWords must be non-negative")
)

const dateLayout = "2006-01-02"

// Ledger holds per-day allocated words, per-day overrides and the accepted
// task log, with every mutation serialized against every other.
type Ledger struct {
	mu sync.Mutex

	capacity map[string]float64
	override map[string]float64
	tasks    []model.AcceptedTaskRecord

	defaultCapacity float64
	bizday          bizday.Predicate
	dataDir         string
	now             func() time.Time
	logger          *slog.Logger

	entropy *ulid.MonotonicEntropy
}

// New constructs a Ledger and loads any persisted state from dataDir.
func New(logger *slog.Logger, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		capacity:        make(map[string]float64),
		override:        make(map[string]float64),
		defaultCapacity: 5000,
		bizday:          bizday.Weekday{},
		now:             time.Now,
		logger:          logger,
		entropy:         ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}

	if err := jsonfile.Load(l.capacityPath(), &l.capacity); err != nil {
		return nil, err
	}
	if err := jsonfile.Load(l.overridePath(), &l.override); err != nil {
		return nil, err
	}
	if err := jsonfile.Load(l.tasksPath(), &l.tasks); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) capacityPath() string { return filepath.Join(l.dataDir, "capacity.json") }
func (l *Ledger) overridePath() string { return filepath.Join(l.dataDir, "dailyOverride.json") }
func (l *Ledger) tasksPath() string    { return filepath.Join(l.dataDir, "acceptedTasks.json") }
func (l *Ledger) logPath() string      { return filepath.Join(l.dataDir, "capacityLog.json") }

func (l *Ledger) persistCapacity() error {
	if err := jsonfile.Save(l.capacityPath(), l.capacity); err != nil {
		l.logger.Error("ledger: persist capacity failed", "err", err)
		return err
	}
	return nil
}

func (l *Ledger) persistOverride() error {
	if err := jsonfile.Save(l.overridePath(), l.override); err != nil {
		l.logger.Error("ledger: persist override failed", "err", err)
		return err
	}
	return nil
}

func (l *Ledger) persistTasks() error {
	if err := jsonfile.Save(l.tasksPath(), l.tasks); err != nil {
		l.logger.Error("ledger: persist accepted tasks failed", "err", err)
		return err
	}
	return nil
}

func (l *Ledger) appendLog(entry model.CapacityLogEntry) {
	entry.ID = shortuuid.New()
	entry.Timestamp = l.now()

	var existing []model.CapacityLogEntry
	_ = jsonfile.Load(l.logPath(), &existing)
	existing = append(existing, entry)
	if err := jsonfile.Save(l.logPath(), existing); err != nil {
		l.logger.Error("ledger: persist capacity log failed", "err", err)
	}
}

func (l *Ledger) effective(date string) float64 {
	if c, ok := l.override[date]; ok {
		return c
	}
	return l.defaultCapacity
}

func (l *Ledger) remaining(date string) float64 {
	return l.effective(date) - l.capacity[date]
}

// Allocate plans amountWords across business days ending no later than
// plannedEndDate, filling the latest available day first. On success it
// commits the reservation, records an accepted-task, and returns it.
func (l *Ledger) Allocate(amountWords float64, plannedEndDate string, orderID, workflowName *string) (*model.AcceptedTaskRecord, error) {
	if plannedEndDate == "" {
		return nil, ErrMissingDeadline
	}
	if amountWords < 0 {
		return nil, ErrInvalidAmount
	}

	deadline, err := parseDeadline(plannedEndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingDeadline, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	today := startOfDay(l.now())
	remainingAmount := amountWords
	var plan []model.AllocationEntry

	for d := startOfDay(deadline); !d.Before(today) && remainingAmount > 0; d = d.AddDate(0, 0, -1) {
		if !l.bizday.IsBusinessDay(d) {
			continue
		}
		key := d.Format(dateLayout)
		avail := l.remaining(key)
		if avail <= 0 {
			continue
		}
		reserve := math.Min(avail, remainingAmount)
		if reserve <= 0 {
			continue
		}
		plan = append(plan, model.AllocationEntry{Date: key, Amount: reserve})
		remainingAmount -= reserve
	}

	if remainingAmount > 1e-9 {
		return nil, ErrInsufficientCapacity
	}

	for _, entry := range plan {
		l.capacity[entry.Date] += entry.Amount
	}
	if err := l.persistCapacity(); err != nil {
		l.logger.Warn("ledger: allocate committed in memory despite persistence failure")
	}

	record := model.AcceptedTaskRecord{
		ID:             l.newTaskID(),
		OrderID:        orderID,
		WorkflowName:   workflowName,
		AmountWords:    amountWords,
		PlannedEndDate: plannedEndDate,
		AllocationPlan: plan,
		AcceptedAt:     l.now(),
	}
	l.tasks = append(l.tasks, record)
	if err := l.persistTasks(); err != nil {
		l.logger.Warn("ledger: accepted-task record committed in memory despite persistence failure")
	}

	return &record, nil
}

func (l *Ledger) newTaskID() string {
	id := ulid.MustNew(ulid.Timestamp(l.now()), l.entropy)
	return id.String()
}

// Release decrements capacity[date] by amount for each plan entry, clamped
// to zero; a date that reaches zero is removed from the map.
func (l *Ledger) Release(plan []model.AllocationEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range plan {
		v := l.capacity[entry.Date] - entry.Amount
		if v <= 0 {
			delete(l.capacity, entry.Date)
			continue
		}
		l.capacity[entry.Date] = v
	}
	return l.persistCapacity()
}

// Adjust adds delta (signed) to capacity[date], clamped to zero.
func (l *Ledger) Adjust(date string, delta float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	v := l.capacity[date] + delta
	if v < 0 {
		v = 0
	}
	l.capacity[date] = v
	l.appendLog(model.CapacityLogEntry{Type: "adjust", Date: date, Amount: delta})
	return l.persistCapacity()
}

// Reset clears every capacity entry.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.capacity = make(map[string]float64)
	return l.persistCapacity()
}

// SetOverride replaces the baseline capacity for date.
func (l *Ledger) SetOverride(date string, capacity float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.override[date] = capacity
	l.appendLog(model.CapacityLogEntry{Type: "override", Date: date, Amount: capacity})
	return l.persistOverride()
}

// ClearOverride removes date's override, reverting it to the baseline.
func (l *Ledger) ClearOverride(date string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.override, date)
	l.appendLog(model.CapacityLogEntry{Type: "clearOverride", Date: date})
	return l.persistOverride()
}

// SyncWithTasks rebuilds capacity from the sum of all live task allocations,
// reporting the resulting snapshot, the numeric diff against the prior
// total, and any overrides dropped because their date has passed.
func (l *Ledger) SyncWithTasks() (*model.SyncResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var priorTotal float64
	for _, v := range l.capacity {
		priorTotal += v
	}

	rebuilt := make(map[string]float64)
	for _, t := range l.tasks {
		for _, entry := range t.AllocationPlan {
			rebuilt[entry.Date] += entry.Amount
		}
	}
	l.capacity = rebuilt

	var newTotal float64
	for _, v := range rebuilt {
		newTotal += v
	}

	today := startOfDay(l.now()).Format(dateLayout)
	var deleted []string
	for date := range l.override {
		if date < today {
			deleted = append(deleted, date)
		}
	}
	sort.Strings(deleted)
	for _, date := range deleted {
		delete(l.override, date)
	}

	if err := l.persistCapacity(); err != nil {
		return nil, err
	}
	if len(deleted) > 0 {
		if err := l.persistOverride(); err != nil {
			return nil, err
		}
	}

	snapshot := make(map[string]float64, len(rebuilt))
	for k, v := range rebuilt {
		snapshot[k] = v
	}

	return &model.SyncResult{
		After:            snapshot,
		Diff:             newTotal - priorTotal,
		DeletedOverrides: deleted,
	}, nil
}

// PruneBefore deletes capacity/override entries and plan days strictly
// before today (or in extraDates), dropping tasks whose plan becomes empty.
func (l *Ledger) PruneBefore(today string, extraDates []string) (*model.PruneResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cut := make(map[string]struct{}, len(extraDates))
	for _, d := range extraDates {
		cut[d] = struct{}{}
	}
	isPast := func(date string) bool {
		if date < today {
			return true
		}
		_, ok := cut[date]
		return ok
	}

	result := &model.PruneResult{}

	for date := range l.capacity {
		if isPast(date) {
			delete(l.capacity, date)
			result.Deleted++
		}
	}
	for date := range l.override {
		if isPast(date) {
			delete(l.override, date)
			result.Deleted++
		}
	}

	var survivors []model.AcceptedTaskRecord
	for _, t := range l.tasks {
		var kept []model.AllocationEntry
		for _, entry := range t.AllocationPlan {
			if isPast(entry.Date) {
				result.AllocationsRemoved++
				continue
			}
			kept = append(kept, entry)
		}
		if len(kept) == 0 {
			result.TasksRemoved++
			continue
		}
		t.AllocationPlan = kept
		survivors = append(survivors, t)
	}
	l.tasks = survivors

	if err := l.persistCapacity(); err != nil {
		return nil, err
	}
	if err := l.persistOverride(); err != nil {
		return nil, err
	}
	if err := l.persistTasks(); err != nil {
		return nil, err
	}
	return result, nil
}

// CapacityMap returns a snapshot copy of the capacity map.
func (l *Ledger) CapacityMap() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]float64, len(l.capacity))
	for k, v := range l.capacity {
		out[k] = v
	}
	return out
}

// OverrideMap returns a snapshot copy of the override map.
func (l *Ledger) OverrideMap() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]float64, len(l.override))
	for k, v := range l.override {
		out[k] = v
	}
	return out
}

// Remaining reports remaining(date) for a single date, for the
// GET /api/capacity/:date handler.
func (l *Ledger) Remaining(date string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining(date)
}

// Tasks returns a snapshot of every accepted-task record plus a summary.
func (l *Ledger) Tasks() ([]model.AcceptedTaskRecord, model.TaskSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.AcceptedTaskRecord, len(l.tasks))
	copy(out, l.tasks)

	summary := model.TaskSummary{Total: len(out)}
	return out, summary
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func parseDeadline(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04", dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized plannedEndDate layout: %q", s)
}
