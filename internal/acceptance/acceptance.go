// Package acceptance implements the boundary between the mailbox fleet and
// the rest of the system: the admission decision from spec §4.B, the
// non-blocking fetch→acceptor hand-off from §4.D/§5, and dispatch of
// accepted tasks to the out-of-scope browser-automation worker.
//
// The hand-off itself is an in-process Watermill gochannel topic, the same
// publish/consume shape the teacher uses for its external AMQP pipeline
// (internal/handler/amqp/bind.go), just with the "external bus" replaced by
// an in-process one so a slow admission decision never blocks the IMAP
// fetch loop.
package acceptance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/vendorflow/taskintake/internal/domain/event"
	"github.com/vendorflow/taskintake/internal/domain/model"
	"github.com/vendorflow/taskintake/internal/ledger"
)

const offersTopic = "task-offers"

// BusPublisher is the dashboard bus's inbound side, satisfied by
// internal/bus.Hub.
type BusPublisher interface {
	Publish(ev event.Eventer)
}

// AutomationDispatcher hands an accepted task to the browser-automation
// worker. Satisfied by an AMQP-backed implementation in this package.
type AutomationDispatcher interface {
	Dispatch(ctx context.Context, offer model.TaskOffer, plan []model.AllocationEntry) error
}

// Acceptor is the mailbox fleet's non-blocking hand-off target: Accept
// publishes the offer onto an in-process topic and returns immediately.
type Acceptor struct {
	publisher message.Publisher
	logger    *slog.Logger
}

func NewAcceptor(publisher message.Publisher, logger *slog.Logger) *Acceptor {
	return &Acceptor{publisher: publisher, logger: logger}
}

// Accept satisfies mailbox.Acceptor. It never blocks on the ledger or the
// dashboard bus — it only enqueues onto the in-process gochannel topic.
func (a *Acceptor) Accept(offer model.TaskOffer) {
	payload, err := json.Marshal(offer)
	if err != nil {
		a.logger.Error("acceptance: marshal offer failed", "err", err)
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := a.publisher.Publish(offersTopic, msg); err != nil {
		a.logger.Error("acceptance: publish offer failed", "err", err)
	}
}

// NewPubSub builds the in-process gochannel backing the hand-off, sized so
// a burst of fetched messages never blocks the fetch loop under normal
// acceptor latency.
func NewPubSub(logger *slog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            256,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: false,
	}, watermill.NewSlogLogger(logger))
}

// Decider consumes offers from the hand-off topic and applies the admission
// decision from §4.B.
type Decider struct {
	ledger     *ledger.Ledger
	bus        BusPublisher
	dispatcher AutomationDispatcher
	logger     *slog.Logger

	countsMu       sync.Mutex
	onHoldCount    int
	completedCount int
}

func NewDecider(l *ledger.Ledger, bus BusPublisher, dispatcher AutomationDispatcher, logger *slog.Logger) *Decider {
	return &Decider{ledger: l, bus: bus, dispatcher: dispatcher, logger: logger}
}

// RegisterHandler wires the Decider onto router as a no-publish handler over
// the offers topic, mirroring the teacher's Bind[T]-style decode→domain-call
// wiring, generalized to the single concrete offer type this domain has.
func RegisterHandler(router *message.Router, sub message.Subscriber, d *Decider) error {
	router.AddNoPublisherHandler("offer-acceptor", offersTopic, sub, d.handle)
	return nil
}

func (d *Decider) handle(msg *message.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("acceptance: handler panic", "recover", r)
			err = fmt.Errorf("acceptance: panic: %v", r)
		}
	}()

	var offer model.TaskOffer
	if jsonErr := json.Unmarshal(msg.Payload, &offer); jsonErr != nil {
		d.logger.Error("acceptance: decode offer failed", "err", jsonErr)
		return nil // poison message: ack it, do not retry forever
	}

	d.decide(msg.Context(), offer)
	return nil
}

func (d *Decider) decide(ctx context.Context, offer model.TaskOffer) {
	switch {
	case offer.AcceptURL != nil && !offer.IsOnHold():
		d.admit(ctx, offer)
	case offer.AcceptURL == nil && offer.IsOnHold():
		d.countsMu.Lock()
		d.onHoldCount++
		completed, onHold := d.completedCount, d.onHoldCount
		d.countsMu.Unlock()
		d.bus.Publish(event.NewTasksUpdatedEvent(event.TasksUpdatedPayload{
			CompletedCount: completed,
			OnHoldCount:    onHold,
		}))
	default:
		// Neither an actionable accept link nor a visible on-hold offer:
		// dropped silently, per §4.B.
	}
}

func (d *Decider) admit(ctx context.Context, offer model.TaskOffer) {
	if offer.AmountWords == nil || offer.PlannedEndDate == nil {
		d.logger.Warn("acceptance: offer missing amount or deadline, rejecting",
			"mailbox", offer.Mailbox, "uid", offer.SourceUID)
		return
	}

	record, err := d.ledger.Allocate(*offer.AmountWords, *offer.PlannedEndDate, offer.OrderID, offer.WorkflowName)
	if err != nil {
		d.logger.Info("acceptance: allocate rejected", "err", err, "mailbox", offer.Mailbox, "uid", offer.SourceUID)
		return
	}

	d.countsMu.Lock()
	d.completedCount++
	d.countsMu.Unlock()
	for _, entry := range record.AllocationPlan {
		d.bus.Publish(event.NewCapacityUpdatedEvent(entry.Date))
	}

	if err := d.dispatcher.Dispatch(ctx, offer, record.AllocationPlan); err != nil {
		d.logger.Error("acceptance: dispatch to automation worker failed", "err", err,
			"orderId", deref(offer.OrderID))
	}
}

// Counts reports the running completed/on-hold totals for the dashboard's
// updateStatus event.
func (d *Decider) Counts() (completed, onHold int) {
	d.countsMu.Lock()
	defer d.countsMu.Unlock()
	return d.completedCount, d.onHoldCount
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
