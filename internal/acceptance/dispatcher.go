package acceptance

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/vendorflow/taskintake/internal/domain/model"
)

// dispatchEnvelope is the wire shape the browser-automation worker consumes:
// the offer plus the committed allocation plan, so the worker can report
// back which days it actually claimed capacity against.
type dispatchEnvelope struct {
	Offer model.TaskOffer          `json:"offer"`
	Plan  []model.AllocationEntry `json:"allocationPlan"`
}

// AMQPDispatcher publishes accepted tasks to the browser-automation
// worker's queue. It is the one place this service talks to that external
// collaborator.
type AMQPDispatcher struct {
	publisher message.Publisher
	queue     string
}

func NewAMQPDispatcher(publisher message.Publisher, queue string) *AMQPDispatcher {
	return &AMQPDispatcher{publisher: publisher, queue: queue}
}

func (d *AMQPDispatcher) Dispatch(ctx context.Context, offer model.TaskOffer, plan []model.AllocationEntry) error {
	payload, err := json.Marshal(dispatchEnvelope{Offer: offer, Plan: plan})
	if err != nil {
		return fmt.Errorf("acceptance: marshal dispatch envelope: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return d.publisher.Publish(d.queue, msg)
}
