package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/careportal-api/internal/model"
	"github.com/jwalitptl/careportal-api/pkg/logger"
	"github.com/jwalitptl/careportal-api/pkg/messaging"
)

// EventRecorder consumes domain events from the broker and writes them to
// the log as an audit trail of account transitions.
type EventRecorder struct {
	broker  messaging.Broker
	channel string
	log     *logger.Logger
}

func NewEventRecorder(broker messaging.Broker, channel string, log *logger.Logger) *EventRecorder {
	if log == nil {
		log = logger.Nop()
	}
	return &EventRecorder{broker: broker, channel: channel, log: log}
}

// Start blocks until ctx is done. Malformed messages are logged and
// skipped.
func (r *EventRecorder) Start(ctx context.Context) error {
	r.log.Info("event recorder subscribed", "channel", r.channel)
	return messaging.Consume(ctx, r.broker, r.channel, r.Handle, func(err error) {
		r.log.Warn("dropping event", "error", err.Error())
	})
}

type envelope struct {
	Type    string            `json:"type"`
	Payload model.DomainEvent `json:"payload"`
}

func (r *EventRecorder) Handle(_ context.Context, payload []byte) error {
	var msg envelope
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	if msg.Type == "" {
		return errors.New("event without type")
	}

	evt := msg.Payload
	fields := []interface{}{
		"event_id", evt.ID.String(),
		"event_type", msg.Type,
		"subject_id", evt.SubjectID.String(),
		"occurred_at", evt.OccurredAt.Format(time.RFC3339),
	}
	if evt.ActorID != nil {
		fields = append(fields, "actor_id", evt.ActorID.String())
	}
	for k, v := range evt.Data {
		fields = append(fields, "data_"+k, v)
	}
	r.log.Info("domain event", fields...)
	return nil
}
