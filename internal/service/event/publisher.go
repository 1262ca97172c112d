package event

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careportal-api/internal/model"
	"github.com/jwalitptl/careportal-api/pkg/logger"
	"github.com/jwalitptl/careportal-api/pkg/messaging"
)

// Publisher announces completed state transitions. Delivery is best-effort:
// a failure is logged and never undoes the transition.
type Publisher interface {
	Publish(ctx context.Context, eventType string, subjectID uuid.UUID, actorID *uuid.UUID, data map[string]interface{})
}

type brokerPublisher struct {
	broker  messaging.Broker
	channel string
	log     *logger.Logger
	now     func() time.Time
}

func NewPublisher(broker messaging.Broker, channel string, log *logger.Logger) Publisher {
	if broker == nil {
		return Nop()
	}
	return &brokerPublisher{
		broker:  broker,
		channel: channel,
		log:     log,
		now:     time.Now,
	}
}

func (p *brokerPublisher) Publish(ctx context.Context, eventType string, subjectID uuid.UUID, actorID *uuid.UUID, data map[string]interface{}) {
	evt := model.DomainEvent{
		ID:         uuid.New(),
		Type:       eventType,
		SubjectID:  subjectID,
		ActorID:    actorID,
		Data:       data,
		OccurredAt: p.now().UTC(),
	}
	msg := messaging.Message{Type: eventType, Payload: evt}
	if err := p.broker.Publish(ctx, p.channel, msg); err != nil {
		p.log.WithContext(ctx).Error(err, "failed to publish event",
			"event_type", eventType,
			"subject_id", subjectID.String(),
		)
	}
}

type nopPublisher struct{}

// Nop discards every event.
func Nop() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, string, uuid.UUID, *uuid.UUID, map[string]interface{}) {}
