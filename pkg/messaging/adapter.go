package messaging

import (
	"context"
)

// Handler processes one raw message. A returned error is reported to
// onError and does not stop consumption.
type Handler func(ctx context.Context, payload []byte) error

// Consume feeds every message on channel to handler until ctx is done or
// the subscription closes.
func Consume(ctx context.Context, broker Broker, channel string, handler Handler, onError func(error)) error {
	msgChan, err := broker.Subscribe(ctx, channel)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgChan:
			if !ok {
				return nil
			}
			if err := handler(ctx, msg); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
