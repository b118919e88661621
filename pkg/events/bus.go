package events

import (
	"context"
	"encoding/json"
	"fmt"

	"portfolio-chat/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const DefaultTopic = "chat.events"

// Publisher is satisfied by the in-process Bus and by the NATS publisher.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Bus interface {
	Publisher
	// Subscribe delivers every event published after the call until ctx is
	// done, at which point the channel is closed.
	Subscribe(ctx context.Context) (<-chan Event, error)
	Close() error
}

// WatermillBus fans chat events out in-process over a watermill go channel.
type WatermillBus struct {
	pubSub *gochannel.GoChannel
	topic  string
	logger logger.ILogger
}

func NewBus(log logger.ILogger) *WatermillBus {
	log = logger.OrNop(log)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		NewWatermillLogger(log),
	)
	return &WatermillBus{
		pubSub: pubSub,
		topic:  DefaultTopic,
		logger: log,
	}
}

func (b *WatermillBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(BaseEvent{
		Type:       event.EventType(),
		Data:       event.Payload(),
		OccurredAt: event.Timestamp(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_type", event.EventType())
	msg.SetContext(ctx)

	if err := b.pubSub.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.EventType(), err)
	}
	return nil
}

func (b *WatermillBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	messages, err := b.pubSub.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, err
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		for msg := range messages {
			var evt BaseEvent
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				b.logger.Error("EVENTS", "Failed to decode event", map[string]interface{}{"error": err.Error()})
				msg.Ack() // Ack invalid messages so they are not redelivered
				continue
			}
			msg.Ack()

			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *WatermillBus) Close() error {
	return b.pubSub.Close()
}

// NopBus drops everything.
type NopBus struct{}

func (NopBus) Publish(context.Context, Event) error { return nil }

func (NopBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

func (NopBus) Close() error { return nil }

// Forward relays every event from the bus to dst until ctx is done. Delivery
// failures are logged and skipped.
func Forward(ctx context.Context, bus Bus, dst Publisher, log logger.ILogger) error {
	log = logger.OrNop(log)
	ch, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	go func() {
		for evt := range ch {
			if err := dst.Publish(ctx, evt); err != nil {
				log.Warn("EVENTS", "Failed to forward event", map[string]interface{}{
					"event_type": evt.EventType(),
					"error":      err.Error(),
				})
			}
		}
	}()
	return nil
}
