package service

import (
	"context"
	"encoding/json"
	"time"

	"textbook-chat-be/internal/pkg/logger"
	"textbook-chat-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

// EventForwarder ships an event outside the process (NATS in production).
type EventForwarder interface {
	Publish(ctx context.Context, event events.Event) error
}

// defaultForwardTimeout bounds one forward so a stalled broker cannot hold
// up the rest of the topic.
const defaultForwardTimeout = 3 * time.Second

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	forwarder  EventForwarder
	logger     logger.ILogger

	forwardTimeout time.Duration
}

// NewConsumerService drains the activity topic. A nil forwarder only logs.
func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	forwarder EventForwarder,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		forwarder:  forwarder,
		logger:     log,

		forwardTimeout: defaultForwardTimeout,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

// processMessage always acks: activity events are best-effort and a
// redelivery loop against a dead broker would only pile up.
func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var event events.BaseEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		cs.logger.Error("ActivityConsumer", "Failed to unmarshal event", map[string]interface{}{"error": err.Error()})
		return
	}

	if cs.forwarder == nil {
		cs.logger.Debug("ActivityConsumer", "No forwarder, event dropped", map[string]interface{}{"type": event.Type})
		return
	}

	fwdCtx, cancel := context.WithTimeout(ctx, cs.forwardTimeout)
	defer cancel()

	if err := cs.forwarder.Publish(fwdCtx, event); err != nil {
		cs.logger.Warn("ActivityConsumer", "Failed to forward event", map[string]interface{}{
			"type":  event.Type,
			"error": err.Error(),
		})
		return
	}

	cs.logger.Debug("ActivityConsumer", "Event forwarded", map[string]interface{}{"type": event.Type})
}
