package service

import (
	"context"
	"encoding/json"

	"neon-assistant-be/internal/pkg/logger"
	"neon-assistant-be/pkg/events"
	natsbus "neon-assistant-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IConsumerService interface {
	Start(ctx context.Context) error
}

// consumerService drains the in-process audit bus. Every executed tool call
// is logged and, when a NATS connection is available, forwarded to the
// external event stream.
type consumerService struct {
	pubSub        *gochannel.GoChannel
	natsPublisher *natsbus.Publisher
	log           logger.ILogger
}

func NewConsumerService(pubSub *gochannel.GoChannel, natsPublisher *natsbus.Publisher, log logger.ILogger) IConsumerService {
	return &consumerService{
		pubSub:        pubSub,
		natsPublisher: natsPublisher,
		log:           log,
	}
}

func (cs *consumerService) Start(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, ActionExecutedTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.handle(ctx, msg.Metadata.Get("event_type"), msg.Payload)
			msg.Ack()
		}
	}()

	return nil
}

func (cs *consumerService) handle(ctx context.Context, eventType string, payload []byte) {
	var details map[string]interface{}
	if err := json.Unmarshal(payload, &details); err != nil {
		cs.log.Warn("ConsumerService", "Dropping malformed audit event", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	cs.log.Info("ConsumerService", "Neon action executed", details)

	if cs.natsPublisher == nil {
		return
	}

	event := events.NewRawEvent(eventType, details)
	if err := cs.natsPublisher.Publish(ctx, event); err != nil {
		cs.log.Warn("ConsumerService", "Failed to forward audit event to NATS", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
