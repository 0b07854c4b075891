package eventBus

import (
	"github.com/zsmith-jtec/AFKPI/pkg/eventBus/eventBusTypes"
	"go.uber.org/zap"
)

// EventBus fans events out to subscribed consumers without blocking the
// publisher. Consumers with a full channel miss the event.
type EventBus struct {
	consumers *eventBusTypes.ConsumerList
	logger    *zap.Logger
}

func NewEventBus(l *zap.Logger) *EventBus {
	return &EventBus{
		consumers: eventBusTypes.NewConsumerList(),
		logger:    l,
	}
}

func (eb *EventBus) Subscribe(consumer *eventBusTypes.Consumer) {
	eb.consumers.Add(consumer)
	eb.logger.Sugar().Debugw("Subscribed consumer", zap.String("consumerId", string(consumer.Id)))
}

func (eb *EventBus) Unsubscribe(consumer *eventBusTypes.Consumer) {
	eb.consumers.Remove(consumer)
	eb.logger.Sugar().Infow("Unsubscribed consumer", zap.String("consumerId", string(consumer.Id)))
}

// Publish returns the number of consumers the event was delivered to.
func (eb *EventBus) Publish(event *eventBusTypes.Event) int {
	eb.logger.Sugar().Debugw("Publishing event", zap.String("eventName", event.Name))
	delivered := 0
	for _, consumer := range eb.consumers.GetAll() {
		if consumer.Channel == nil {
			eb.logger.Sugar().Debugw("Consumer channel is nil", zap.String("consumerId", string(consumer.Id)))
			continue
		}
		if consumer.Context != nil && consumer.Context.Err() != nil {
			continue
		}
		select {
		case consumer.Channel <- event:
			delivered++
		default:
			eb.logger.Sugar().Warnw("Consumer channel is full, dropping event",
				zap.String("consumerId", string(consumer.Id)),
				zap.String("eventName", event.Name),
			)
		}
	}
	return delivered
}
