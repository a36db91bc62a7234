package consumer

import (
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// TaskHandler is implemented by consumers that process queue task bodies.
type TaskHandler interface {
	HandleTask(body []byte) error
}

// ProcessMessage runs one delivery through a handler and settles it:
// ACK on success, NACK without requeue on failure. Tasks on the activity
// queue are best-effort, so a failed task is dropped rather than redelivered
// in a loop.
func ProcessMessage(logger *zap.Logger, queue string, msg amqp.Delivery, handler TaskHandler) {
	if err := handler.HandleTask(msg.Body); err != nil {
		logger.Error("Failed to process message from queue",
			zap.String("queue", queue),
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		rejectMessage(logger, msg)
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Error("Failed to ack message from queue",
			zap.String("queue", queue),
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		return
	}

	logger.Debug("Message from queue processed",
		zap.String("queue", queue),
		zap.Uint64("delivery_tag", msg.DeliveryTag),
	)
}

func rejectMessage(logger *zap.Logger, msg amqp.Delivery) {
	if err := msg.Nack(false, false); err != nil {
		logger.Error("Failed to nack a message",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
	}
}
