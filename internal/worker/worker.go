package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/telemetra/device-event-svc/internal/config"
	"github.com/telemetra/device-event-svc/internal/consumer"
	"github.com/telemetra/device-event-svc/internal/models"
	"github.com/telemetra/device-event-svc/internal/rabbitmq"
	"github.com/telemetra/device-event-svc/internal/repository"
)

// Worker consumes device-activity tasks and applies the last-seen update to
// devices. It runs fully decoupled from the request path: ingestion never
// waits on it, and its failures never propagate back to an ingestion call.
type Worker struct {
	cfg         *config.WorkerConfig
	conn        *rabbitmq.Connection
	db          *gorm.DB
	devices     *repository.DeviceRepository
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	consumerTag string
	started     bool
}

func NewWorker(
	cfg *config.WorkerConfig,
	conn *rabbitmq.Connection,
	db *gorm.DB,
	devices *repository.DeviceRepository,
	logger *zap.Logger,
) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		cfg:         cfg,
		conn:        conn,
		db:          db,
		devices:     devices,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		consumerTag: fmt.Sprintf("activity-worker-%d", time.Now().Unix()),
	}
}

// Start registers the consumer on the activity queue and begins processing.
func (w *Worker) Start() error {
	if w.cfg.ActivityQueue == "" {
		return fmt.Errorf("activity queue is required")
	}

	if err := w.startConsuming(); err != nil {
		return err
	}

	w.started = true
	w.logger.Info("Activity worker started",
		zap.String("queue", w.cfg.ActivityQueue),
		zap.String("consumer_tag", w.consumerTag),
	)
	return nil
}

func (w *Worker) startConsuming() error {
	if err := w.conn.SetQoS(w.cfg.PrefetchCount); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	messages, err := w.conn.ConsumeMessages(w.cfg.ActivityQueue, w.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming from queue %s: %w", w.cfg.ActivityQueue, err)
	}

	go w.processMessages(messages)
	return nil
}

// Stop cancels the consumer and halts message processing.
func (w *Worker) Stop() error {
	w.logger.Info("Stopping activity worker", zap.String("consumer_tag", w.consumerTag))
	w.cancel()

	if ch := w.conn.GetChannel(); ch != nil {
		if err := ch.Cancel(w.consumerTag, false); err != nil {
			w.logger.Error("Failed to cancel consumer",
				zap.String("consumer_tag", w.consumerTag),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (w *Worker) processMessages(messages <-chan amqp.Delivery) {
	for {
		select {
		case <-w.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				// Channel closed under us; keep retrying until the connection
				// recovers or the worker is stopped.
				w.logger.Warn("Message channel closed, restarting consumer",
					zap.String("queue", w.cfg.ActivityQueue),
				)
				for w.started {
					select {
					case <-w.ctx.Done():
						return
					default:
					}

					time.Sleep(2 * time.Second)
					if !w.conn.IsHealthy() {
						continue
					}
					if err := w.startConsuming(); err != nil {
						w.logger.Error("Failed to restart consumer, will retry",
							zap.String("queue", w.cfg.ActivityQueue),
							zap.Error(err),
						)
						time.Sleep(5 * time.Second)
						continue
					}
					return
				}
				return
			}
			consumer.ProcessMessage(w.logger, w.cfg.ActivityQueue, msg, w)
		}
	}
}

// HandleTask implements consumer.TaskHandler. A malformed message or an
// unknown device id cannot be fixed by redelivery, so both are swallowed with
// a log line; only store failures surface as errors.
func (w *Worker) HandleTask(body []byte) error {
	var msg models.DeviceActivityMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		w.logger.Error("Failed to unmarshal device activity message",
			zap.ByteString("body", body),
			zap.Error(err),
		)
		return nil
	}

	deviceID, err := uuid.Parse(msg.DeviceID)
	if err != nil {
		w.logger.Error("Invalid device_id in activity message",
			zap.String("device_id", msg.DeviceID),
			zap.Error(err),
		)
		return nil
	}

	if err := w.devices.MarkSeen(w.db, deviceID, msg.OccurredAt); err != nil {
		return fmt.Errorf("failed to mark device %s seen: %w", deviceID, err)
	}

	w.logger.Debug("Applied device activity",
		zap.String("device_id", msg.DeviceID),
		zap.Time("occurred_at", msg.OccurredAt),
	)
	return nil
}
