package rabbitmq

import (
	"encoding/json"
	"fmt"

	"github.com/telemetra/device-event-svc/internal/models"
)

// ActivityPublisher publishes device-activity tasks to the configured queue.
// It satisfies the ingestion service's publisher interface.
type ActivityPublisher struct {
	conn  *Connection
	queue string
}

func NewActivityPublisher(conn *Connection, queue string) *ActivityPublisher {
	return &ActivityPublisher{conn: conn, queue: queue}
}

// PublishDeviceActivity serializes the task and publishes it to the activity
// queue via the default exchange.
func (p *ActivityPublisher) PublishDeviceActivity(msg models.DeviceActivityMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal device activity message: %w", err)
	}
	return p.conn.PublishMessage("", p.queue, body)
}
