package rabbitmq

import (
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/telemetra/device-event-svc/internal/config"
)

// Connection manages the RabbitMQ connection and channel with automatic
// recovery. All queue operations go through it.
type Connection struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	config       *config.RabbitMQConfig
	logger       *zap.Logger
	stopChan     chan struct{}
	mu           sync.RWMutex
	reconnecting bool
	reconnectMu  sync.Mutex
}

func NewConnection(cfg *config.RabbitMQConfig, logger *zap.Logger) *Connection {
	return &Connection{
		config:   cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Connect establishes the initial connection, retrying with exponential
// backoff, and starts the reconnect monitor.
func (c *Connection) Connect() error {
	backoff := time.Second
	maxBackoff := 30 * time.Second
	maxInitialAttempts := 10

	for attempt := 1; ; attempt++ {
		if err := c.connect(); err != nil {
			if attempt >= maxInitialAttempts {
				return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxInitialAttempts, err)
			}
			c.logger.Warn("Initial connection to RabbitMQ failed, retrying",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		break
	}

	go c.monitorConnection()
	return nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		c.conn.Close()
	}
	if c.channel != nil && !c.channel.IsClosed() {
		c.channel.Close()
	}

	amqpConfig := amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Vhost:     c.config.VHost,
		Properties: amqp.Table{
			"connection_name": "device-event-svc",
		},
	}

	conn, err := amqp.DialConfig(c.config.ConnectionURL(), amqpConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	c.conn = conn
	c.channel = channel

	c.logger.Info("Connected to RabbitMQ",
		zap.String("host", c.config.Host),
		zap.String("vhost", c.config.VHost),
	)
	return nil
}

// monitorConnection watches for close notifications and reconnects.
func (c *Connection) monitorConnection() {
	for {
		c.mu.RLock()
		if c.conn == nil || c.channel == nil {
			c.mu.RUnlock()
			return
		}
		connClose := c.conn.NotifyClose(make(chan *amqp.Error, 1))
		channelClose := c.channel.NotifyClose(make(chan *amqp.Error, 1))
		c.mu.RUnlock()

		select {
		case <-c.stopChan:
			return
		case err := <-connClose:
			if err != nil {
				c.logger.Error("RabbitMQ connection closed, reconnecting", zap.Error(err))
				c.reconnect()
			}
		case err := <-channelClose:
			if err != nil {
				c.logger.Error("RabbitMQ channel closed, reconnecting", zap.Error(err))
				c.reconnect()
			}
		}
	}
}

func (c *Connection) reconnect() {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()

	defer func() {
		c.reconnectMu.Lock()
		c.reconnecting = false
		c.reconnectMu.Unlock()
	}()

	backoff := time.Second
	maxBackoff := 30 * time.Second

	for attempt := 1; ; attempt++ {
		select {
		case <-c.stopChan:
			return
		default:
		}

		if err := c.connect(); err != nil {
			c.logger.Warn("Failed to reconnect to RabbitMQ, retrying",
				zap.Error(err),
				zap.Int("attempt", attempt),
			)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.logger.Info("Reconnected to RabbitMQ", zap.Int("attempt", attempt))
		return
	}
}

// Close shuts the connection down and stops the monitor.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.stopChan:
	default:
		close(c.stopChan)
	}

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.logger.Info("RabbitMQ connection closed")
	}
}

// DeclareQueue declares a durable queue, creating it if absent.
func (c *Connection) DeclareQueue(name string) error {
	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return fmt.Errorf("RabbitMQ channel is not initialized or closed")
	}

	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}

// PublishMessage publishes a persistent message, retrying briefly when the
// channel is mid-reconnect.
func (c *Connection) PublishMessage(exchange, routingKey string, body []byte) error {
	maxRetries := 3
	retryDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		c.mu.RLock()
		ch := c.channel
		conn := c.conn
		c.mu.RUnlock()

		if ch == nil || ch.IsClosed() || conn == nil || conn.IsClosed() {
			if attempt < maxRetries-1 {
				time.Sleep(retryDelay)
				retryDelay *= 2
				continue
			}
			return fmt.Errorf("RabbitMQ channel unavailable after %d attempts", maxRetries)
		}

		err := ch.Publish(exchange, routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		})
		if err == nil {
			return nil
		}

		if attempt < maxRetries-1 && (ch.IsClosed() || conn.IsClosed()) {
			c.logger.Warn("Publish failed due to connection issue, retrying",
				zap.Error(err),
				zap.Int("attempt", attempt+1),
			)
			time.Sleep(retryDelay)
			retryDelay *= 2
			continue
		}
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return fmt.Errorf("failed to publish message after %d attempts", maxRetries)
}

// ConsumeMessages starts consuming deliveries from a queue.
func (c *Connection) ConsumeMessages(queue, consumer string) (<-chan amqp.Delivery, error) {
	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return nil, fmt.Errorf("RabbitMQ channel is not initialized or closed")
	}

	messages, err := ch.Consume(
		queue,
		consumer,
		false, // autoAck: workers ack manually
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	return messages, nil
}

// SetQoS sets the per-consumer prefetch count.
func (c *Connection) SetQoS(prefetchCount int) error {
	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return fmt.Errorf("RabbitMQ channel is not initialized or closed")
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	return nil
}

// GetChannel exposes the raw channel for consumer cancellation.
func (c *Connection) GetChannel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// IsHealthy reports whether both connection and channel are open.
func (c *Connection) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed()
}
