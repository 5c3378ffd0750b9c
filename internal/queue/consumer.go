package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/pyquest/internal/domain"
)

// Handler applies sync messages on the server side
type Handler interface {
	HandleProgress(ctx context.Context, msg *ProgressMessage) error
	HandleAttempt(ctx context.Context, attempt *domain.Attempt) error
}

// errMalformed marks messages that can never be processed
var errMalformed = errors.New("malformed message")

// Consumer consumes the sync queues
type Consumer struct {
	conn       *Connection
	handler    Handler
	logger     *slog.Logger
	workers    int
	prefetch   int
	timeout    time.Duration
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int           // concurrent workers per queue
	Prefetch int           // unacknowledged deliveries per channel
	Timeout  time.Duration // per message
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  3,
		Prefetch: 10,
		Timeout:  10 * time.Second,
	}
}

// NewConsumer creates a new queue consumer
func NewConsumer(conn *Connection, handler Handler, cfg ConsumerConfig) *Consumer {
	defaults := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = defaults.Prefetch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	return &Consumer{
		conn:     conn,
		handler:  handler,
		logger:   conn.logger,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.Timeout,
	}
}

// Start begins consuming both sync queues
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	for _, queue := range []string{ProgressQueueName, AttemptQueueName} {
		msgs, err := ch.Consume(
			queue,
			"",    // consumer tag (auto-generated)
			false, // manual ack
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to consume %s: %w", queue, err)
		}

		for i := 0; i < c.workers; i++ {
			c.wg.Add(1)
			go c.worker(ctx, queue, i, msgs)
		}
	}

	c.logger.Info("sync consumer started", "workers", c.workers, "prefetch", c.prefetch)
	return nil
}

func (c *Consumer) worker(ctx context.Context, queue string, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info("message channel closed", "queue", queue, "worker_id", id)
				return
			}
			c.settle(msg, c.process(ctx, queue, msg.Body), msg.Redelivered)
		}
	}
}

// process decodes and applies a single message body
func (c *Consumer) process(ctx context.Context, queue string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch queue {
	case ProgressQueueName:
		var msg ProgressMessage
		if err := json.Unmarshal(body, &msg); err != nil || msg.UserID == "" {
			return fmt.Errorf("%w: progress: %v", errMalformed, err)
		}
		return c.handler.HandleProgress(ctx, &msg)
	case AttemptQueueName:
		var msg AttemptMessage
		if err := json.Unmarshal(body, &msg); err != nil || msg.Attempt.UserID == "" {
			return fmt.Errorf("%w: attempt: %v", errMalformed, err)
		}
		return c.handler.HandleAttempt(ctx, &msg.Attempt)
	default:
		return fmt.Errorf("%w: unknown queue %s", errMalformed, queue)
	}
}

// acknowledger is the part of amqp.Delivery used to settle a message
type acknowledger interface {
	Ack(multiple bool) error
	Reject(requeue bool) error
	Nack(multiple, requeue bool) error
}

// settle acks successes, drops malformed messages and requeues a failed
// message once
func (c *Consumer) settle(msg acknowledger, err error, redelivered bool) {
	var settleErr error
	switch {
	case err == nil:
		settleErr = msg.Ack(false)
	case errors.Is(err, errMalformed):
		c.logger.Error("dropping malformed message", "error", err)
		settleErr = msg.Reject(false)
	default:
		c.logger.Error("sync message failed", "error", err, "redelivered", redelivered)
		settleErr = msg.Nack(false, !redelivered)
	}
	if settleErr != nil {
		c.logger.Error("failed to settle message", "error", settleErr)
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	c.logger.Info("sync consumer stopped")
}
