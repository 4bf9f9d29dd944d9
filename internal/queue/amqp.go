package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

const retryHeader = "x-retry-count"

// AMQPQueue publishes JSON payloads to durable RabbitMQ queues, one per topic.
// Consumers receive the raw JSON body as []byte.
type AMQPQueue struct {
	conn   *amqp.Connection
	pub    *amqp.Channel
	mu     sync.Mutex
	logger *slog.Logger

	MaxRetries int
}

func NewAMQPQueue(url string, logger *slog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	return &AMQPQueue{conn: conn, pub: ch, logger: logger, MaxRetries: defaultMaxRetries}, nil
}

func declare(ch *amqp.Channel, topic string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retries int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := declare(q.pub, topic); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	return q.pub.Publish(
		"",    // exchange
		topic, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{retryHeader: int32(retries)},
			Body:         body,
		},
	)
}

// Subscribe consumes topic on its own channel with prefetch 1 until ctx ends.
// Failed deliveries are republished with an incremented retry header and
// dropped once MaxRetries is exceeded.
func (q *AMQPQueue) Subscribe(ctx context.Context, topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to set qos: %w", err)
	}
	if _, err := declare(ch, topic); err != nil {
		ch.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	msgs, err := ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					q.logger.Warn("consumer_closed", "topic", topic)
					return
				}
				q.handleDelivery(ctx, topic, d, handler)
			}
		}
	}()

	return nil
}

func (q *AMQPQueue) handleDelivery(ctx context.Context, topic string, d amqp.Delivery, handler Handler) {
	err := handler(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	retries := RetryCount(d.Headers)
	q.logger.Warn("job_failed", "topic", topic, "attempt", retries+1, "error", err)

	if retries < q.MaxRetries {
		if perr := q.publish(topic, d.Body, retries+1); perr != nil {
			q.logger.Error("job_requeue_failed", "topic", topic, "error", perr)
			_ = d.Nack(false, true)
			return
		}
	} else {
		q.logger.Error("job_dropped", "topic", topic, "attempts", retries+1)
	}
	_ = d.Ack(false)
}

// RetryCount reads the retry header whatever integer type the broker decoded it as.
func RetryCount(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.pub.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
