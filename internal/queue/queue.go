package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TopicCampaignRuns carries model.RunRequest payloads.
const TopicCampaignRuns = "campaign_runs"

const defaultMaxRetries = 3

// Handler processes one payload. A non-nil error asks for a retry.
type Handler func(ctx context.Context, payload any) error

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
}

// InMemoryQueue delivers jobs to subscribers inside the process. Each
// subscriber owns one goroutine, so its jobs run one after another.
type InMemoryQueue struct {
	mu          sync.Mutex
	subscribers map[string][]chan JobPayload
	logger      *slog.Logger

	MaxRetries int
	// Backoff is multiplied by the retry number before each retry.
	Backoff time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(logger *slog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		subscribers: make(map[string][]chan JobPayload),
		logger:      logger,
		MaxRetries:  defaultMaxRetries,
		Backoff:     500 * time.Millisecond,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish hands payload to every subscriber of topic without waiting for it
// to be processed.
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	subs := q.subscribers[topic]
	q.mu.Unlock()

	if len(subs) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	job := JobPayload{
		Payload:    payload,
		RetryCount: 0,
		MaxRetries: q.MaxRetries,
	}

	for _, jobs := range subs {
		select {
		case jobs <- job:
		default:
			return fmt.Errorf("topic %s is full", topic)
		}
	}

	return nil
}

// Subscribe starts a worker goroutine for handler that lives until ctx ends.
func (q *InMemoryQueue) Subscribe(ctx context.Context, topic string, handler Handler) error {
	jobs := make(chan JobPayload, 64)

	q.mu.Lock()
	q.subscribers[topic] = append(q.subscribers[topic], jobs)
	q.mu.Unlock()

	go func() {
		defer q.unsubscribe(topic, jobs)
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-jobs:
				q.processJob(ctx, topic, handler, job)
			}
		}
	}()

	return nil
}

func (q *InMemoryQueue) unsubscribe(topic string, jobs chan JobPayload) {
	q.mu.Lock()
	defer q.mu.Unlock()
	subs := q.subscribers[topic]
	for i, c := range subs {
		if c == jobs {
			q.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(ctx context.Context, topic string, handler Handler, job JobPayload) {
	for job.RetryCount <= job.MaxRetries {
		err := handler(ctx, job.Payload)
		if err == nil {
			q.logger.Debug("job_processed", "topic", topic)
			return
		}

		job.RetryCount++
		q.logger.Warn("job_failed", "topic", topic, "attempt", job.RetryCount, "max_retries", job.MaxRetries, "error", err)

		if job.RetryCount > job.MaxRetries {
			q.logger.Error("job_dropped", "topic", topic, "attempts", job.RetryCount)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(job.RetryCount) * q.Backoff):
		}
	}
}

var _ Queue = (*InMemoryQueue)(nil)
