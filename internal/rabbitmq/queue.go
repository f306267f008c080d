package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"docbulk/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const JOB_ROUTING_KEY = "jobs.run"

// JobMessage asks a consumer to run a persisted job
type JobMessage struct {
	JobID string `json:"job_id"`
	Kind  string `json:"kind"`
}

// JobQueue publishes and consumes job messages on the configured exchange and queue
type JobQueue struct {
	client   Client
	exchange string
	queue    string
}

// NewJobQueue wraps client with the job topology from cfg
func NewJobQueue(client Client, cfg config.RabbitMQConfig) *JobQueue {
	return &JobQueue{
		client:   client,
		exchange: cfg.ExchangeName,
		queue:    cfg.QueueName,
	}
}

// Setup declares the exchange and queue and binds them
func (q *JobQueue) Setup() error {
	if err := q.client.DeclareExchange(q.exchange, amqp.ExchangeDirect); err != nil {
		return fmt.Errorf("declare exchange %s: %w", q.exchange, err)
	}

	if _, err := q.client.DeclareQueue(q.queue); err != nil {
		return fmt.Errorf("declare queue %s: %w", q.queue, err)
	}

	if err := q.client.BindQueue(q.queue, q.exchange, JOB_ROUTING_KEY); err != nil {
		return fmt.Errorf("bind queue %s: %w", q.queue, err)
	}

	log.Info().
		Str("exchange", q.exchange).
		Str("queue", q.queue).
		Msg("Job queue topology ready")
	return nil
}

// Publish enqueues msg
func (q *JobQueue) Publish(ctx context.Context, msg JobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode job message: %w", err)
	}

	headers := amqp.Table{"kind": msg.Kind}
	if err := q.client.Publish(ctx, q.exchange, JOB_ROUTING_KEY, body, headers); err != nil {
		return fmt.Errorf("publish job %s: %w", msg.JobID, err)
	}
	return nil
}

// Consume starts delivering job messages. Deliveries must be acked by the caller.
func (q *JobQueue) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	return q.client.Consume(q.queue, consumerTag)
}

// DecodeJobMessage parses a delivery body
func DecodeJobMessage(delivery amqp.Delivery) (JobMessage, error) {
	var msg JobMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		return JobMessage{}, fmt.Errorf("decode job message: %w", err)
	}
	if msg.JobID == "" {
		return JobMessage{}, fmt.Errorf("decode job message: missing job_id")
	}
	return msg, nil
}
