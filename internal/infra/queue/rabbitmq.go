package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"fb-promo-bot/internal/domain"
	"fb-promo-bot/internal/infra/metrics"
)

// RabbitReporter публикует итоги прогонов в очередь RabbitMQ.
type RabbitReporter struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ domain.RunReporter = (*RabbitReporter)(nil)

// NewRabbitReporter создаёт репортёр. Подключение устанавливается лениво.
func NewRabbitReporter(amqpURL, queue string) (*RabbitReporter, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	return &RabbitReporter{url: amqpURL, queue: queue}, nil
}

func (r *RabbitReporter) channel() (*amqp.Channel, error) {
	if r.ch != nil && !r.ch.IsClosed() {
		return r.ch, nil
	}
	if r.conn == nil || r.conn.IsClosed() {
		conn, err := amqp.Dial(r.url)
		if err != nil {
			return nil, fmt.Errorf("dial amqp: %w", err)
		}
		r.conn = conn
	}
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(r.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	r.ch = ch
	return ch, nil
}

// Report реализует domain.RunReporter.
func (r *RabbitReporter) Report(ctx context.Context, summary domain.RunSummary) error {
	payload, err := encodeSummary(summary)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	ch, err := r.channel()
	if err == nil {
		err = ch.PublishWithContext(ctx, "", r.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    summary.RunID,
			Timestamp:    summary.FinishedAt,
			Body:         payload,
		})
	}
	metrics.ObserveNetworkRequest("rabbitmq", "publish", r.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish summary: %w", err)
	}
	return nil
}

// Close закрывает соединение.
func (r *RabbitReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil {
		_ = r.ch.Close()
		r.ch = nil
	}
	if r.conn != nil {
		err := r.conn.Close()
		r.conn = nil
		return err
	}
	return nil
}

func encodeSummary(summary domain.RunSummary) ([]byte, error) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	return payload, nil
}
