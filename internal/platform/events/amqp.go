package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rabbitmq/amqp091-go"
)

// AMQPSink publishes events as persistent JSON messages on a durable queue.
type AMQPSink struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   string
}

// DialAMQP connects to a RabbitMQ broker.
func DialAMQP(url string) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	return conn, nil
}

// NewAMQPSink opens a channel on conn and declares queue.
func NewAMQPSink(conn *amqp091.Connection, queue string) (*AMQPSink, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &AMQPSink{conn: conn, channel: ch, queue: queue}, nil
}

func (s *AMQPSink) Publish(ctx context.Context, e Event) error {
	msg, err := encodeMessage(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.channel.PublishWithContext(ctx, "", s.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Close closes the channel and the connection.
func (s *AMQPSink) Close() error {
	if err := s.channel.Close(); err != nil {
		return err
	}
	return s.conn.Close()
}

func encodeMessage(e Event) (amqp091.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("encode event: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		MessageId:    e.ID,
		Type:         e.Type,
		Timestamp:    e.Timestamp,
		Headers: amqp091.Table{
			"allergy_id": fmt.Sprintf("%d", e.AllergyID),
		},
	}, nil
}
