package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/apexfest/checkin/internal/model"
)

// DefaultQueue is the queue notifications are published to
const DefaultQueue = "checkin.notifications"

// channel is the part of *amqp.Channel the publisher needs
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes notifications as persistent JSON messages to a
// durable RabbitMQ queue
type AMQPPublisher struct {
	conn    *amqp.Connection
	queue   string
	timeout time.Duration

	mu sync.Mutex
	ch channel
}

// DialAMQP connects to the broker and declares the queue
func DialAMQP(url, queue string) (*AMQPPublisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	p := newAMQPPublisher(ch, queue)
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch channel, queue string) *AMQPPublisher {
	return &AMQPPublisher{
		ch:      ch,
		queue:   queue,
		timeout: 5 * time.Second,
	}
}

// Publish sends n to the queue through the default exchange
func (p *AMQPPublisher) Publish(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ch.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         string(n.Type),
			Timestamp:    n.OccurredAt,
			Body:         body,
		})
}

// Close closes the channel and the connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
