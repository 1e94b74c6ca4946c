// Package notifier publishes user change events to a RabbitMQ topic exchange.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/patric-chuzhbe/usercrud/internal/logger"
	"github.com/patric-chuzhbe/usercrud/internal/models"
)

const publishTimeout = 5 * time.Second

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier sends every event to exchange with the event type as routing key.
type AMQPNotifier struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  publisher
	exchange string
}

// New dials url and declares a durable topic exchange.
func New(url, exchange string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("in internal/notifier/notifier.go/New(): error while `amqp.Dial()` calling: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("in internal/notifier/notifier.go/New(): error while `conn.Channel()` calling: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("in internal/notifier/notifier.go/New(): error while `ch.ExchangeDeclare()` calling: %w", err)
	}

	result := newWithPublisher(ch, exchange)
	result.conn = conn

	return result, nil
}

func newWithPublisher(channel publisher, exchange string) *AMQPNotifier {
	return &AMQPNotifier{
		channel:  channel,
		exchange: exchange,
	}
}

// Notify never fails the caller: publishing problems are logged.
func (n *AMQPNotifier) Notify(ctx context.Context, event models.UserEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		logger.Log.Errorw("cannot encode user event", "event_type", event.EventType, "error", err)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	n.mu.Lock()
	defer n.mu.Unlock()

	err = n.channel.PublishWithContext(
		ctxWithTimeout,
		n.exchange,
		string(event.EventType),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.EventID,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.Timestamp,
		},
	)
	if err != nil {
		logger.Log.Errorw("cannot publish user event",
			"event_type", event.EventType,
			"user_id", event.UserID,
			"error", err,
		)
		return
	}

	logger.Log.Debugw("user event published", "event_type", event.EventType, "user_id", event.UserID)
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.channel.Close(); err != nil {
		return err
	}
	if n.conn != nil {
		return n.conn.Close()
	}

	return nil
}

// Noop discards events. It is used when no broker is configured.
type Noop struct{}

func (Noop) Notify(ctx context.Context, event models.UserEvent) {}

func (Noop) Close() error {
	return nil
}
