package rabbitmq

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// channel is the subset of *amqp.Channel the notifier needs.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Notifier publishes participant notifications to a topic exchange, routed by notification type.
type Notifier struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	log      logger.Logger
}

var _ domain.Notifier = (*Notifier)(nil)

func NewNotifier(url, exchange string, log logger.Logger) (*Notifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	n, err := newNotifier(ch, exchange, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	n.conn = conn
	return n, nil
}

func newNotifier(ch channel, exchange string, log logger.Logger) (*Notifier, error) {
	err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("rabbitmq: declare exchange %s: %w", exchange, err)
	}

	return &Notifier{channel: ch, exchange: exchange, log: log}, nil
}

func (n *Notifier) Notify(ctx context.Context, notification *domain.Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("rabbitmq: encode notification: %w", err)
	}

	err = n.channel.PublishWithContext(ctx,
		n.exchange,
		string(notification.Type),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    notification.CreatedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s for auction %s: %w", notification.Type, notification.AuctionID, err)
	}

	n.log.Debug("Notification published", "type", notification.Type,
		"auction_id", notification.AuctionID, "recipients", len(notification.UserIDs))
	return nil
}

func (n *Notifier) Close() {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		n.conn.Close()
	}
}
