package brokersvc

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pkg/errors"

	"github.com/lifecraft/backend/core"
)

type rabbitBroker struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

var _ core.Broker = (*rabbitBroker)(nil)

// NewRabbitBroker connects to RabbitMQ and declares the badge evaluation queue.
// The queue is durable so pending evaluations survive a broker restart.
func NewRabbitBroker(conf core.BrokerConfig) (*rabbitBroker, error) {
	conn, err := amqp.Dial(conf.URL)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "opening channel")
	}
	if _, err = ch.QueueDeclare(
		conf.BadgeQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "declaring queue")
	}
	return &rabbitBroker{conn: conn, ch: ch, queue: conf.BadgeQueue}, nil
}

func (b *rabbitBroker) PublishBadgeEvaluation(ctx context.Context, msg core.BadgeEvaluation) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encoding badge evaluation")
	}
	err = b.ch.PublishWithContext(ctx,
		"",      // exchange
		b.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	return errors.Wrap(err, "publishing badge evaluation")
}

func (b *rabbitBroker) Close() error {
	if err := b.ch.Close(); err != nil {
		_ = b.conn.Close()
		return err
	}
	return b.conn.Close()
}
