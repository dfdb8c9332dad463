package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AMQP defaults.
const (
	DefaultExchange   = "ex.leads"
	DefaultRoutingKey = "lead.created"
)

// publisher is the part of *amqp.Channel the notifier uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes a persistent LeadCreated message.
type AMQPNotifier struct {
	ch         publisher
	exchange   string
	routingKey string
	now        func() time.Time
}

func NewAMQPNotifier(ch publisher, exchange, routingKey string) *AMQPNotifier {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}
	return &AMQPNotifier{ch: ch, exchange: exchange, routingKey: routingKey, now: time.Now}
}

func (n *AMQPNotifier) OnLeadCreated(ctx context.Context, leadID primitive.ObjectID, name string) error {
	evt := newLeadCreated(leadID, name, n.now())
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal lead event: %w", err)
	}
	err = n.ch.PublishWithContext(ctx, n.exchange, n.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    evt.ID,
		Timestamp:    evt.OccurredAt,
		Type:         evt.Type,
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish lead event to %s: %w", n.exchange, err)
	}
	return nil
}

// DeclareTopology declares the durable topic exchange lead events go to.
func DeclareTopology(ch *amqp.Channel, exchange string) error {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}
