package fanout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/riwaai/riwa-pos-backend/pkg/utils"
)

const ordersExchange = "orders_fanout"

// Bridge relays order-changed events through a RabbitMQ fanout exchange so
// that horizontally scaled instances invalidate each other's subscribers.
// Each instance tags its messages with its own id and skips them on consume,
// otherwise a local publish would be delivered twice.
type Bridge struct {
	hub        *Hub
	conn       *amqp.Connection
	ch         *amqp.Channel
	instanceID string
}

// NewBridge connects to RabbitMQ, declares the fanout exchange and starts
// consuming remote events into the local hub.
func NewBridge(ctx context.Context, url string, hub *Hub) (*Bridge, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ordersExchange, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		"",    // name (server generated)
		false, // durable
		false, // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", ordersExchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to consume: %w", err)
	}

	b := &Bridge{
		hub:        hub,
		conn:       conn,
		ch:         ch,
		instanceID: uuid.NewString(),
	}
	go b.consume(ctx, deliveries)
	return b, nil
}

func (b *Bridge) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if d.AppId == b.instanceID {
				continue
			}
			var event Event
			if err := json.Unmarshal(d.Body, &event); err != nil {
				utils.LogError(err, "fanout bridge: dropping malformed event")
				continue
			}
			b.hub.Publish(event)
		}
	}
}

// Publish delivers locally and relays to the other instances. The relay is
// best-effort; a broker hiccup must not fail the order transition.
func (b *Bridge) Publish(event Event) {
	b.hub.Publish(event)

	body, err := json.Marshal(event)
	if err != nil {
		utils.LogError(err, "fanout bridge: encoding event")
		return
	}
	err = b.ch.Publish(ordersExchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		AppId:       b.instanceID,
		Body:        body,
	})
	if err != nil {
		utils.LogError(err, "fanout bridge: publishing event")
	}
}

// Close shuts down the AMQP channel and connection.
func (b *Bridge) Close() error {
	if err := b.ch.Close(); err != nil {
		return err
	}
	return b.conn.Close()
}
