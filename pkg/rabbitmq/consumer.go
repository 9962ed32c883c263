/**
 * @description
 * RabbitMQ consumer for the storefront-service. It declares a durable queue on a
 * topic exchange, binds one handler per routing key and acknowledges each
 * delivery manually: a handler returning false sends the message back to the
 * queue, deliveries nobody handles are acknowledged and dropped.
 */
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	consumerTag = "storefront-service"
	// prefetch bounds unacknowledged deliveries held by this process.
	prefetch = 10
)

// Handler processes one delivery and reports whether it should be acknowledged.
// Returning false requeues the message.
type Handler func(ctx context.Context, body []byte) bool

// Delivery is the subset of an AMQP delivery the dispatch loop needs.
type Delivery interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Consumer owns one connection and one channel to the broker.
type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
}

// parseBrokerURL accepts URLs pasted with stray whitespace or quotes, which
// hosting dashboards tend to add, and defaults the vhost to "/".
func parseBrokerURL(raw string) (*url.URL, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	parsed, err := url.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("parse AMQP URL: %w", err)
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return nil, fmt.Errorf("invalid AMQP scheme: %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("AMQP URL has no host")
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}
	return parsed, nil
}

// NewConsumer connects to the broker and opens a channel with a bounded prefetch.
func NewConsumer(amqpURL string, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	brokerURL, err := parseBrokerURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.Dial(brokerURL.String())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", brokerURL.Redacted(), err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	return &Consumer{conn: conn, ch: ch, logger: logger}, nil
}

// activeHandlers drops nil handlers and fails when nothing is left to consume.
func activeHandlers(bindings map[string]Handler) (map[string]Handler, error) {
	handlers := make(map[string]Handler, len(bindings))
	for routingKey, handler := range bindings {
		if handler != nil {
			handlers[routingKey] = handler
		}
	}
	if len(handlers) == 0 {
		return nil, errors.New("no bindings provided")
	}
	return handlers, nil
}

// declare sets up the exchange, the durable queue and one binding per routing key.
func (c *Consumer) declare(exchange, queueName string, handlers map[string]Handler) (string, error) {
	if err := c.ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return "", fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	q, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return "", fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	for routingKey := range handlers {
		if err := c.ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
			return "", fmt.Errorf("bind %s to %s: %w", routingKey, q.Name, err)
		}
	}
	return q.Name, nil
}

// ConsumeWithBindings declares the topology and dispatches deliveries by
// routing key until ctx is done or the channel closes.
func (c *Consumer) ConsumeWithBindings(ctx context.Context, exchange, queueName string, bindings map[string]Handler) error {
	handlers, err := activeHandlers(bindings)
	if err != nil {
		return err
	}
	queue, err := c.declare(exchange, queueName, handlers)
	if err != nil {
		return err
	}
	msgs, err := c.ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					c.logger.Warn("subscription event channel closed", "queue", queue)
					return
				}
				c.dispatch(ctx, handlers, d.RoutingKey, d.Body, &d)
			}
		}
	}()
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, handlers map[string]Handler, routingKey string, body []byte, d Delivery) {
	handler, ok := handlers[routingKey]
	if !ok {
		c.logger.Warn("no handler for routing key; acknowledging to drop", "routing_key", routingKey)
		_ = d.Ack(false)
		return
	}
	if handler(ctx, body) {
		_ = d.Ack(false)
		return
	}
	c.logger.Warn("handler failed; re-queuing", "routing_key", routingKey)
	_ = d.Nack(false, true)
}

// Close shuts the channel and then the connection.
func (c *Consumer) Close() error {
	var errs []error
	if c.ch != nil {
		errs = append(errs, c.ch.Close())
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}
	return errors.Join(errs...)
}
