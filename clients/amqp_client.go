package clients

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AmqpClient defines the interface for all AMQP operations
type AmqpClient interface {
	DeclareQueue(queueName string) error
	Publish(ctx context.Context, message []byte, queueName, messageID string) error
	SetupConsumer(queueName string, handler func(amqp.Delivery)) error
}

// RealAmqpClient implements AmqpClient with real AMQP operations
type RealAmqpClient struct {
	conn *amqp.Connection
}

// NewAmqpClient creates a new real AMQP client
func NewAmqpClient(conn *amqp.Connection) AmqpClient {
	return &RealAmqpClient{conn: conn}
}

// DeclareQueue declares a durable queue so publisher and consumer agree on it
func (c *RealAmqpClient) DeclareQueue(queueName string) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		queueName, // name of the queue
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	return err
}

// Publish publishes a persistent message to a specified queue
func (c *RealAmqpClient) Publish(ctx context.Context, message []byte, queueName, messageID string) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	return ch.PublishWithContext(ctx,
		"",        // exchange
		queueName, // routing key (queue name)
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Body:         message,
		},
	)
}

// SetupConsumer sets up a manual-ack consumer on a specified queue
func (c *RealAmqpClient) SetupConsumer(queueName string, handler func(amqp.Delivery)) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(
		queueName,
		"",
		false, // auto-ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return err
	}

	go func() {
		for d := range msgs {
			handler(d)
		}
	}()

	return nil
}
