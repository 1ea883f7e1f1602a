package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/prodbymtr/storefront/catalog"
	"github.com/prodbymtr/storefront/clients"
	"github.com/prodbymtr/storefront/models"
)

const DefaultQueue = "fulfillment_queue"

// QueuePublisher hands fulfillment to fulfillment-service over AMQP instead of
// sending mail inside the webhook request.
type QueuePublisher struct {
	client clients.AmqpClient
	queue  string
	now    func() time.Time
}

func NewQueuePublisher(client clients.AmqpClient, queue string) *QueuePublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &QueuePublisher{client: client, queue: queue, now: time.Now}
}

func (p *QueuePublisher) Notify(ctx context.Context, order models.Order, product catalog.Product) error {
	msg := models.FulfillmentMessage{
		MessageID:     uuid.NewString(),
		OrderID:       order.ID,
		SessionID:     order.SessionID,
		ProductID:     product.ID,
		ProductName:   product.Name,
		PricePaid:     order.PricePaid,
		CustomerEmail: order.CustomerEmail,
		CompletedAt:   p.now().UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, body, p.queue, msg.MessageID); err != nil {
		return fmt.Errorf("publish fulfillment %s: %w", order.SessionID, err)
	}
	log.Info().Str("session_id", order.SessionID).Str("message_id", msg.MessageID).Msg("Fulfillment queued")
	return nil
}

// Consumer handles deliveries from the fulfillment queue. Failed messages are
// dropped without requeue.
type Consumer struct {
	notifier *Notifier
	catalog  *catalog.Catalog
	timeout  time.Duration
}

func NewConsumer(n *Notifier, c *catalog.Catalog) *Consumer {
	return &Consumer{notifier: n, catalog: c, timeout: 30 * time.Second}
}

func (c *Consumer) Handle(d amqp.Delivery) {
	var msg models.FulfillmentMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		log.Error().Err(err).Msg("Error decoding fulfillment message")
		d.Nack(false, false)
		return
	}

	product, ok := c.catalog.Lookup(msg.ProductID)
	if !ok {
		log.Error().Str("session_id", msg.SessionID).Str("product_id", msg.ProductID).Msg("Fulfillment for unknown product")
		d.Nack(false, false)
		return
	}

	order := models.Order{
		ID:            msg.OrderID,
		ProductID:     msg.ProductID,
		ProductName:   msg.ProductName,
		PricePaid:     msg.PricePaid,
		SessionID:     msg.SessionID,
		Status:        models.StatusCompleted,
		CustomerEmail: msg.CustomerEmail,
		DownloadSent:  true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.notifier.Notify(ctx, order, product); err != nil {
		log.Error().Err(err).Str("session_id", msg.SessionID).Str("message_id", msg.MessageID).Msg("Fulfillment mail failed")
		d.Nack(false, false)
		return
	}

	log.Info().Str("session_id", msg.SessionID).Str("email", msg.CustomerEmail).Msg("Fulfillment mail sent")
	d.Ack(false)
}
