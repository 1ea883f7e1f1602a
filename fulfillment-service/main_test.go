package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prodbymtr/storefront/clients"
	"github.com/prodbymtr/storefront/config"
	"github.com/prodbymtr/storefront/models"
)

// Test that a queued fulfillment message turns into buyer and operator mail
func TestConsumeFulfillment(t *testing.T) {
	client := &MockAmqpClient{}
	mailer := &MockMailer{}
	cfg := &config.Config{
		FulfillmentQueue: "fulfillment_queue",
		MailFrom:         "shop@example.com",
		OperatorEmail:    "ops@example.com",
		Timezone:         "America/Asuncion",
	}

	var handler func(amqp.Delivery)
	client.On("DeclareQueue", "fulfillment_queue").Return(nil)
	client.On("SetupConsumer", "fulfillment_queue", mock.Anything).
		Run(func(args mock.Arguments) { handler = args.Get(1).(func(amqp.Delivery)) }).
		Return(nil)
	mailer.On("Send", "buyer@example.com").Return(nil)
	mailer.On("Send", "ops@example.com").Return(nil)

	require.NoError(t, consume(client, cfg, newConsumer(cfg, mailer)))
	require.NotNil(t, handler)

	body, _ := json.Marshal(models.FulfillmentMessage{
		MessageID:     "msg-1",
		OrderID:       1,
		SessionID:     "cs_test_1",
		ProductID:     "drumkit-essential",
		ProductName:   "DRUMKIT ESSENTIAL",
		PricePaid:     25.0,
		CustomerEmail: "buyer@example.com",
	})
	ack := &MockAcknowledger{}
	handler(amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body})

	assert.Equal(t, 1, ack.acked)
	mailer.AssertNumberOfCalls(t, "Send", 2)
	client.AssertExpectations(t)
}

func TestConsumeDeclareFailure(t *testing.T) {
	client := &MockAmqpClient{}
	cfg := &config.Config{FulfillmentQueue: "fulfillment_queue"}
	client.On("DeclareQueue", "fulfillment_queue").Return(errors.New("channel closed"))

	assert.Error(t, consume(client, cfg, newConsumer(cfg, &MockMailer{})))
	client.AssertNotCalled(t, "SetupConsumer", mock.Anything, mock.Anything)
}

// Mocks for RabbitMQ components
type MockAmqpClient struct {
	mock.Mock
}

func (m *MockAmqpClient) DeclareQueue(queueName string) error {
	return m.Called(queueName).Error(0)
}

func (m *MockAmqpClient) Publish(ctx context.Context, message []byte, queueName, messageID string) error {
	return m.Called(message, queueName, messageID).Error(0)
}

func (m *MockAmqpClient) SetupConsumer(queueName string, handler func(amqp.Delivery)) error {
	return m.Called(queueName, handler).Error(0)
}

type MockAcknowledger struct {
	acked  int
	nacked int
}

func (a *MockAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acked++
	return nil
}

func (a *MockAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked++
	return nil
}

func (a *MockAcknowledger) Reject(tag uint64, requeue bool) error {
	a.nacked++
	return nil
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg clients.Email) error {
	return m.Called(msg.To.Email).Error(0)
}
