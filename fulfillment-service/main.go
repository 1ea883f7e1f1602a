package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/prodbymtr/storefront/catalog"
	"github.com/prodbymtr/storefront/clients"
	"github.com/prodbymtr/storefront/config"
	"github.com/prodbymtr/storefront/logging"
	"github.com/prodbymtr/storefront/notifier"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.IsDevelopment())

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer conn.Close()

	mailer := clients.NewMailjetClient(cfg.MailjetAPIKey, cfg.MailjetSecretKey)
	if err := consume(clients.NewAmqpClient(conn), cfg, newConsumer(cfg, mailer)); err != nil {
		log.Fatal().Err(err).Str("queue", cfg.FulfillmentQueue).Msg("Failed to start consumer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", cfg.FulfillmentQueue).Msg("Waiting for fulfillment messages. To exit press CTRL+C")
	select {
	case <-ctx.Done():
	case err := <-conn.NotifyClose(make(chan *amqp.Error, 1)):
		log.Error().Err(err).Msg("RabbitMQ connection closed")
	}
}

func newConsumer(cfg *config.Config, mailer notifier.Mailer) *notifier.Consumer {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	n := notifier.New(mailer, notifier.Config{
		From:          clients.Address{Email: cfg.MailFrom, Name: cfg.MailFromName},
		OperatorEmail: cfg.OperatorEmail,
		Location:      loc,
	})
	return notifier.NewConsumer(n, catalog.Default())
}

func consume(client clients.AmqpClient, cfg *config.Config, consumer *notifier.Consumer) error {
	if err := client.DeclareQueue(cfg.FulfillmentQueue); err != nil {
		return err
	}
	return client.SetupConsumer(cfg.FulfillmentQueue, consumer.Handle)
}
