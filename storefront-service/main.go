package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/prodbymtr/storefront/api"
	"github.com/prodbymtr/storefront/auth"
	"github.com/prodbymtr/storefront/catalog"
	"github.com/prodbymtr/storefront/checkout"
	"github.com/prodbymtr/storefront/clients"
	"github.com/prodbymtr/storefront/config"
	"github.com/prodbymtr/storefront/keepalive"
	"github.com/prodbymtr/storefront/logging"
	"github.com/prodbymtr/storefront/notifier"
	"github.com/prodbymtr/storefront/store"
	"github.com/prodbymtr/storefront/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("storefront-service stopped")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	loc := loadLocation(cfg.Timezone)

	db, err := store.Open(cfg.DatabaseDSN(), store.PoolOptions{
		MaxOpenConns: cfg.DBMaxConns,
		MaxIdleTime:  cfg.DBIdleTimeout,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	orders := store.NewOrderStore(db)
	checkDatabase(ctx, cfg, orders)

	stripeClient := clients.NewStripeClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	dispatcher, closeDispatcher, err := newDispatcher(cfg, loc)
	if err != nil {
		return err
	}
	defer closeDispatcher()

	var scheduler *keepalive.Scheduler
	if cfg.KeepAliveEnabled {
		scheduler = keepalive.New(keepalive.Config{
			Interval:      cfg.KeepAliveInterval,
			MonthlyBudget: cfg.KeepAliveMonthlyBudget,
			PauseFraction: cfg.KeepAlivePauseFraction,
			Location:      loc,
		}, orders)
		go func() {
			if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Keep-alive scheduler stopped")
			}
		}()
	}

	handler := newHandler(cfg, catalog.Default(), orders, stripeClient, dispatcher, scheduler)
	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("environment", cfg.Environment).
			Str("stripe_mode", cfg.StripeMode()).
			Str("frontend_url", cfg.FrontendURL).
			Str("notify_mode", cfg.NotifyMode).
			Bool("keepalive", cfg.KeepAliveEnabled).
			Int("products", catalog.Default().Len()).
			Msg("Server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newHandler wires the HTTP surface. scheduler may be nil.
func newHandler(cfg *config.Config, cat *catalog.Catalog, orders *store.OrderStore, stripeClient *clients.StripeClient,
	dispatcher webhook.Dispatcher, scheduler *keepalive.Scheduler) http.Handler {
	deps := api.Deps{
		Checkout: checkout.NewService(cat, stripeClient, orders, checkout.Config{
			FrontendURL: cfg.FrontendURL,
			SessionTTL:  cfg.SessionTTL,
		}),
		Webhook:  webhook.NewReconciler(stripeClient, orders, cat, dispatcher),
		Sessions: stripeClient,
		Orders:   orders,
	}
	if scheduler != nil {
		deps.KeepAlive = scheduler
	}
	if cfg.AdminJWTSecret != "" {
		deps.Admin = auth.NewJWTAuthorizer(cfg.AdminJWTSecret)
	}
	return api.NewServer(deps, api.Options{
		Environment:     cfg.Environment,
		AllowedOrigins:  cfg.AllowedOrigins,
		RequestTimeout:  cfg.RequestTimeout,
		CheckoutRPS:     cfg.CheckoutRateRPS,
		CheckoutBurst:   cfg.CheckoutRateBurst,
		UnmatchedPolicy: cfg.WebhookUnmatchedPolicy,
		TrustProxy:      cfg.TrustProxy,
	})
}

// newDispatcher picks between sending mail in-process and handing the order
// to fulfillment-service over AMQP.
func newDispatcher(cfg *config.Config, loc *time.Location) (webhook.Dispatcher, func(), error) {
	if cfg.NotifyMode != config.NotifyQueue {
		mailer := clients.NewMailjetClient(cfg.MailjetAPIKey, cfg.MailjetSecretKey)
		return notifier.New(mailer, notifierConfig(cfg, loc)), func() {}, nil
	}

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, nil, err
	}
	client := clients.NewAmqpClient(conn)
	if err := client.DeclareQueue(cfg.FulfillmentQueue); err != nil {
		conn.Close()
		return nil, nil, err
	}
	log.Info().Str("queue", cfg.FulfillmentQueue).Msg("Fulfillment delegated to queue")
	return notifier.NewQueuePublisher(client, cfg.FulfillmentQueue), func() { conn.Close() }, nil
}

func notifierConfig(cfg *config.Config, loc *time.Location) notifier.Config {
	return notifier.Config{
		From:          clients.Address{Email: cfg.MailFrom, Name: cfg.MailFromName},
		OperatorEmail: cfg.OperatorEmail,
		Location:      loc,
	}
}

// checkDatabase logs whether Postgres is reachable. The server starts either
// way; order writes fail until the database comes back.
func checkDatabase(ctx context.Context, cfg *config.Config, orders *store.OrderStore) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := orders.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("sslmode", cfg.SSLMode()).Msg("Database unavailable, running offline")
		return
	}
	log.Info().Str("sslmode", cfg.SSLMode()).Msg("Database connected")
	if cfg.DBAutoMigrate {
		if err := orders.EnsureSchema(pingCtx); err != nil {
			log.Error().Err(err).Msg("Schema migration failed")
		}
	}
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn().Err(err).Str("timezone", name).Msg("Unknown timezone, using UTC")
		return time.UTC
	}
	return loc
}
