package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prodbymtr/storefront/catalog"
	"github.com/prodbymtr/storefront/clients"
	"github.com/prodbymtr/storefront/models"
)

const (
	DefaultSessionTTL  = 30 * time.Minute
	productDescription = "Producto digital - ProdByMTR"
	currency           = "usd"
)

type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, req clients.CheckoutSessionRequest) (*clients.CheckoutSession, error)
}

type OrderWriter interface {
	CreatePending(ctx context.Context, order *models.Order) error
}

type Config struct {
	FrontendURL string
	SessionTTL  time.Duration
}

type Service struct {
	catalog  *catalog.Catalog
	sessions SessionCreator
	orders   OrderWriter
	cfg      Config
	now      func() time.Time
}

type Result struct {
	SessionID string
	URL       string
}

func NewService(c *catalog.Catalog, sessions SessionCreator, orders OrderWriter, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &Service{catalog: c, sessions: sessions, orders: orders, cfg: cfg, now: time.Now}
}

// Initiate creates a provider checkout session for productID and records a
// pending order for it. The order insert is best effort: a storage failure
// is logged and the session is still returned.
func (s *Service) Initiate(ctx context.Context, productID string) (*Result, error) {
	product, ok := s.catalog.Lookup(productID)
	if !ok {
		return nil, &models.ValidationError{Msg: "Producto no encontrado", Err: models.ErrProductNotFound}
	}

	session, err := s.sessions.CreateCheckoutSession(ctx, clients.CheckoutSessionRequest{
		ProductID:   product.ID,
		ProductName: product.Name,
		Description: productDescription,
		UnitAmount:  product.Price,
		Currency:    currency,
		SuccessURL:  s.cfg.FrontendURL + "/success.html?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   s.cfg.FrontendURL + "/?canceled=true",
		ExpiresAt:   s.now().Add(s.cfg.SessionTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session for %s: %w", product.ID, err)
	}

	order := &models.Order{
		ProductID:   product.ID,
		ProductName: product.Name,
		PricePaid:   product.PriceMajor(),
		SessionID:   session.ID,
	}
	if err := s.orders.CreatePending(ctx, order); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("Order not saved (offline mode)")
	} else {
		log.Info().Str("session_id", session.ID).Int("order_id", order.ID).Msg("Order saved")
	}

	log.Info().Str("session_id", session.ID).Str("product_id", product.ID).Msg("Stripe session created")
	return &Result{SessionID: session.ID, URL: session.URL}, nil
}
