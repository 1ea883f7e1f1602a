package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/prodbymtr/storefront/models"
)

type CheckoutSessionRequest struct {
	ProductID   string
	ProductName string
	Description string
	UnitAmount  int64
	Currency    string
	SuccessURL  string
	CancelURL   string
	ExpiresAt   time.Time
}

type CheckoutSession struct {
	ID  string
	URL string
}

// WebhookEvent is a verified provider event. Data holds the raw event object.
type WebhookEvent struct {
	ID   string
	Type string
	Data json.RawMessage
}

type StripeClient struct {
	sessions      *session.Client
	webhookSecret string
}

func NewStripeClient(secretKey, webhookSecret string) *StripeClient {
	return &StripeClient{
		sessions:      &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		webhookSecret: webhookSecret,
	}
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(req.ProductName),
					Description: stripe.String(req.Description),
				},
				UnitAmount: stripe.Int64(req.UnitAmount),
			},
			Quantity: stripe.Int64(1),
		}},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		ExpiresAt:  stripe.Int64(req.ExpiresAt.Unix()),
	}
	params.Context = ctx
	params.AddMetadata("product_id", req.ProductID)

	s, err := c.sessions.New(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (c *StripeClient) RetrieveSession(ctx context.Context, sessionID string) (*models.SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := c.sessions.Get(sessionID, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	status := &models.SessionStatus{
		Status:    string(s.PaymentStatus),
		Completed: s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	if s.CustomerDetails != nil {
		status.Email = s.CustomerDetails.Email
	}
	return status, nil
}

// ConstructEvent verifies the Stripe-Signature header against the webhook
// secret before decoding the payload.
func (c *StripeClient) ConstructEvent(payload []byte, signature string) (*WebhookEvent, error) {
	if c.webhookSecret == "" {
		return nil, &models.AuthenticationError{Msg: "webhook secret is not configured"}
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, &models.AuthenticationError{Msg: err.Error()}
	}
	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data != nil {
		out.Data = event.Data.Raw
	}
	return out, nil
}

// classifyStripeError maps connectivity failures to UpstreamUnavailableError
// and leaves everything else untouched.
func classifyStripeError(err error) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return &models.UpstreamUnavailableError{Msg: "Servidor iniciando. Esperá 30 segundos e intentá de nuevo.", Err: err}
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError || stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return &models.UpstreamUnavailableError{Msg: "Stripe no responde. Intentá en unos minutos.", Err: err}
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &models.UpstreamUnavailableError{Msg: "Stripe no responde. Intentá en unos minutos.", Err: err}
	}
	return err
}
