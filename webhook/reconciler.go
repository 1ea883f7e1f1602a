package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/prodbymtr/storefront/catalog"
	"github.com/prodbymtr/storefront/clients"
	"github.com/prodbymtr/storefront/models"
	"github.com/prodbymtr/storefront/store"
)

const EventCheckoutCompleted = "checkout.session.completed"

type EventVerifier interface {
	ConstructEvent(payload []byte, signature string) (*clients.WebhookEvent, error)
}

type OrderStore interface {
	FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	MarkCompleted(ctx context.Context, sessionID, email string) (bool, error)
}

// Dispatcher delivers fulfillment for a completed order, either directly or
// through the fulfillment queue.
type Dispatcher interface {
	Notify(ctx context.Context, order models.Order, product catalog.Product) error
}

type Outcome string

const (
	OutcomeProcessed     Outcome = "processed"
	OutcomeIgnored       Outcome = "ignored"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeMalformed     Outcome = "malformed"
	OutcomeStorageFailed Outcome = "storage_failed"
)

type Result struct {
	EventID   string
	EventType string
	SessionID string
	Outcome   Outcome
}

type checkoutSession struct {
	ID              string `json:"id"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

func (s checkoutSession) email() string {
	if s.CustomerDetails != nil && strings.TrimSpace(s.CustomerDetails.Email) != "" {
		return strings.TrimSpace(s.CustomerDetails.Email)
	}
	return strings.TrimSpace(s.CustomerEmail)
}

type Reconciler struct {
	verifier   EventVerifier
	orders     OrderStore
	catalog    *catalog.Catalog
	dispatcher Dispatcher
}

func NewReconciler(verifier EventVerifier, orders OrderStore, c *catalog.Catalog, dispatcher Dispatcher) *Reconciler {
	return &Reconciler{verifier: verifier, orders: orders, catalog: c, dispatcher: dispatcher}
}

// Reconcile verifies a provider notification and completes the matching
// order. Storage and mail failures are logged and reported as acknowledged
// outcomes; only verification failures and unmatched lookups return errors.
func (r *Reconciler) Reconcile(ctx context.Context, payload []byte, signature string) (*Result, error) {
	event, err := r.verifier.ConstructEvent(payload, signature)
	if err != nil {
		log.Warn().Err(err).Msg("Webhook signature verification failed")
		return nil, err
	}
	res := &Result{EventID: event.ID, EventType: event.Type, Outcome: OutcomeIgnored}
	if event.Type != EventCheckoutCompleted {
		log.Info().Str("type", event.Type).Str("event_id", event.ID).Msg("Webhook ignored (unhandled type)")
		return res, nil
	}

	var session checkoutSession
	if err := json.Unmarshal(event.Data, &session); err != nil || session.ID == "" {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Webhook checkout session could not be decoded")
		res.Outcome = OutcomeMalformed
		return res, nil
	}
	res.SessionID = session.ID
	email := session.email()

	log.Info().
		Str("session_id", session.ID).
		Str("email", email).
		Str("product_id", session.Metadata["product_id"]).
		Msg("Payment received")

	order, err := r.orders.FindBySessionID(ctx, session.ID)
	if errors.Is(err, store.ErrOrderNotFound) {
		log.Warn().Str("session_id", session.ID).Msg("Order not found for session")
		return res, &models.NotFoundError{Msg: "Pedido no encontrado", Err: err}
	}
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("Error processing order")
		res.Outcome = OutcomeStorageFailed
		return res, nil
	}

	claimed, err := r.orders.MarkCompleted(ctx, session.ID, email)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("Error processing order")
		res.Outcome = OutcomeStorageFailed
		return res, nil
	}
	if !claimed {
		log.Info().Str("session_id", session.ID).Msg("Order already fulfilled, skipping mail")
		res.Outcome = OutcomeDuplicate
		return res, nil
	}
	order.Status = models.StatusCompleted
	order.CustomerEmail = email
	order.DownloadSent = true

	product, ok := r.catalog.Lookup(order.ProductID)
	if !ok {
		log.Error().Str("session_id", session.ID).Str("product_id", order.ProductID).Msg("Product not found for completed order")
		return res, &models.NotFoundError{Msg: "Producto no encontrado", Err: models.ErrProductNotFound}
	}

	if err := r.dispatcher.Notify(ctx, *order, product); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("Fulfillment dispatch failed")
	} else {
		log.Info().Str("session_id", session.ID).Str("email", email).Msg("Fulfillment dispatched")
	}
	res.Outcome = OutcomeProcessed
	return res, nil
}
