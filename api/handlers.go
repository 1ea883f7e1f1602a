package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/prodbymtr/storefront/config"
	"github.com/prodbymtr/storefront/keepalive"
	"github.com/prodbymtr/storefront/models"
	"github.com/prodbymtr/storefront/store"
)

const (
	webhookBodyLimit = 1 << 20
	jsonBodyLimit    = 1 << 20
	ordersPageSize   = 50
)

const checkoutSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["productId"],
  "properties": {
    "productId": { "type": "string", "minLength": 1, "maxLength": 100 }
  }
}`

var checkoutRequestSchema = mustSchema(checkoutSchema)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(err)
	}
	return schema
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type checkoutError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Webhook Error: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.deps.Webhook.Reconcile(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		var authErr *models.AuthenticationError
		var notFound *models.NotFoundError
		switch {
		case errors.As(err, &authErr):
			http.Error(w, "Webhook Error: "+err.Error(), http.StatusBadRequest)
		case errors.Is(err, store.ErrOrderNotFound):
			s.writeUnmatched(w)
		case errors.As(err, &notFound):
			writeJSON(w, http.StatusNotFound, errorBody{Error: notFound.Msg})
		default:
			log.Error().Err(err).Msg("Webhook failed")
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true, "status": res.Outcome})
}

func (s *Server) writeUnmatched(w http.ResponseWriter) {
	switch s.opts.UnmatchedPolicy {
	case config.UnmatchedRetry:
		w.Header().Set("Retry-After", "60")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "Pedido no encontrado", Message: "retry later"})
	case config.UnmatchedAck:
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "status": "unmatched"})
	default:
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Pedido no encontrado"})
	}
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, jsonBodyLimit))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, checkoutError{Error: "cannot read body"})
		return
	}
	result, err := checkoutRequestSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil || !result.Valid() {
		writeJSON(w, http.StatusBadRequest, checkoutError{Error: "Producto no encontrado", Message: schemaErrors(result, err)})
		return
	}
	var req models.CheckoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, checkoutError{Error: "invalid JSON payload"})
		return
	}

	session, err := s.deps.Checkout.Initiate(r.Context(), req.ProductID)
	if err != nil {
		var validation *models.ValidationError
		var upstream *models.UpstreamUnavailableError
		switch {
		case errors.As(err, &validation):
			writeJSON(w, http.StatusBadRequest, checkoutError{Error: validation.Msg})
		case errors.As(err, &upstream):
			log.Warn().Err(err).Str("product_id", req.ProductID).Msg("Payment provider unavailable")
			writeJSON(w, http.StatusServiceUnavailable, checkoutError{Error: err.Error(), Message: upstream.Msg})
		default:
			log.Error().Err(err).Str("product_id", req.ProductID).Msg("Error creating payment")
			writeJSON(w, http.StatusInternalServerError, checkoutError{
				Error:   err.Error(),
				Message: "Error inesperado. Por favor, intentá de nuevo.",
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, models.CheckoutResponse{
		Success:   true,
		SessionID: session.SessionID,
		Message:   "Redirigiendo a Stripe...",
	})
}

func schemaErrors(result *gojsonschema.Result, err error) string {
	if err != nil {
		return "invalid JSON payload"
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}

func (s *Server) handleVerifySession(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Sessions.RetrieveSession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		log.Warn().Err(err).Msg("Session lookup failed")
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Sesión no encontrada"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.deps.Orders.ListRecent(r.Context(), ordersPageSize)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, models.OrderList{Success: true, Orders: orders})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	database := "connected"
	if err := s.deps.Orders.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Health check: database unavailable")
		database = "unavailable"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "OK",
		"service":     s.opts.ServiceName,
		"timestamp":   s.now().UTC().Format(time.RFC3339),
		"environment": s.opts.Environment,
		"database":    database,
	})
}

func (s *Server) handleWarmup(w http.ResponseWriter, r *http.Request) {
	log.Info().Msg("Server warmed up by request")
	writeJSON(w, http.StatusOK, map[string]any{"warmed": true, "time": s.now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleKeepAliveStatus(w http.ResponseWriter, r *http.Request) {
	s.keepAliveAction(w, r, KeepAliveControl.Status)
}

func (s *Server) handleKeepAlivePause(w http.ResponseWriter, r *http.Request) {
	s.keepAliveAction(w, r, KeepAliveControl.Pause)
}

func (s *Server) handleKeepAliveResume(w http.ResponseWriter, r *http.Request) {
	s.keepAliveAction(w, r, KeepAliveControl.Resume)
}

func (s *Server) keepAliveAction(w http.ResponseWriter, r *http.Request, action func(KeepAliveControl, context.Context) (keepalive.State, error)) {
	if s.deps.KeepAlive == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "keep-alive disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	state, err := action(s.deps.KeepAlive, ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keepalive": state, "remaining": state.Remaining()})
}

func (s *Server) handleSales(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Orders.SalesSummary(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "ventas": summary})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
