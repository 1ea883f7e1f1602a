package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/prodbymtr/storefront/auth"
	"github.com/prodbymtr/storefront/checkout"
	"github.com/prodbymtr/storefront/config"
	"github.com/prodbymtr/storefront/keepalive"
	"github.com/prodbymtr/storefront/models"
	"github.com/prodbymtr/storefront/webhook"
)

type CheckoutInitiator interface {
	Initiate(ctx context.Context, productID string) (*checkout.Result, error)
}

type WebhookReconciler interface {
	Reconcile(ctx context.Context, payload []byte, signature string) (*webhook.Result, error)
}

type SessionLookup interface {
	RetrieveSession(ctx context.Context, sessionID string) (*models.SessionStatus, error)
}

type OrderReader interface {
	ListRecent(ctx context.Context, limit int) ([]models.Order, error)
	SalesSummary(ctx context.Context) (*models.SalesSummary, error)
	Ping(ctx context.Context) error
}

type KeepAliveControl interface {
	Status(ctx context.Context) (keepalive.State, error)
	Pause(ctx context.Context) (keepalive.State, error)
	Resume(ctx context.Context) (keepalive.State, error)
}

// Deps are the collaborators behind the routes. KeepAlive and Admin may be
// nil, which disables the corresponding routes.
type Deps struct {
	Checkout  CheckoutInitiator
	Webhook   WebhookReconciler
	Sessions  SessionLookup
	Orders    OrderReader
	KeepAlive KeepAliveControl
	Admin     auth.Authorizer
}

type Options struct {
	ServiceName     string
	Environment     string
	AllowedOrigins  []string
	RequestTimeout  time.Duration
	CheckoutRPS     float64
	CheckoutBurst   int
	UnmatchedPolicy string
	// TrustProxy honours X-Forwarded-For / X-Real-IP for the client address.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool
}

type Server struct {
	deps    Deps
	opts    Options
	router  chi.Router
	limiter *ipRateLimiter
	now     func() time.Time
}

func NewServer(deps Deps, opts Options) *Server {
	if opts.ServiceName == "" {
		opts.ServiceName = "ProdByMTR Backend"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 25 * time.Second
	}
	if opts.UnmatchedPolicy == "" {
		opts.UnmatchedPolicy = config.UnmatchedNotFound
	}
	s := &Server{
		deps:    deps,
		opts:    opts,
		limiter: newIPRateLimiter(opts.CheckoutRPS, opts.CheckoutBurst),
		now:     time.Now,
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/webhook", s.handleWebhook)
		r.With(middleware.Timeout(s.opts.RequestTimeout), s.rateLimit).Post("/crear-pago", s.handleCreatePayment)
		r.Get("/verificar-sesion/{sessionId}", s.handleVerifySession)
		r.Get("/pedidos", s.handleOrders)
		r.Get("/health", s.handleHealth)
		r.Get("/warmup", s.handleWarmup)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/keepalive", s.handleKeepAliveStatus)
		r.Post("/keepalive/pause", s.handleKeepAlivePause)
		r.Post("/keepalive/resume", s.handleKeepAliveResume)
		r.Get("/ventas", s.handleSales)
	})

	return r
}
