package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prodbymtr/storefront/catalog"
	"github.com/prodbymtr/storefront/clients"
	"github.com/prodbymtr/storefront/models"
)

type Mailer interface {
	Send(ctx context.Context, msg clients.Email) error
}

type Config struct {
	From          clients.Address
	OperatorEmail string
	Location      *time.Location
}

// Notifier sends the buyer confirmation and the operator sale alert for a
// completed order.
type Notifier struct {
	mailer Mailer
	cfg    Config
	now    func() time.Time
}

func New(mailer Mailer, cfg Config) *Notifier {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Notifier{mailer: mailer, cfg: cfg, now: time.Now}
}

// Notify attempts both sends and returns the joined errors. Nothing is
// retried.
func (n *Notifier) Notify(ctx context.Context, order models.Order, product catalog.Product) error {
	data := mailData{
		ProductName:   product.Name,
		PricePaid:     order.PricePaid,
		Date:          n.now().In(n.cfg.Location).Format("2/1/2006"),
		DownloadURL:   product.DownloadURL,
		CustomerEmail: order.CustomerEmail,
		SessionID:     order.SessionID,
		SupportEmail:  n.cfg.From.Email,
	}

	var errs []error
	if order.CustomerEmail == "" {
		errs = append(errs, fmt.Errorf("order %s has no customer email", order.SessionID))
	} else if err := n.send(ctx, buyerTemplate, data, clients.Address{Email: order.CustomerEmail},
		fmt.Sprintf("✅ Tu compra en ProdByMTR - %s", product.Name)); err != nil {
		errs = append(errs, fmt.Errorf("buyer email: %w", err))
	} else {
		log.Info().Str("session_id", order.SessionID).Str("email", order.CustomerEmail).Msg("Buyer email sent")
	}

	if err := n.send(ctx, operatorTemplate, data, clients.Address{Email: n.cfg.OperatorEmail},
		fmt.Sprintf("🛒 NUEVA VENTA - %s", product.Name)); err != nil {
		errs = append(errs, fmt.Errorf("operator email: %w", err))
	}

	return errors.Join(errs...)
}

func (n *Notifier) send(ctx context.Context, tmpl *template.Template, data mailData, to clients.Address, subject string) error {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return n.mailer.Send(ctx, clients.Email{
		From:     n.cfg.From,
		To:       to,
		Subject:  subject,
		HTMLPart: body.String(),
	})
}
