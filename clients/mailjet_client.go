package clients

import (
	"context"
	"fmt"

	"github.com/mailjet/mailjet-apiv3-go/v4"
)

type Address struct {
	Email string
	Name  string
}

type Email struct {
	From     Address
	To       Address
	Subject  string
	HTMLPart string
}

// MailjetClient sends transactional mail through the Mailjet v3.1 send API.
type MailjetClient struct {
	client *mailjet.Client
}

func NewMailjetClient(apiKey, secretKey string) *MailjetClient {
	return &MailjetClient{client: mailjet.NewMailjetClient(apiKey, secretKey)}
}

func (c *MailjetClient) Send(ctx context.Context, msg Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := mailjet.RecipientV31{Email: msg.To.Email, Name: msg.To.Name}
	messages := mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{{
		From:     &mailjet.RecipientV31{Email: msg.From.Email, Name: msg.From.Name},
		To:       &mailjet.RecipientsV31{to},
		Subject:  msg.Subject,
		HTMLPart: msg.HTMLPart,
	}}}
	if _, err := c.client.SendMailV31(&messages); err != nil {
		return fmt.Errorf("mailjet send to %s: %w", msg.To.Email, err)
	}
	return nil
}
