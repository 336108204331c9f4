// Package sendgrid delivers messages through the SendGrid API, treating
// each relay's credential secret as an API key so pools of SendGrid keys
// rotate the same way SMTP relays do.
package sendgrid

import (
	"context"
	"net/mail"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/lattiq/bulkmail/internal/core"
)

// Transport implements delivery over the SendGrid v3 API.
type Transport struct{}

// NewTransport creates a SendGrid transport.
func NewTransport() *Transport {
	return &Transport{}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "sendgrid"
}

// Deliver sends msg to a single recipient using the relay's credential
// secret as the SendGrid API key.
func (t *Transport) Deliver(ctx context.Context, relay core.Relay, msg *core.Message, recipient string) error {
	// The client is a thin wrapper around the API key, so a fresh one per
	// relay is cheap.
	client := sendgrid.NewSendClient(relay.Password)

	from := sgmail.NewEmail(fromName(msg.From), msg.FromAddress())
	to := sgmail.NewEmail("", recipient)

	var message *sgmail.SGMailV3
	if msg.HTMLBody != "" {
		message = sgmail.NewSingleEmail(from, msg.Subject, to, msg.TextBody, msg.HTMLBody)
	} else {
		message = sgmail.NewSingleEmailPlainText(from, msg.Subject, to, msg.TextBody)
	}

	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return core.NewTransportError("sendgrid", 0, "failed to send email: "+err.Error(), err)
	}

	if response.StatusCode >= 400 {
		return core.NewTransportError("sendgrid", response.StatusCode, response.Body, nil)
	}

	return nil
}

// fromName extracts the display name from a "Name <addr>" sender, if any.
func fromName(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return ""
	}
	return addr.Name
}
