// Package smtp delivers messages through authenticated STARTTLS sessions
// against the relay's SMTP endpoint.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/lattiq/bulkmail/internal/core"
)

// Transport implements delivery over SMTP with STARTTLS and PLAIN auth
// using each relay's own credentials.
type Transport struct {
	dialTimeout time.Duration
	skipVerify  bool
}

// Option configures the transport.
type Option func(*Transport)

/// WithDialTimeout sets the TCP connect timeout (default: 30s).
func WithDialTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.dialTimeout = d
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only for development against self-signed test servers.
func WithInsecureSkipVerify() Option {
	return func(t *Transport) {
		t.skipVerify = true
	}
}

// NewTransport creates an SMTP transport.
func NewTransport(opts ...Option) *Transport {
	t := &Transport{
		dialTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "smtp"
}

// Deliver sends msg to a single recipient through the given relay.
func (t *Transport) Deliver(ctx context.Context, relay core.Relay, msg *core.Message, recipient string) error {
	dialer := net.Dialer{Timeout: t.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", relay.Addr())
	if err != nil {
		return core.NewTransportError("smtp", 0, "connecting to "+relay.Addr()+": "+err.Error(), err)
	}

	client, err := smtp.NewClient(conn, relay.Host)
	if err != nil {
		conn.Close()
		return classify(err)
	}
	defer client.Close()

	// Relay providers require an encrypted session before AUTH.
	if ok, _ := client.Extension("STARTTLS"); !ok {
		return core.NewTransportError("smtp", 0, "server does not support STARTTLS", nil)
	}
	tlsConfig := &tls.Config{
		ServerName: relay.Host,
		MinVersion: tls.VersionTLS12,
	}
	if t.skipVerify {
		tlsConfig.InsecureSkipVerify = true
	}
	if err := client.StartTLS(tlsConfig); err != nil {
		return classify(err)
	}

	auth := smtp.PlainAuth("", relay.Username, relay.Password, relay.Host)
	if err := client.Auth(auth); err != nil {
		return classify(err)
	}

	if err := client.Mail(msg.FromAddress()); err != nil {
		return classify(err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return classify(err)
	}

	w, err := client.Data()
	if err != nil {
		return classify(err)
	}
	if _, err := w.Write(buildMessage(msg, recipient)); err != nil {
		w.Close()
		return classify(err)
	}
	// The server's final reply to the message body arrives on close.
	if err := w.Close(); err != nil {
		return classify(err)
	}

	return client.Quit()
}

// classify maps SMTP reply errors to structured transport errors so the
// dispatcher can recognize provider-side pause responses.
func classify(err error) error {
	var reply *textproto.Error
	if errors.As(err, &reply) {
		return core.NewTransportError("smtp", reply.Code, reply.Msg, err)
	}
	return core.NewTransportError("smtp", 0, err.Error(), err)
}

/// buildMessage builds the message in RFC 5322 format: plain text only, or
// multipart/alternative when an HTML body is present.
func buildMessage(msg *core.Message, recipient string) []byte {
	var b strings.Builder

	b.WriteString("From: " + msg.From + "\r\n")
	b.WriteString("To: " + recipient + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	if msg.HTMLBody != "" {
		boundary := fmt.Sprintf("boundary_%d", time.Now().UnixNano())
		b.WriteString("Content-Type: multipart/alternative; boundary=" + boundary + "\r\n")
		b.WriteString("\r\n")

		// Text part
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		b.WriteString("\r\n")
		b.WriteString(msg.TextBody + "\r\n")
		b.WriteString("\r\n")

		// HTML part
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		b.WriteString("\r\n")
		b.WriteString(msg.HTMLBody + "\r\n")
		b.WriteString("\r\n")

		b.WriteString("--" + boundary + "--\r\n")
	} else {
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		b.WriteString("\r\n")
		b.WriteString(msg.TextBody + "\r\n")
	}

	return []byte(b.String())
}
