package core

import (
	"errors"
	"fmt"
	"net"
	"net/mail"
	"strconv"
	"strings"
)

// Relay identifies a single SMTP relay credential. Identity is immutable;
// runtime state (usage counter, disabled flag) is owned by the pool.
type Relay struct {
	Host     string // SMTP endpoint hostname
	Port     int    // SMTP endpoint port
	Username string // credential username
	Password string // credential secret
	Region   string // provider region the credential belongs to
}

// Addr returns the host:port dial address for the relay.
func (r Relay) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Identity returns a stable human-readable identifier for the relay.
// The credential secret is intentionally excluded.
func (r Relay) Identity() string {
	return fmt.Sprintf("%s@%s:%d/%s", r.Username, r.Host, r.Port, r.Region)
}

// SameIdentity reports whether two relays refer to the same credential.
// The secret is not part of the identity, matching how provider-side
// pause notices are keyed.
func (r Relay) SameIdentity(o Relay) bool {
	return r.Host == o.Host &&
		r.Port == o.Port &&
		r.Username == o.Username &&
		r.Region == o.Region
}

// Message is the content sent to every recipient of a run. Bodies are
// treated as opaque text; composition happens upstream.
type Message struct {
	From     string // sender address, optionally "Name <addr>"
	Subject  string
	TextBody string
	HTMLBody string // optional alternative part
}

// Validate checks that the message has the fields every transport needs.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.From) == "" {
		return &ValidationError{Field: "from", Message: "sender address is required"}
	}
	if _, err := mail.ParseAddress(m.From); err != nil {
		return &ValidationError{Field: "from", Message: "invalid sender address: " + m.From}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return &ValidationError{Field: "subject", Message: "subject is required"}
	}
	if strings.TrimSpace(m.TextBody) == "" {
		return &ValidationError{Field: "body", Message: "plain text body is required"}
	}
	return nil
}

// FromAddress returns the bare sender address for the SMTP envelope.
func (m *Message) FromAddress() string {
	addr, err := mail.ParseAddress(m.From)
	if err != nil {
		return m.From
	}
	return addr.Address
}

// Outcome is the per-recipient result of one delivery attempt. Exactly one
// Outcome is produced per recipient of a run.
type Outcome struct {
	Recipient string
	Success   bool
	Err       error // present iff Success is false
}

// ValidationError represents a validation error with specific field information.
type ValidationError struct {
	// Field is the name of the field that failed validation.
	Field string

	// Message is the validation error message.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Is implements error matching for errors.Is.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// CodeSendingPaused is the SMTP reply code AWS SES uses when sending has
// been paused for the account.
const CodeSendingPaused = 454

// pausedPhrase is the reply text that accompanies CodeSendingPaused.
const pausedPhrase = "Sending paused for this account"

// TransportError represents a structured error from a delivery transport.
type TransportError struct {
	// Transport is the name of the transport that produced the error.
	Transport string

	// Code is the transport-level reply code (SMTP reply code or HTTP
	// status), or 0 when no code was available.
	Code int

	// Message is the error text from the transport or remote server.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("transport %s error [%d]: %s", e.Transport, e.Code, e.Message)
	}
	return fmt.Sprintf("transport %s error: %s", e.Transport, e.Message)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Paused reports whether the error is a provider-side "sending paused for
// this account" response. Only these errors disable the relay that hit them.
func (e *TransportError) Paused() bool {
	return e.Code == CodeSendingPaused && strings.Contains(e.Message, pausedPhrase)
}

// NewTransportError creates a new transport error.
func NewTransportError(transport string, code int, message string, cause error) *TransportError {
	return &TransportError{
		Transport: transport,
		Code:      code,
		Message:   message,
		Cause:     cause,
	}
}

// IsPaused reports whether err (or any error it wraps) is a provider-side
// sending pause response.
func IsPaused(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Paused()
}
