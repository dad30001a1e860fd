// Package email delivers the transactional mails of the app through SMTP or
// the Resend API.
package email

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("email not configured")

// Message is one outbound HTML mail. Bcc recipients are never listed in the
// visible headers.
type Message struct {
	To      []string
	Bcc     []string
	ReplyTo string
	Subject string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
	Configured() bool
}

// Disabled is the sender used when neither SMTP nor Resend is set up.
type Disabled struct{}

func (Disabled) Send(context.Context, Message) error { return ErrNotConfigured }
func (Disabled) Configured() bool                    { return false }

// Pick returns the Resend sender when an API key is set, SMTP when a host is
// set, and Disabled otherwise.
func Pick(resendKey, resendFrom string, smtp Config) Sender {
	if resendKey != "" {
		return NewResendSender(resendKey, resendFrom)
	}
	svc := NewService(smtp)
	if svc.Configured() {
		return svc
	}
	return Disabled{}
}
