package email

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const appName = "YourEDU"

// Notifier renders and sends the app's transactional mails.
type Notifier struct {
	sender       Sender
	appURL       string
	supportEmail string
}

func NewNotifier(sender Sender, appURL, supportEmail string) *Notifier {
	if sender == nil {
		sender = Disabled{}
	}
	return &Notifier{
		sender:       sender,
		appURL:       strings.TrimRight(appURL, "/"),
		supportEmail: supportEmail,
	}
}

func (n *Notifier) Configured() bool {
	return n.sender.Configured()
}

func (n *Notifier) base(subject string) templateData {
	return templateData{AppName: appName, SupportEmail: n.supportEmail, Subject: subject}
}

// PSAEmail is the payload of the affidavit confirmation.
type PSAEmail struct {
	UserID     string
	Email      string
	FileURL    string
	FileName   string
	State      string
	SchoolName string
}

// RenderPSAEmail returns the subject and body of the affidavit confirmation,
// also used for the preview shown before submit.
func (n *Notifier) RenderPSAEmail(p PSAEmail) (string, string, error) {
	state := p.State
	if state == "" {
		state = "California"
	}
	subject := fmt.Sprintf("Your %s Private School Affidavit", state)
	data := n.base(subject)
	data.State = state
	data.SchoolName = p.SchoolName
	data.FileName = p.FileName
	data.URL = p.FileURL
	html, err := renderTemplate("psa", data)
	if err != nil {
		return "", "", fmt.Errorf("render psa email: %w", err)
	}
	return subject, html, nil
}

func (n *Notifier) SendPSAEmail(ctx context.Context, p PSAEmail) error {
	if p.Email == "" {
		return fmt.Errorf("send psa email: missing recipient")
	}
	subject, html, err := n.RenderPSAEmail(p)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, Message{To: []string{p.Email}, ReplyTo: n.supportEmail, Subject: subject, HTML: html})
}

// ResetURL builds the recovery link for a reset token.
func (n *Notifier) ResetURL(token string) string {
	return n.appURL + "/reset-password?token=" + url.QueryEscape(token)
}

func (n *Notifier) SendPasswordResetEmail(ctx context.Context, to, name, token string) error {
	subject := "Reset your " + appName + " password"
	data := n.base(subject)
	data.UserName = displayName(name, to)
	data.URL = n.ResetURL(token)
	html, err := renderTemplate("password-reset", data)
	if err != nil {
		return fmt.Errorf("render password reset email: %w", err)
	}
	return n.sender.Send(ctx, Message{To: []string{to}, Subject: subject, HTML: html})
}

func (n *Notifier) SendVerificationEmail(ctx context.Context, to, name, token string) error {
	subject := "Verify your " + appName + " account"
	data := n.base(subject)
	data.UserName = displayName(name, to)
	data.URL = n.appURL + "/verify-email?token=" + url.QueryEscape(token)
	html, err := renderTemplate("verification", data)
	if err != nil {
		return fmt.Errorf("render verification email: %w", err)
	}
	return n.sender.Send(ctx, Message{To: []string{to}, Subject: subject, HTML: html})
}

// SupportRequest is a message submitted through the support form.
type SupportRequest struct {
	Name     string
	Email    string
	Category string
	Message  string
}

// SendSupportConfirmation acknowledges a support request to the sender and
// copies the support inbox.
func (n *Notifier) SendSupportConfirmation(ctx context.Context, req SupportRequest) error {
	subject := fmt.Sprintf("[%s] We received your message", req.Category)
	data := n.base(subject)
	data.UserName = displayName(req.Name, req.Email)
	data.Category = req.Category
	data.Message = req.Message
	html, err := renderTemplate("support", data)
	if err != nil {
		return fmt.Errorf("render support email: %w", err)
	}
	msg := Message{To: []string{req.Email}, ReplyTo: n.supportEmail, Subject: subject, HTML: html}
	if n.supportEmail != "" {
		msg.Bcc = []string{n.supportEmail}
	}
	return n.sender.Send(ctx, msg)
}

func displayName(name, email string) string {
	if strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return "there"
}
