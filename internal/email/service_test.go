package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"net/url"
	"strings"
	"testing"
)

func TestServiceConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "missing host", config: Config{Port: "587", From: "test@example.com"}, expected: false},
		{name: "missing port", config: Config{Host: "smtp.example.com", From: "test@example.com"}, expected: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: "587"}, expected: false},
		{name: "fully configured", config: Config{Host: "smtp.example.com", Port: "587", From: "test@example.com"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.Configured() != tt.expected {
				t.Errorf("Configured() = %v, want %v", svc.Configured(), tt.expected)
			}
		})
	}
}

func TestSMTPSendKeepsBccOutOfHeaders(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "noreply@youredu.school", FromName: "YourEDU"})
	var gotTo []string
	var gotMsg string
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		if addr != "smtp.example.com:587" || from != "noreply@youredu.school" {
			t.Fatalf("unexpected envelope %s %s", addr, from)
		}
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	err := svc.Send(context.Background(), Message{
		To:      []string{"parent@example.com"},
		Bcc:     []string{"support@youredu.school"},
		Subject: "Hello",
		HTML:    "<p>hi</p>",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(gotTo) != 2 || gotTo[1] != "support@youredu.school" {
		t.Fatalf("bcc should be an envelope recipient, got %v", gotTo)
	}
	if strings.Contains(gotMsg, "support@youredu.school") {
		t.Fatal("bcc address leaked into headers")
	}
	if !strings.Contains(gotMsg, "From: YourEDU <noreply@youredu.school>") || !strings.Contains(gotMsg, "<p>hi</p>") {
		t.Fatalf("unexpected message:\n%s", gotMsg)
	}
}

func TestSMTPSendRequiresConfig(t *testing.T) {
	if err := NewService(Config{}).Send(context.Background(), Message{To: []string{"a@b.c"}}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

type captureSender struct {
	messages []Message
	err      error
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	c.messages = append(c.messages, msg)
	return c.err
}

func (c *captureSender) Configured() bool { return true }

func TestPasswordResetEmailBuildsRecoveryLink(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(sender, "https://app.youredu.school/", "support@youredu.school")

	if err := n.SendPasswordResetEmail(context.Background(), "pat@example.com", "", "tok+1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := sender.messages[0]
	if !strings.Contains(msg.HTML, "https://app.youredu.school/reset-password?token=tok%2B1") {
		t.Fatalf("reset link missing from body:\n%s", msg.HTML)
	}
	if !strings.Contains(msg.HTML, "Hi pat,") {
		t.Fatal("expected the local part of the address as fallback name")
	}
	if !strings.Contains(msg.HTML, "1 hour") {
		t.Error("template should mention expiration time")
	}
}

func TestSupportConfirmationCopiesSupport(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(sender, "https://app.youredu.school", "support@youredu.school")

	err := n.SendSupportConfirmation(context.Background(), SupportRequest{
		Name:     "Pat Parent",
		Email:    "pat@example.com",
		Category: "Billing",
		Message:  "<b>help</b>",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := sender.messages[0]
	if len(msg.Bcc) != 1 || msg.Bcc[0] != "support@youredu.school" {
		t.Fatalf("expected support bcc, got %v", msg.Bcc)
	}
	if msg.To[0] != "pat@example.com" || !strings.Contains(msg.Subject, "Billing") {
		t.Fatalf("unexpected message %+v", msg)
	}
	if strings.Contains(msg.HTML, "<b>help</b>") {
		t.Fatal("user message must be escaped")
	}
}

func TestPSAEmailCarriesFileLink(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(sender, "https://app.youredu.school", "support@youredu.school")
	p := PSAEmail{UserID: "u1", Email: "pat@example.com", FileURL: "https://files/psa.pdf", FileName: "PSA_Oak.pdf", SchoolName: "Oak"}

	subject, html, err := n.RenderPSAEmail(p)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "Your California Private School Affidavit" || !strings.Contains(html, "https://files/psa.pdf") {
		t.Fatalf("unexpected preview %q", subject)
	}
	if err := n.SendPSAEmail(context.Background(), p); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sender.messages[0].HTML != html {
		t.Fatal("sent mail should match the preview")
	}
	if err := n.SendPSAEmail(context.Background(), PSAEmail{}); err == nil {
		t.Fatal("expected error without recipient")
	}
}

func TestDisabledNotifier(t *testing.T) {
	n := NewNotifier(nil, "", "")
	if n.Configured() {
		t.Fatal("nil sender should be disabled")
	}
	if err := n.SendPasswordResetEmail(context.Background(), "a@b.c", "A", "t"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestPickPrefersResend(t *testing.T) {
	if _, ok := Pick("re_key", "YourEDU <noreply@youredu.school>", Config{Host: "smtp"}).(*ResendSender); !ok {
		t.Fatal("expected resend sender")
	}
	if _, ok := Pick("", "", Config{Host: "smtp", Port: "25", From: "a@b.c"}).(*Service); !ok {
		t.Fatal("expected smtp sender")
	}
	if _, ok := Pick("", "", Config{}).(Disabled); !ok {
		t.Fatal("expected disabled sender")
	}
}

func TestResendSenderPostsEmail(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/emails") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer re_test" {
			t.Errorf("unexpected auth header %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email_123"}`))
	}))
	defer server.Close()

	sender := NewResendSender("re_test", "YourEDU <noreply@youredu.school>")
	base, _ := url.Parse(server.URL + "/")
	sender.client.BaseURL = base

	err := sender.Send(context.Background(), Message{To: []string{"pat@example.com"}, Bcc: []string{"support@youredu.school"}, Subject: "Hi", HTML: "<p>x</p>"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if body["subject"] != "Hi" || body["from"] != "YourEDU <noreply@youredu.school>" {
		t.Fatalf("unexpected payload %v", body)
	}
}
