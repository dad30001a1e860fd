package email

import (
	"bytes"
	"html/template"
)

var templates = template.Must(template.New("email").Parse(`
{{define "layout-start"}}<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #00356b; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #00356b; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #00356b; }
        .warning { background: #fff3cd; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .quote { background: #f5f7fa; padding: 12px; border-left: 3px solid #00356b; white-space: pre-wrap; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>
{{end}}

{{define "layout-end"}}
    <div class="footer">
        <p>{{.AppName}} &middot; Questions? Reply to this email or write to {{.SupportEmail}}.</p>
    </div>
</body>
</html>{{end}}

{{define "verification"}}{{template "layout-start" .}}
    <h2>Welcome, {{.UserName}}!</h2>
    <p>Thank you for signing up. Please verify your email address to activate your account.</p>
    <p><a href="{{.URL}}" class="button">Verify Email Address</a></p>
    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.URL}}</p>
    <p>This verification link will expire in 24 hours.</p>
{{template "layout-end" .}}{{end}}

{{define "password-reset"}}{{template "layout-start" .}}
    <h2>Password Reset Request</h2>
    <p>Hi {{.UserName}},</p>
    <p>We received a request to reset your password. Click the button below to create a new password:</p>
    <p><a href="{{.URL}}" class="button">Reset Password</a></p>
    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.URL}}</p>
    <div class="warning">
        <strong>Important:</strong> This reset link will expire in 1 hour.
    </div>
    <p>If you didn't request a password reset, you can safely ignore this email. Your password will remain unchanged.</p>
{{template "layout-end" .}}{{end}}

{{define "psa"}}{{template "layout-start" .}}
    <h2>Your {{.State}} Private School Affidavit</h2>
    <p>Your affidavit for <strong>{{.SchoolName}}</strong> has been filed with {{.AppName}}.</p>
    <p>A copy is stored with your compliance documents. Download it here:</p>
    <p><a href="{{.URL}}" class="button">Download {{.FileName}}</a></p>
    <p class="link">{{.URL}}</p>
    <p>Keep this copy with your school records. The state may ask for it during an audit.</p>
{{template "layout-end" .}}{{end}}

{{define "support"}}{{template "layout-start" .}}
    <h2>We received your message</h2>
    <p>Hi {{.UserName}},</p>
    <p>Thanks for contacting {{.AppName}} support about <strong>{{.Category}}</strong>. Our team will get back to you shortly.</p>
    <p>Your message:</p>
    <div class="quote">{{.Message}}</div>
{{template "layout-end" .}}{{end}}
`))

type templateData struct {
	AppName      string
	SupportEmail string
	Subject      string
	UserName     string
	URL          string
	State        string
	SchoolName   string
	FileName     string
	Category     string
	Message      string
}

func renderTemplate(name string, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
