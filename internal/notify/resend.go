package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/resend/resend-go/v2"
)

// ResendNotifier sends operator alert emails via the Resend API
type ResendNotifier struct {
	client      *resend.Client
	fromAddress string
	toAddress   string
}

// NewResendNotifier creates a new Resend email notifier
func NewResendNotifier(apiKey, from, to string) *ResendNotifier {
	if apiKey == "" {
		return nil
	}
	return &ResendNotifier{
		client:      resend.NewClient(apiKey),
		fromAddress: from,
		toAddress:   to,
	}
}

// IsConfigured returns true if the notifier has server-side config
func (r *ResendNotifier) IsConfigured() bool {
	return r.client != nil && r.fromAddress != "" && r.toAddress != ""
}

// Send sends an alert email to the configured operator address
func (r *ResendNotifier) Send(_ context.Context, subject, body string) error {
	if !r.IsConfigured() {
		return fmt.Errorf("resend notifier not configured")
	}

	params := &resend.SendEmailRequest{
		From:    r.fromAddress,
		To:      []string{r.toAddress},
		Subject: fmt.Sprintf("[Mayordomo] %s", subject),
		Html:    r.formatEmailHTML(subject, body),
	}

	_, err := r.client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("resend send failed: %w", err)
	}

	return nil
}

// Name returns the notifier name
func (r *ResendNotifier) Name() string {
	return "resend"
}

func (r *ResendNotifier) formatEmailHTML(subject, body string) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="margin: 0 0 16px 0; color: #333;">%s</h2>
  <div style="background: #f8f9fa; padding: 16px; border-radius: 8px; border-left: 4px solid #dc3545;">
    <pre style="margin: 0; white-space: pre-wrap;">%s</pre>
  </div>
  <p style="color: #999; font-size: 12px; margin-top: 16px;">
    Mayordomo scheduler alert<br>
    <span style="color: #ccc;">Sent at %s</span>
  </p>
</body>
</html>`,
		subject,
		body,
		time.Now().Format("Jan 2, 2006 3:04 PM"),
	)
}
