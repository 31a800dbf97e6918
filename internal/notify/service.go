package notify

import (
	"context"
	"fmt"
)

// Service fans scheduler faults out to the configured notifier.
// Alert failures are logged but never propagate; alerting is best-effort.
type Service struct {
	notifier Notifier
}

// NewService creates a notification service. The notifier may be nil.
func NewService(notifier Notifier) *Service {
	return &Service{notifier: notifier}
}

// Alert sends an operator alert if a notifier is configured.
func (s *Service) Alert(ctx context.Context, subject, body string) {
	fmt.Printf("Alert: %s: %s\n", subject, body)

	if s.notifier == nil || !s.notifier.IsConfigured() {
		return
	}

	if err := s.notifier.Send(ctx, subject, body); err != nil {
		fmt.Printf("Alert: %s notifier failed: %v\n", s.notifier.Name(), err)
	}
}

// IsAvailable returns true if alerts can reach an operator
func (s *Service) IsAvailable() bool {
	return s.notifier != nil && s.notifier.IsConfigured()
}
