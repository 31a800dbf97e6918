package notify

import "context"

// Notifier delivers operator-facing alerts about scheduler faults.
type Notifier interface {
	// Send delivers an alert to the configured operator address
	Send(ctx context.Context, subject, body string) error

	// IsConfigured returns true if the notifier has server-side config
	IsConfigured() bool

	// Name returns the notifier name for logging
	Name() string
}
