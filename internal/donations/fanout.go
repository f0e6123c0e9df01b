package donations

import (
	"context"

	"donatrack/internal/models"
)

// Outcome is the terminal result handed to the fanout collaborator.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Fanout is the notification boundary. The services call each method at
// most once per real transition; the status write is already committed
// by then, so fanout failures are logged and never propagated back to
// the gateway caller.
type Fanout interface {
	// DeliverOutcome sends receipts, emails and in-app notifications for
	// a donation that just reached a terminal state.
	DeliverOutcome(ctx context.Context, d *models.Donation, outcome Outcome) error

	// DonationSubmitted notifies the donor and the recipient's staff that
	// a cash donation was recorded and awaits verification.
	DonationSubmitted(ctx context.Context, d *models.Donation) error

	// CashVerified notifies the donor; when a department performed the
	// verification, oversight staff are notified as well.
	CashVerified(ctx context.Context, d *models.Donation, byDepartment bool) error
}
