// Package notify is the side-effect fanout boundary: emails, in-app
// notification rows and staff dashboard alerts. Everything here is
// best-effort — the donation status is already durable before any of
// this runs, so partial delivery is logged and tolerated.
package notify

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"donatrack/internal/donations"
	"donatrack/internal/models"
	ws "donatrack/internal/websocket"
)

type Service struct {
	DB     *sqlx.DB
	Mailer Mailer
	Hub    *ws.Hub
	Log    zerolog.Logger
}

func NewService(db *sqlx.DB, mailer Mailer, hub *ws.Hub, log zerolog.Logger) *Service {
	return &Service{DB: db, Mailer: mailer, Hub: hub, Log: log}
}

// DeliverOutcome implements donations.Fanout for terminal transitions.
func (s *Service) DeliverOutcome(ctx context.Context, d *models.Donation, outcome donations.Outcome) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if outcome == donations.OutcomeSucceeded {
		body := fmt.Sprintf(
			"Dear %s,\n\nThank you for your donation of PHP %d.00. This message serves as your official receipt.\n\nReference: %s",
			d.DonorName, d.Amount, d.ID)
		record(s.Mailer.Send(ctx, []string{d.DonorEmail}, "Donation received — thank you!", body))
		record(s.notifyAudience(ctx, d, "donation_succeeded",
			fmt.Sprintf("Donation of PHP %d.00 from %s was received.", d.Amount, d.DonorName)))
	} else {
		body := fmt.Sprintf(
			"Dear %s,\n\nUnfortunately your donation of PHP %d.00 could not be completed. No money was taken. You are welcome to try again.",
			d.DonorName, d.Amount)
		record(s.Mailer.Send(ctx, []string{d.DonorEmail}, "Donation could not be completed", body))
		record(s.notifyAudience(ctx, d, "donation_failed",
			fmt.Sprintf("Donation of PHP %d.00 from %s failed.", d.Amount, d.DonorName)))
	}

	s.pushAlert(d, fmt.Sprintf("Donation %s: %s", d.ID, d.Status))
	return firstErr
}

// DonationSubmitted implements donations.Fanout for newly pledged cash.
func (s *Service) DonationSubmitted(ctx context.Context, d *models.Donation) error {
	var firstErr error
	body := fmt.Sprintf(
		"Dear %s,\n\nYour cash donation pledge of PHP %d.00 was recorded. It will be confirmed once the cash is received and verified.",
		d.DonorName, d.Amount)
	if err := s.Mailer.Send(ctx, []string{d.DonorEmail}, "Donation pledge recorded", body); err != nil {
		firstErr = err
	}
	if err := s.notifyAudience(ctx, d, "cash_submitted",
		fmt.Sprintf("Cash donation pledge of PHP %d.00 from %s awaits verification.", d.Amount, d.DonorName)); err != nil && firstErr == nil {
		firstErr = err
	}
	s.pushAlert(d, fmt.Sprintf("Cash pledge %s awaits verification", d.ID))
	return firstErr
}

// CashVerified implements donations.Fanout for the verification step.
func (s *Service) CashVerified(ctx context.Context, d *models.Donation, byDepartment bool) error {
	var firstErr error
	body := fmt.Sprintf(
		"Dear %s,\n\nYour cash donation of PHP %d.00 has been verified as received. A final confirmation follows once processing completes.",
		d.DonorName, d.Amount)
	if err := s.Mailer.Send(ctx, []string{d.DonorEmail}, "Donation verified", body); err != nil {
		firstErr = err
	}
	if byDepartment {
		// Oversight staff get a copy whenever a department verifies its
		// own donations, for transparency.
		if err := s.notifyRole(ctx, d, "staff", "cash_verified",
			fmt.Sprintf("Department-verified cash donation of PHP %d.00 from %s.", d.Amount, d.DonorName)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.pushAlert(d, fmt.Sprintf("Cash donation %s verified", d.ID))
	return firstErr
}

// notifyAudience inserts notification rows for the donor's linked
// account (if any), oversight staff, and the recipient department.
func (s *Service) notifyAudience(ctx context.Context, d *models.Donation, kind, message string) error {
	if d.UserID.Valid {
		query := `INSERT INTO notifications (user_id, donation_id, kind, message) VALUES ($1, $2, $3, $4)`
		if _, err := s.DB.ExecContext(ctx, query, d.UserID.Int64, d.ID, kind, message); err != nil {
			return fmt.Errorf("failed to insert donor notification: %w", err)
		}
	}
	if err := s.notifyRole(ctx, d, "staff", kind, message); err != nil {
		return err
	}
	if d.DepartmentID.Valid {
		query := `
			INSERT INTO notifications (user_id, donation_id, kind, message)
			SELECT id, $1, $2, $3 FROM users WHERE role = 'department' AND department_id = $4
		`
		if _, err := s.DB.ExecContext(ctx, query, d.ID, kind, message, d.DepartmentID.Int64); err != nil {
			return fmt.Errorf("failed to insert department notifications: %w", err)
		}
	}
	return nil
}

func (s *Service) notifyRole(ctx context.Context, d *models.Donation, role, kind, message string) error {
	query := `
		INSERT INTO notifications (user_id, donation_id, kind, message)
		SELECT id, $1, $2, $3 FROM users WHERE role = $4
	`
	if _, err := s.DB.ExecContext(ctx, query, d.ID, kind, message, role); err != nil {
		return fmt.Errorf("failed to insert %s notifications: %w", role, err)
	}
	return nil
}

func (s *Service) pushAlert(d *models.Donation, message string) {
	alert := ws.StaffAlert{
		DonationID:    d.ID,
		DonorName:     d.DonorName,
		Amount:        d.Amount,
		PaymentMethod: d.PaymentMethod,
		Status:        d.Status,
		Message:       message,
	}
	if d.DepartmentID.Valid {
		alert.TargetDepartmentID = int(d.DepartmentID.Int64)
	}
	select {
	case s.Hub.BroadcastAlert <- alert:
	default:
		s.Log.Warn().Str("donation_id", d.ID).Msg("staff alert dropped, hub busy")
	}
}
