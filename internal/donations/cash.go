package donations

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"donatrack/internal/models"
)

// Actor is whoever is invoking a cash-workflow operation.
type Actor struct {
	UserID       int
	Role         string // donor | staff | department
	DepartmentID *int
}

// Action names a cash-workflow operation an actor may perform.
type Action string

const (
	ActionVerifyCash   Action = "verify_cash"
	ActionCompleteCash Action = "complete_cash"
)

// Authorize is the single authorization predicate for the cash workflow:
// oversight staff may act on any cash donation, a department only on
// donations it is the direct recipient of.
func Authorize(actor Actor, d *models.Donation) map[Action]bool {
	permitted := map[Action]bool{}
	switch actor.Role {
	case "staff":
		permitted[ActionVerifyCash] = true
		permitted[ActionCompleteCash] = true
	case "department":
		if actor.DepartmentID != nil &&
			d.RecipientType == RecipientDepartment &&
			d.DepartmentID.Valid &&
			d.DepartmentID.Int64 == int64(*actor.DepartmentID) {
			permitted[ActionVerifyCash] = true
			permitted[ActionCompleteCash] = true
		}
	}
	return permitted
}

// CashService drives the manual verification workflow for cash
// donations. No PSP is involved; the states move
// cash_pending_verification -> cash_verified -> cash_completed.
type CashService struct {
	store  Store
	fanout Fanout
	log    zerolog.Logger
}

func NewCashService(store Store, fanout Fanout, log zerolog.Logger) *CashService {
	return &CashService{store: store, fanout: fanout, log: log}
}

type VerifyCashInput struct {
	DonationID    string
	ReceiptNumber string
	Notes         string
}

// Verify records that the cash was physically received and counted.
func (s *CashService) Verify(ctx context.Context, actor Actor, in VerifyCashInput) (*models.Donation, error) {
	d, err := s.store.GetByID(ctx, in.DonationID)
	if err != nil {
		return nil, err
	}
	if d.PaymentMethod != MethodCash {
		return nil, errValidation("donation is not a cash donation")
	}
	if !Authorize(actor, d)[ActionVerifyCash] {
		return nil, errForbidden("not allowed to verify this donation")
	}
	if d.Status != StatusCashPendingVerify {
		return nil, errPrecondition(StatusCashPendingVerify, d.Status)
	}

	applied, err := s.store.VerifyCash(ctx, d.ID, actor.UserID, in.ReceiptNumber, in.Notes)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost a race with another verifier; the state has already moved.
		return nil, errPrecondition(StatusCashPendingVerify, StatusCashVerified)
	}

	d.Status = StatusCashVerified
	d.VerifiedBy = sql.NullInt64{Int64: int64(actor.UserID), Valid: true}
	d.VerifiedAt = sql.NullTime{Time: time.Now(), Valid: true}
	if in.ReceiptNumber != "" {
		d.ReceiptNumber = sql.NullString{String: in.ReceiptNumber, Valid: true}
	}
	if in.Notes != "" {
		d.VerificationNotes = sql.NullString{String: in.Notes, Valid: true}
	}

	byDepartment := actor.Role == "department"
	if err := s.fanout.CashVerified(ctx, d, byDepartment); err != nil {
		s.log.Error().Err(err).Str("donation_id", d.ID).Msg("cash verified notification failed")
	}
	return d, nil
}

// Complete closes out a verified cash donation and triggers the same
// success fanout the gateway paths use (receipt plus notifications).
func (s *CashService) Complete(ctx context.Context, actor Actor, donationID string) (*models.Donation, error) {
	d, err := s.store.GetByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if d.PaymentMethod != MethodCash {
		return nil, errValidation("donation is not a cash donation")
	}
	if !Authorize(actor, d)[ActionCompleteCash] {
		return nil, errForbidden("not allowed to complete this donation")
	}
	if d.Status != StatusCashVerified {
		return nil, errPrecondition(StatusCashVerified, d.Status)
	}

	applied, err := s.store.CompleteCash(ctx, d.ID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, errPrecondition(StatusCashVerified, StatusCashCompleted)
	}

	d.Status = StatusCashCompleted
	d.CompletedBy = sql.NullInt64{Int64: int64(actor.UserID), Valid: true}
	d.CompletedAt = sql.NullTime{Time: time.Now(), Valid: true}
	d.FanoutDoneFor = FanoutSucceeded

	if err := s.fanout.DeliverOutcome(ctx, d, OutcomeSucceeded); err != nil {
		s.log.Error().Err(err).Str("donation_id", d.ID).Msg("cash completion fanout failed")
	}
	return d, nil
}
