package donations

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"donatrack/internal/models"
)

// Store is the persistence surface the donation services need. The
// conditional methods return whether the write was applied so a caller
// can tell "I made this transition happen" apart from "someone beat me
// to it" — that bit is what gates side-effect fanout.
type Store interface {
	Create(ctx context.Context, d *models.Donation) error
	GetByID(ctx context.Context, id string) (*models.Donation, error)
	GetByReference(ctx context.Context, ref string) (*models.Donation, error)

	// UpdateGatewayDetails stores the reference id, its kind and the
	// checkout URL right after the gateway call on the dispatch path.
	UpdateGatewayDetails(ctx context.Context, id, ref, kind, checkoutURL string) error

	// SetReference backfills a reference id only when none is stored yet.
	// Returns true when this call performed the write.
	SetReference(ctx context.Context, id, ref, kind string) (bool, error)

	// Transition conditionally moves the donation to a terminal gateway
	// status and stamps the fanout marker in the same statement. Returns
	// true only for the one caller whose write changed the row.
	Transition(ctx context.Context, id, to string) (bool, error)

	VerifyCash(ctx context.Context, id string, verifiedBy int, receiptNumber, notes string) (bool, error)
	CompleteCash(ctx context.Context, id string, completedBy int) (bool, error)
}

// Directory resolves donation targets.
type Directory interface {
	DepartmentByID(ctx context.Context, id int) (*models.Department, error)
	EventByID(ctx context.Context, id int) (*models.Event, error)
}

// SQLStore is the Postgres implementation of Store and Directory.
type SQLStore struct {
	DB *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{DB: db}
}

func (s *SQLStore) Create(ctx context.Context, d *models.Donation) error {
	query := `
		INSERT INTO donations
		  (id, donor_name, donor_email, donor_message, user_id,
		   amount, payment_method, status,
		   recipient_type, department_id, event_id, fanout_done_for)
		VALUES
		  ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	row := s.DB.QueryRowxContext(ctx, query,
		d.ID, d.DonorName, d.DonorEmail, d.DonorMessage, d.UserID,
		d.Amount, d.PaymentMethod, d.Status,
		d.RecipientType, d.DepartmentID, d.EventID, FanoutNone,
	)
	if err := row.Scan(&d.CreatedAt, &d.UpdatedAt); err != nil {
		return errInternal("failed to create donation", err)
	}
	d.FanoutDoneFor = FanoutNone
	return nil
}

func (s *SQLStore) GetByID(ctx context.Context, id string) (*models.Donation, error) {
	var d models.Donation
	err := s.DB.GetContext(ctx, &d, `SELECT * FROM donations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound("donation not found")
	}
	if err != nil {
		return nil, errInternal("failed to load donation", err)
	}
	return &d, nil
}

func (s *SQLStore) GetByReference(ctx context.Context, ref string) (*models.Donation, error) {
	var d models.Donation
	err := s.DB.GetContext(ctx, &d, `SELECT * FROM donations WHERE paymongo_reference_id = $1`, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound("donation not found")
	}
	if err != nil {
		return nil, errInternal("failed to load donation", err)
	}
	return &d, nil
}

func (s *SQLStore) UpdateGatewayDetails(ctx context.Context, id, ref, kind, checkoutURL string) error {
	query := `
		UPDATE donations
		   SET paymongo_reference_id = $1,
		       reference_kind = $2,
		       source_checkout_url = NULLIF($3, ''),
		       updated_at = now()
		 WHERE id = $4
	`
	if _, err := s.DB.ExecContext(ctx, query, ref, kind, checkoutURL, id); err != nil {
		return errInternal("failed to store gateway details", err)
	}
	return nil
}

func (s *SQLStore) SetReference(ctx context.Context, id, ref, kind string) (bool, error) {
	query := `
		UPDATE donations
		   SET paymongo_reference_id = $1, reference_kind = $2, updated_at = now()
		 WHERE id = $3 AND paymongo_reference_id IS NULL
	`
	res, err := s.DB.ExecContext(ctx, query, ref, kind, id)
	if err != nil {
		return false, errInternal("failed to backfill reference", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// transitionSources lists the statuses a terminal gateway status may be
// entered from. Everything else (terminal states included) makes the
// conditional UPDATE a no-op.
func transitionSources(to string) []string {
	var from []string
	for s, targets := range allowedTransitions {
		for _, t := range targets {
			if t == to {
				from = append(from, s)
			}
		}
	}
	return from
}

func (s *SQLStore) Transition(ctx context.Context, id, to string) (bool, error) {
	marker := FanoutNone
	switch to {
	case StatusSucceeded:
		marker = FanoutSucceeded
	case StatusFailed:
		marker = FanoutFailed
	}
	query := `
		UPDATE donations
		   SET status = $1, fanout_done_for = $2, updated_at = now()
		 WHERE id = $3 AND status = ANY($4)
	`
	res, err := s.DB.ExecContext(ctx, query, to, marker, id, transitionSources(to))
	if err != nil {
		return false, errInternal("failed to update donation status", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *SQLStore) VerifyCash(ctx context.Context, id string, verifiedBy int, receiptNumber, notes string) (bool, error) {
	query := `
		UPDATE donations
		   SET status = $1,
		       verified_by = $2,
		       verified_at = now(),
		       receipt_number = NULLIF($3, ''),
		       verification_notes = NULLIF($4, ''),
		       updated_at = now()
		 WHERE id = $5 AND status = $6
	`
	res, err := s.DB.ExecContext(ctx, query,
		StatusCashVerified, verifiedBy, receiptNumber, notes, id, StatusCashPendingVerify)
	if err != nil {
		return false, errInternal("failed to verify cash donation", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *SQLStore) CompleteCash(ctx context.Context, id string, completedBy int) (bool, error) {
	query := `
		UPDATE donations
		   SET status = $1,
		       completed_by = $2,
		       completed_at = now(),
		       fanout_done_for = $3,
		       updated_at = now()
		 WHERE id = $4 AND status = $5
	`
	res, err := s.DB.ExecContext(ctx, query,
		StatusCashCompleted, completedBy, FanoutSucceeded, id, StatusCashVerified)
	if err != nil {
		return false, errInternal("failed to complete cash donation", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *SQLStore) DepartmentByID(ctx context.Context, id int) (*models.Department, error) {
	var dep models.Department
	err := s.DB.GetContext(ctx, &dep, `SELECT * FROM departments WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound("department not found")
	}
	if err != nil {
		return nil, errInternal("failed to load department", err)
	}
	return &dep, nil
}

func (s *SQLStore) EventByID(ctx context.Context, id int) (*models.Event, error) {
	var ev models.Event
	err := s.DB.GetContext(ctx, &ev, `SELECT * FROM events WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound("event not found")
	}
	if err != nil {
		return nil, errInternal("failed to load event", err)
	}
	return &ev, nil
}
