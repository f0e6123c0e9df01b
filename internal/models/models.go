package models

import (
	"database/sql"
	"time"
)

// We use 'db' tags for sqlx to automatically map
// the database column names (snake_case) to our Go fields (CamelCase).

// User represents an account that can log in: donors who want their
// donations linked to them, department treasurers, and CRD oversight staff.
type User struct {
	ID           int           `db:"id"`
	Email        string        `db:"email"`
	Name         string        `db:"name"`
	PasswordHash string        `db:"password_hash"`
	Role         string        `db:"role"` // donor | staff | department
	DepartmentID sql.NullInt64 `db:"department_id"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

// Department is an organizational unit. Only departments flagged as
// recipients may be the direct target of a donation.
type Department struct {
	ID          int       `db:"id"`
	Name        string    `db:"name"`
	IsRecipient bool      `db:"is_recipient"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Event is a fundraising event that donations can be earmarked for.
type Event struct {
	ID           int           `db:"id"`
	Title        string        `db:"title"`
	DepartmentID sql.NullInt64 `db:"department_id"`
	StartsAt     time.Time     `db:"starts_at"`
	EndsAt       time.Time     `db:"ends_at"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

// Donation is one donation attempt and its full lifecycle. Records are
// never deleted; the table doubles as the transparency audit trail.
type Donation struct {
	ID           string         `db:"id" json:"id"`
	DonorName    string         `db:"donor_name" json:"donor_name"`
	DonorEmail   string         `db:"donor_email" json:"donor_email"`
	DonorMessage string         `db:"donor_message" json:"donor_message"`
	UserID       sql.NullInt64  `db:"user_id" json:"-"`

	// Amount is in whole pesos. It is scaled to centavos (x100) only at
	// the gateway boundary.
	Amount        int64  `db:"amount" json:"amount"`
	PaymentMethod string `db:"payment_method" json:"payment_method"` // cash | gcash | paymaya | card
	Status        string `db:"status" json:"status"`

	// PaymongoReferenceID names either a source (src_...) or a payment
	// intent (pi_...). ReferenceKind records which one explicitly so the
	// engine never has to sniff the stored value.
	PaymongoReferenceID sql.NullString `db:"paymongo_reference_id" json:"-"`
	ReferenceKind       sql.NullString `db:"reference_kind" json:"-"`
	SourceCheckoutURL   sql.NullString `db:"source_checkout_url" json:"-"`

	RecipientType string        `db:"recipient_type" json:"recipient_type"` // crd | department | event
	DepartmentID  sql.NullInt64 `db:"department_id" json:"-"`
	EventID       sql.NullInt64 `db:"event_id" json:"-"`

	// Cash verification sub-record, populated only for the cash flow.
	VerifiedBy        sql.NullInt64  `db:"verified_by" json:"-"`
	VerifiedAt        sql.NullTime   `db:"verified_at" json:"-"`
	ReceiptNumber     sql.NullString `db:"receipt_number" json:"-"`
	VerificationNotes sql.NullString `db:"verification_notes" json:"-"`
	CompletedBy       sql.NullInt64  `db:"completed_by" json:"-"`
	CompletedAt       sql.NullTime   `db:"completed_at" json:"-"`

	// FanoutDoneFor is written in the same UPDATE as the terminal status
	// so at most one caller ever observes the transition it gates on.
	FanoutDoneFor string `db:"fanout_done_for" json:"-"` // none | succeeded | failed

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Notification is an in-app notification row delivered to a user's feed.
type Notification struct {
	ID         int           `db:"id"`
	UserID     sql.NullInt64 `db:"user_id"`
	DonationID string        `db:"donation_id"`
	Kind       string        `db:"kind"`
	Message    string        `db:"message"`
	ReadAt     sql.NullTime  `db:"read_at"`
	CreatedAt  time.Time     `db:"created_at"`
}
