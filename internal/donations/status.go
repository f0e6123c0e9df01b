package donations

import "strings"

// Donation statuses. succeeded, failed and cash_completed are terminal:
// no later observation may overwrite them.
const (
	StatusPending           = "pending"
	StatusCashPendingVerify = "cash_pending_verification"
	StatusCashVerified      = "cash_verified"
	StatusCashCompleted     = "cash_completed"
	StatusSucceeded         = "succeeded"
	StatusFailed            = "failed"
)

// Payment methods accepted at creation.
const (
	MethodCash    = "cash"
	MethodGCash   = "gcash"
	MethodPayMaya = "paymaya"
	MethodCard    = "card"
)

// Recipient types.
const (
	RecipientCRD        = "crd"
	RecipientDepartment = "department"
	RecipientEvent      = "event"
)

// Reference kinds, stored on the record at creation so the engine never
// has to re-derive them from the stored id.
const (
	RefKindSource = "source"
	RefKindIntent = "intent"
)

// Fanout markers.
const (
	FanoutNone      = "none"
	FanoutSucceeded = "succeeded"
	FanoutFailed    = "failed"
)

// allowedTransitions is keyed by current status. Terminal states map to
// an empty set.
var allowedTransitions = map[string][]string{
	StatusPending:           {StatusSucceeded, StatusFailed},
	StatusCashPendingVerify: {StatusCashVerified, StatusFailed},
	StatusCashVerified:      {StatusCashCompleted, StatusFailed},
	StatusCashCompleted:     {},
	StatusSucceeded:         {},
	StatusFailed:            {},
}

// IsTerminal reports whether no further transition may alter the status.
func IsTerminal(status string) bool {
	return len(allowedTransitions[status]) == 0
}

// CanTransition reports whether moving from one status to another is
// allowed by the lifecycle lattice.
func CanTransition(from, to string) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidMethod reports whether m is one of the accepted payment methods.
func ValidMethod(m string) bool {
	switch m {
	case MethodCash, MethodGCash, MethodPayMaya, MethodCard:
		return true
	}
	return false
}

// ClassifyReference maps a gateway reference id to its kind by the fixed
// two-namespace prefix convention. It fails closed: anything that is not
// clearly a source or a payment intent is rejected rather than guessed at.
func ClassifyReference(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "src_"):
		return RefKindSource, nil
	case strings.HasPrefix(ref, "pi_"):
		return RefKindIntent, nil
	}
	return "", errUnrecognizedReference(ref)
}
