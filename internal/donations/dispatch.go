package donations

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"donatrack/internal/models"
	"donatrack/internal/paymongo"
)

// GatewayConfig is the slice of configuration the payment paths depend
// on. Ready is checked before any record is created so a misconfigured
// deploy fails fast instead of leaving half-dispatched donations behind.
type GatewayConfig struct {
	SecretKey   string
	BaseURL     string
	RedirectURL string // the API's own paymongo-redirect endpoint
}

func (c GatewayConfig) Ready() error {
	switch {
	case c.SecretKey == "":
		return errConfiguration("PAYMONGO_SECRET_KEY")
	case c.BaseURL == "":
		return errConfiguration("PAYMONGO_BASE_URL")
	case c.RedirectURL == "":
		return errConfiguration("API_BASE_URL")
	}
	return nil
}

// DispatchService creates donation records and routes them to the cash
// workflow or the gateway by payment method.
type DispatchService struct {
	store   Store
	dir     Directory
	gateway Gateway
	fanout  Fanout
	cfg     GatewayConfig
	log     zerolog.Logger
}

func NewDispatchService(store Store, dir Directory, gateway Gateway, fanout Fanout, cfg GatewayConfig, log zerolog.Logger) *DispatchService {
	return &DispatchService{store: store, dir: dir, gateway: gateway, fanout: fanout, cfg: cfg, log: log}
}

type CreateInput struct {
	DonorName     string
	DonorEmail    string
	DonorMessage  string
	Amount        int64 // whole pesos
	PaymentMethod string
	RecipientType string
	DepartmentID  *int
	EventID       *int
	UserID        *int
}

type CreateResult struct {
	Donation    *models.Donation
	CheckoutURL string
}

func (s *DispatchService) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if strings.TrimSpace(in.DonorName) == "" {
		return nil, errValidation("donor name is required")
	}
	if strings.TrimSpace(in.DonorEmail) == "" {
		return nil, errValidation("donor email is required")
	}
	if in.Amount <= 0 {
		return nil, errValidation("amount must be positive")
	}
	if !ValidMethod(in.PaymentMethod) {
		return nil, errValidation("unsupported payment method %q", in.PaymentMethod)
	}

	d := &models.Donation{
		ID:            uuid.NewString(),
		DonorName:     in.DonorName,
		DonorEmail:    in.DonorEmail,
		DonorMessage:  in.DonorMessage,
		Amount:        in.Amount,
		PaymentMethod: in.PaymentMethod,
		RecipientType: in.RecipientType,
	}
	if d.RecipientType == "" {
		d.RecipientType = RecipientCRD
	}
	if in.UserID != nil {
		d.UserID = sql.NullInt64{Int64: int64(*in.UserID), Valid: true}
	}

	if err := s.resolveRecipient(ctx, d, in); err != nil {
		return nil, err
	}

	if in.PaymentMethod == MethodCash {
		return s.createCash(ctx, d)
	}

	// Gateway-mediated methods: refuse before creating anything when the
	// payment configuration is incomplete.
	if err := s.cfg.Ready(); err != nil {
		return nil, err
	}

	d.Status = StatusPending
	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}

	switch in.PaymentMethod {
	case MethodGCash:
		return s.dispatchSource(ctx, d)
	default: // paymaya, card
		return s.dispatchIntent(ctx, d)
	}
}

func (s *DispatchService) resolveRecipient(ctx context.Context, d *models.Donation, in CreateInput) error {
	switch d.RecipientType {
	case RecipientCRD:
		return nil
	case RecipientDepartment:
		if in.DepartmentID == nil {
			return errValidation("department id is required for department donations")
		}
		dep, err := s.dir.DepartmentByID(ctx, *in.DepartmentID)
		if err != nil {
			return err
		}
		if !dep.IsRecipient {
			return errValidation("department %q does not accept direct donations", dep.Name)
		}
		d.DepartmentID = sql.NullInt64{Int64: int64(dep.ID), Valid: true}
		return nil
	case RecipientEvent:
		if in.EventID == nil {
			return errValidation("event id is required for event donations")
		}
		ev, err := s.dir.EventByID(ctx, *in.EventID)
		if err != nil {
			return err
		}
		d.EventID = sql.NullInt64{Int64: int64(ev.ID), Valid: true}
		if ev.DepartmentID.Valid {
			d.DepartmentID = ev.DepartmentID
		}
		return nil
	}
	return errValidation("unsupported recipient type %q", d.RecipientType)
}

func (s *DispatchService) createCash(ctx context.Context, d *models.Donation) (*CreateResult, error) {
	d.Status = StatusCashPendingVerify
	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}
	// Recipient staff see the pledge immediately, even when a department
	// is the direct recipient, so cash handling stays transparent.
	if err := s.fanout.DonationSubmitted(ctx, d); err != nil {
		s.log.Error().Err(err).Str("donation_id", d.ID).Msg("cash submitted notification failed")
	}
	return &CreateResult{Donation: d}, nil
}

func (s *DispatchService) dispatchSource(ctx context.Context, d *models.Donation) (*CreateResult, error) {
	redirect := s.cfg.RedirectURL + "?donationId=" + d.ID
	src, err := s.gateway.CreateSource(ctx, paymongo.CreateSourceRequest{
		Amount:   d.Amount * 100,
		Currency: "PHP",
		Type:     MethodGCash,
		// The PSP does not tell the redirect endpoint which way the
		// payment went; both URLs land on the same endpoint and the real
		// outcome arrives later by poll or webhook.
		Redirect: paymongo.RedirectURLs{Success: redirect, Failed: redirect},
		Metadata: map[string]string{"donationId": d.ID},
	})
	if err != nil {
		return nil, errGateway("payment service could not start the gcash payment", err)
	}

	if err := s.store.UpdateGatewayDetails(ctx, d.ID, src.ID, RefKindSource, src.CheckoutURL); err != nil {
		return nil, err
	}
	d.PaymongoReferenceID = sql.NullString{String: src.ID, Valid: true}
	d.ReferenceKind = sql.NullString{String: RefKindSource, Valid: true}
	d.SourceCheckoutURL = sql.NullString{String: src.CheckoutURL, Valid: true}

	s.log.Info().Str("donation_id", d.ID).Str("source_id", src.ID).Msg("gcash source created")
	return &CreateResult{Donation: d, CheckoutURL: src.CheckoutURL}, nil
}

func (s *DispatchService) dispatchIntent(ctx context.Context, d *models.Donation) (*CreateResult, error) {
	intent, err := s.gateway.CreatePaymentIntent(ctx, paymongo.CreatePaymentIntentRequest{
		Amount:               d.Amount * 100,
		Currency:             "PHP",
		PaymentMethodAllowed: []string{d.PaymentMethod},
		RequestThreeDSecure:  "any",
		Description:          "Donation " + d.ID,
		Metadata:             map[string]string{"donationId": d.ID},
	})
	if err != nil {
		return nil, errGateway("payment service could not start the payment", err)
	}

	checkoutURL := ""
	if d.PaymentMethod == MethodPayMaya {
		// PayMaya needs a payment method created and attached up front;
		// the attach response carries the redirect the browser must visit.
		method, err := s.gateway.CreatePaymentMethod(ctx, MethodPayMaya)
		if err != nil {
			return nil, errGateway("payment service could not create the payment method", err)
		}
		attached, err := s.gateway.AttachPaymentMethod(ctx, paymongo.AttachPaymentMethodRequest{
			IntentID:        intent.ID,
			PaymentMethodID: method.ID,
			ReturnURL:       s.cfg.RedirectURL + "?donationId=" + d.ID,
		})
		if err != nil {
			return nil, errGateway("payment service could not attach the payment method", err)
		}
		checkoutURL = attached.NextActionURL
	}

	if err := s.store.UpdateGatewayDetails(ctx, d.ID, intent.ID, RefKindIntent, checkoutURL); err != nil {
		return nil, err
	}
	d.PaymongoReferenceID = sql.NullString{String: intent.ID, Valid: true}
	d.ReferenceKind = sql.NullString{String: RefKindIntent, Valid: true}
	if checkoutURL != "" {
		d.SourceCheckoutURL = sql.NullString{String: checkoutURL, Valid: true}
	}

	s.log.Info().Str("donation_id", d.ID).Str("intent_id", intent.ID).Msg("payment intent created")
	return &CreateResult{Donation: d, CheckoutURL: checkoutURL}, nil
}
