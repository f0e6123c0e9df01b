package donations

import (
	"context"

	"github.com/rs/zerolog"

	"donatrack/internal/models"
	"donatrack/internal/paymongo"
)

// Engine converges the three reconciliation signals (client poll, PSP
// webhook, browser redirect) onto one donation record. Every entry
// point may run concurrently with the others for the same donation, so
// all status writes go through the store's conditional Transition and
// fanout only fires for the caller whose write actually changed the row.
type Engine struct {
	store       Store
	gateway     Gateway
	fanout      Fanout
	frontendURL string
	log         zerolog.Logger
}

func NewEngine(store Store, gateway Gateway, fanout Fanout, frontendURL string, log zerolog.Logger) *Engine {
	return &Engine{store: store, gateway: gateway, fanout: fanout, frontendURL: frontendURL, log: log}
}

// WebhookEvent is the parsed PSP event handed to HandleWebhook.
type WebhookEvent struct {
	Type           string
	ResourceID     string
	ResourceStatus string
	DonationID     string // correlation id from the event metadata, may be empty
}

// WebhookPayload is the wire shape of a PSP webhook body.
type WebhookPayload struct {
	Type string `json:"type"`
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status   string `json:"status"`
			Metadata struct {
				DonationID string `json:"donationId"`
			} `json:"metadata"`
		} `json:"attributes"`
	} `json:"data"`
}

func (p WebhookPayload) Event() WebhookEvent {
	return WebhookEvent{
		Type:           p.Type,
		ResourceID:     p.Data.ID,
		ResourceStatus: p.Data.Attributes.Status,
		DonationID:     p.Data.Attributes.Metadata.DonationID,
	}
}

// ConfirmSource is the poll entry point. The caller may supply a
// reference id; when absent the stored one is used. The response is the
// donation's best-known state — "still pending" is not an error.
func (e *Engine) ConfirmSource(ctx context.Context, donationID, refID string) (*models.Donation, error) {
	d, err := e.store.GetByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if IsTerminal(d.Status) {
		return d, nil
	}

	ref := refID
	var kind string
	if ref == "" {
		if !d.PaymongoReferenceID.Valid {
			return nil, errValidation("donation has no gateway reference to confirm")
		}
		ref = d.PaymongoReferenceID.String
	}
	if d.ReferenceKind.Valid && d.PaymongoReferenceID.Valid && d.PaymongoReferenceID.String == ref {
		kind = d.ReferenceKind.String
	} else {
		var err error
		kind, err = ClassifyReference(ref)
		if err != nil {
			return nil, err
		}
	}

	// A redirect may have arrived before the dispatch write landed, or
	// the client may know the reference before we do. First writer wins.
	if !d.PaymongoReferenceID.Valid {
		if _, err := e.store.SetReference(ctx, d.ID, ref, kind); err != nil {
			return nil, err
		}
	}

	switch kind {
	case RefKindSource:
		return e.reconcileSource(ctx, d, ref)
	default:
		return e.reconcileIntent(ctx, d, ref)
	}
}

func (e *Engine) reconcileSource(ctx context.Context, d *models.Donation, ref string) (*models.Donation, error) {
	src, err := e.gateway.GetSource(ctx, ref)
	if err != nil {
		return nil, errGateway("payment service could not report the source status", err)
	}

	switch src.Status {
	case "chargeable":
		// Chargeable is not terminal: the money only moves once a payment
		// is captured against the source.
		return d, e.captureSource(ctx, d, ref)
	case "paid":
		return d, e.apply(ctx, d, OutcomeSucceeded)
	case "failed", "expired":
		return d, e.apply(ctx, d, OutcomeFailed)
	}
	// Anything else is still in flight; leave the record alone.
	return d, nil
}

func (e *Engine) reconcileIntent(ctx context.Context, d *models.Donation, ref string) (*models.Donation, error) {
	intent, err := e.gateway.GetPaymentIntent(ctx, ref)
	if err != nil {
		return nil, errGateway("payment service could not report the payment status", err)
	}

	switch intent.Status {
	case "succeeded", "paid":
		return d, e.apply(ctx, d, OutcomeSucceeded)
	case "failed", "canceled":
		return d, e.apply(ctx, d, OutcomeFailed)
	}
	return d, nil
}

func (e *Engine) captureSource(ctx context.Context, d *models.Donation, ref string) error {
	payment, err := e.gateway.CreatePayment(ctx, paymongo.CreatePaymentRequest{
		Amount:      d.Amount * 100,
		Currency:    "PHP",
		Description: "Donation " + d.ID,
		SourceID:    ref,
	})
	if err != nil {
		return errGateway("payment service could not capture the payment", err)
	}
	if payment.Status == "failed" {
		return e.apply(ctx, d, OutcomeFailed)
	}
	return e.apply(ctx, d, OutcomeSucceeded)
}

// HandleWebhook is the server-to-server entry point. Events that match
// no donation are acknowledged and dropped: the PSP retries unmatched
// events forever, and there is nothing actionable on our side.
func (e *Engine) HandleWebhook(ctx context.Context, ev WebhookEvent) error {
	d, err := e.resolveEvent(ctx, ev)
	if err != nil {
		return err
	}
	if d == nil {
		e.log.Warn().Str("event_type", ev.Type).Str("resource_id", ev.ResourceID).
			Msg("webhook matched no donation, dropping")
		return nil
	}
	if IsTerminal(d.Status) {
		return nil
	}

	// Backfill the reference when the record predates it and the event
	// resource is one of the two recognized namespaces. Payment resources
	// (pay_...) fail classification and are deliberately skipped.
	if !d.PaymongoReferenceID.Valid {
		if kind, cErr := ClassifyReference(ev.ResourceID); cErr == nil {
			if _, err := e.store.SetReference(ctx, d.ID, ev.ResourceID, kind); err != nil {
				return err
			}
		}
	}

	switch ev.Type {
	case "payment.paid":
		return e.apply(ctx, d, OutcomeSucceeded)
	case "payment.failed", "payment.refunded", "source.canceled":
		return e.apply(ctx, d, OutcomeFailed)
	case "source.chargeable":
		// The poll path also captures on chargeable; doing it here too
		// keeps a donation from stalling when the client never polls. A
		// gateway failure propagates so the PSP redelivers the event.
		return e.captureSource(ctx, d, ev.ResourceID)
	}

	e.log.Debug().Str("event_type", ev.Type).Msg("ignoring webhook event type")
	return nil
}

func (e *Engine) resolveEvent(ctx context.Context, ev WebhookEvent) (*models.Donation, error) {
	if ev.DonationID != "" {
		d, err := e.store.GetByID(ctx, ev.DonationID)
		if err == nil {
			return d, nil
		}
		if KindOf(err) != KindNotFound {
			return nil, err
		}
	}
	if ev.ResourceID != "" {
		d, err := e.store.GetByReference(ctx, ev.ResourceID)
		if err == nil {
			return d, nil
		}
		if KindOf(err) != KindNotFound {
			return nil, err
		}
	}
	return nil, nil
}

// HandleRedirect is the browser-return entry point. It only completes
// bookkeeping: the landing page is chosen by payment method alone, since
// the PSP sends both outcomes to the same URL and the authoritative
// status arrives by poll or webhook.
func (e *Engine) HandleRedirect(ctx context.Context, donationID, refID string) (string, error) {
	var d *models.Donation
	var err error
	switch {
	case donationID != "":
		d, err = e.store.GetByID(ctx, donationID)
	case refID != "":
		d, err = e.store.GetByReference(ctx, refID)
	default:
		return "", errValidation("donationId or id query parameter is required")
	}
	if err != nil {
		return "", err
	}

	ref := refID
	if ref != "" && !d.PaymongoReferenceID.Valid {
		kind, cErr := ClassifyReference(ref)
		if cErr != nil {
			return "", cErr
		}
		wrote, sErr := e.store.SetReference(ctx, d.ID, ref, kind)
		if sErr != nil {
			return "", sErr
		}
		if wrote {
			e.log.Info().Str("donation_id", d.ID).Str("reference_id", ref).
				Msg("reference id backfilled from redirect")
		}
	}
	if ref == "" && d.PaymongoReferenceID.Valid {
		ref = d.PaymongoReferenceID.String
	}

	switch d.PaymentMethod {
	case MethodGCash, MethodPayMaya, MethodCard:
		return e.frontendURL + "/donations/success?donationId=" + d.ID + "&sourceId=" + ref, nil
	}
	return e.frontendURL + "/donations/failed?donationId=" + d.ID, nil
}

// apply commits a terminal transition and runs fanout exactly once. The
// conditional update is the whole race story: of N concurrent observers
// only the one whose UPDATE changed the row sees applied=true, and only
// that one fans out. Fanout failure never unwinds the committed status.
func (e *Engine) apply(ctx context.Context, d *models.Donation, outcome Outcome) error {
	to := StatusSucceeded
	if outcome == OutcomeFailed {
		to = StatusFailed
	}

	applied, err := e.store.Transition(ctx, d.ID, to)
	if err != nil {
		return err
	}
	if !applied {
		// Someone else already moved it; report the stored state.
		if current, gErr := e.store.GetByID(ctx, d.ID); gErr == nil {
			*d = *current
		}
		return nil
	}

	d.Status = to
	d.FanoutDoneFor = string(outcome)
	e.log.Info().Str("donation_id", d.ID).Str("status", to).Msg("donation reconciled")

	if err := e.fanout.DeliverOutcome(ctx, d, outcome); err != nil {
		e.log.Error().Err(err).Str("donation_id", d.ID).Str("outcome", string(outcome)).
			Msg("outcome fanout failed")
	}
	return nil
}
