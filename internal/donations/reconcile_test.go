package donations

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"donatrack/internal/models"
	"donatrack/internal/paymongo"
)

func newTestEngine(store *fakeStore, gw *fakeGateway, fanout *fakeFanout) *Engine {
	return NewEngine(store, gw, fanout, "https://donate.example.edu", zerolog.Nop())
}

func pendingGCashDonation(id, ref string) *models.Donation {
	d := &models.Donation{
		ID:            id,
		DonorName:     "Juana Dela Cruz",
		DonorEmail:    "juana@example.com",
		Amount:        500,
		PaymentMethod: MethodGCash,
		RecipientType: RecipientCRD,
		Status:        StatusPending,
		FanoutDoneFor: FanoutNone,
	}
	if ref != "" {
		d.PaymongoReferenceID = sql.NullString{String: ref, Valid: true}
		d.ReferenceKind = sql.NullString{String: RefKindSource, Valid: true}
	}
	return d
}

func TestConfirmSourcePaidMarksSucceeded(t *testing.T) {
	store := newFakeStore()
	store.put(pendingGCashDonation("don-1", "src_abc"))
	gw := &fakeGateway{source: &paymongo.Source{ID: "src_abc", Status: "paid"}}
	fanout := &fakeFanout{}
	engine := newTestEngine(store, gw, fanout)

	d, err := engine.ConfirmSource(context.Background(), "don-1", "")
	if err != nil {
		t.Fatalf("ConfirmSource returned error: %v", err)
	}
	if d.Status != StatusSucceeded {
		t.Fatalf("expected status succeeded, got %q", d.Status)
	}
	if s, _ := fanout.counts(); s != 1 {
		t.Fatalf("expected exactly one success fanout, got %d", s)
	}
}

func TestConfirmSourceChargeableCapturesBeforeSucceeding(t *testing.T) {
	store := newFakeStore()
	store.put(pendingGCashDonation("don-2", "src_xyz"))
	gw := &fakeGateway{
		source:  &paymongo.Source{ID: "src_xyz", Status: "chargeable"},
		payment: &paymongo.Payment{ID: "pay_1", Status: "paid"},
	}
	fanout := &fakeFanout{}
	engine := newTestEngine(store, gw, fanout)

	if _, err := engine.ConfirmSource(context.Background(), "don-2", ""); err != nil {
		t.Fatalf("ConfirmSource returned error: %v", err)
	}

	if len(gw.createPaymentReqs) != 1 {
		t.Fatalf("expected one capture call, got %d", len(gw.createPaymentReqs))
	}
	capture := gw.createPaymentReqs[0]
	if capture.Amount != 50000 {
		t.Fatalf("expected capture amount 50000 centavos, got %d", capture.Amount)
	}
	if capture.SourceID != "src_xyz" {
		t.Fatalf("capture used wrong source id %q", capture.SourceID)
	}
	if got := store.get("don-2").Status; got != StatusSucceeded {
		t.Fatalf("expected succeeded after capture, got %q", got)
	}
	if s, _ := fanout.counts(); s != 1 {
		t.Fatalf("expected exactly one success fanout, got %d", s)
	}
}

func TestConfirmSourceExpiredFails(t *testing.T) {
	store := newFakeStore()
	store.put(pendingGCashDonation("don-3", "src_old"))
	gw := &fakeGateway{source: &paymongo.Source{ID: "src_old", Status: "expired"}}
	fanout := &fakeFanout{}
	engine := newTestEngine(store, gw, fanout)

	d, err := engine.ConfirmSource(context.Background(), "don-3", "")
	if err != nil {
		t.Fatalf("ConfirmSource returned error: %v", err)
	}
	if d.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", d.Status)
	}
	if _, f := fanout.counts(); f != 1 {
		t.Fatalf("expected exactly one failure fanout, got %d", f)
	}
}

func TestConfirmIntentUnrecognizedStatusStaysPending(t *testing.T) {
	store := newFakeStore()
	d := pendingGCashDonation("don-4", "")
	d.PaymentMethod = MethodCard
	d.PaymongoReferenceID = sql.NullString{String: "pi_123", Valid: true}
	d.ReferenceKind = sql.NullString{String: RefKindIntent, Valid: true}
	store.put(d)
	gw := &fakeGateway{intent: &paymongo.PaymentIntent{ID: "pi_123", Status: "awaiting_payment_method"}}
	fanout := &fakeFanout{}
	engine := newTestEngine(store, gw, fanout)

	got, err := engine.ConfirmSource(context.Background(), "don-4", "")
	if err != nil {
		t.Fatalf("ConfirmSource returned error: %v", err)
	}
	if got.Status != StatusPending {
		t.Fatalf("expected pending, got %q", got.Status)
	}
	if s, f := fanout.counts(); s+f != 0 {
		t.Fatalf("expected no fanout, got %d/%d", s, f)
	}
}

func TestConfirmSourceUnrecognizedReferenceRejected(t *testing.T) {
	store := newFakeStore()
	store.put(pendingGCashDonation("don-5", ""))
	engine := newTestEngine(store, &fakeGateway{}, &fakeFanout{})

	_, err := engine.ConfirmSource(context.Background(), "don-5", "tok_999")
	if err == nil {
		t.Fatal("expected an error for an unrecognized reference")
	}
	if KindOf(err) != KindUnrecognizedReference {
		t.Fatalf("expected unrecognized reference kind, got %q", KindOf(err))
	}
}

func TestSucceededIsImmuneToLaterObservations(t *testing.T) {
	store := newFakeStore()
	d := pendingGCashDonation("don-6", "src_abc")
	d.Status = StatusSucceeded
	d.FanoutDoneFor = FanoutSucceeded
	store.put(d)
	gw := &fakeGateway{source: &paymongo.Source{ID: "src_abc", Status: "failed"}}
	fanout := &fakeFanout{}
	engine := newTestEngine(store, gw, fanout)

	// Poll observing a failure must not downgrade the terminal state.
	got, err := engine.ConfirmSource(context.Background(), "don-6", "")
	if err != nil {
		t.Fatalf("ConfirmSource returned error: %v", err)
	}
	if got.Status != StatusSucceeded {
		t.Fatalf("terminal state regressed to %q", got.Status)
	}

	// Same for a late webhook.
	err = engine.HandleWebhook(context.Background(), WebhookEvent{
		Type: "payment.failed", ResourceID: "src_abc", DonationID: "don-6",
	})
	if err != nil {
		t.Fatalf("HandleWebhook returned error: %v", err)
	}
	if got := store.get("don-6").Status; got != StatusSucceeded {
		t.Fatalf("terminal state regressed to %q", got)
	}
	if s, f := fanout.counts(); s+f != 0 {
		t.Fatalf("expected no fanout for no-op observations, got %d/%d", s, f)
	}
}

func TestAllThreeEntryPointsFanOutOnce(t *testing.T) {
	store := newFakeStore()
	store.put(pendingGCashDonation("don-7", "src_abc"))
	gw := &fakeGateway{source: &paymongo.Source{ID: "src_abc", Status: "paid"}}
	fanout := &fakeFanout{}
	engine := newTestEngine(store, gw, fanout)
	ctx := context.Background()

	event := WebhookEvent{Type: "payment.paid", ResourceID: "src_abc", DonationID: "don-7"}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = engine.ConfirmSource(ctx, "don-7", "")
		}()
		go func() {
			defer wg.Done()
			_ = engine.HandleWebhook(ctx, event)
		}()
		go func() {
			defer wg.Done()
			_, _ = engine.HandleRedirect(ctx, "don-7", "src_abc")
		}()
	}
	wg.Wait()

	if got := store.get("don-7").Status; got != StatusSucceeded {
		t.Fatalf("expected succeeded, got %q", got)
	}
	if s, f := fanout.counts(); s != 1 || f != 0 {
		t.Fatalf("expected exactly one success fanout, got success=%d failure=%d", s, f)
	}
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.put(pendingGCashDonation("don-8", "src_abc"))
	fanout := &fakeFanout{}
	engine := newTestEngine(store, &fakeGateway{}, fanout)
	ctx := context.Background()

	event := WebhookEvent{Type: "payment.paid", ResourceID: "src_abc", DonationID: "don-8"}
	for i := 0; i < 2; i++ {
		if err := engine.HandleWebhook(ctx, event); err != nil {
			t.Fatalf("HandleWebhook replay %d returned error: %v", i, err)
		}
	}

	if got := store.get("don-8").Status; got != StatusSucceeded {
		t.Fatalf("expected succeeded, got %q", got)
	}
	if s, _ := fanout.counts(); s != 1 {
		t.Fatalf("expected one fanout after replay, got %d", s)
	}
}

func TestWebhookUnmatchedEventAcknowledged(t *testing.T) {
	store := newFakeStore()
	store.put(pendingGCashDonation("don-9", "src_known"))
	fanout := &fakeFanout{}
	engine := newTestEngine(store, &fakeGateway{}, fanout)

	err := engine.HandleWebhook(context.Background(), WebhookEvent{
		Type: "payment.failed", ResourceID: "src_unknown", DonationID: "don-missing",
	})
	if err != nil {
		t.Fatalf("unmatched webhook should be acknowledged, got error: %v", err)
	}
	if got := store.get("don-9").Status; got != StatusPending {
		t.Fatalf("unmatched webhook mutated an unrelated donation: %q", got)
	}
	if s, f := fanout.counts(); s+f != 0 {
		t.Fatalf("expected no fanout, got %d/%d", s, f)
	}
}

func TestWebhookChargeableTriggersCapture(t *testing.T) {
	store := newFakeStore()
	store.put(pendingGCashDonation("don-10", "src_abc"))
	gw := &fakeGateway{payment: &paymongo.Payment{ID: "pay_9", Status: "paid"}}
	fanout := &fakeFanout{}
	engine := newTestEngine(store, gw, fanout)

	err := engine.HandleWebhook(context.Background(), WebhookEvent{
		Type: "source.chargeable", ResourceID: "src_abc", DonationID: "don-10",
	})
	if err != nil {
		t.Fatalf("HandleWebhook returned error: %v", err)
	}
	if len(gw.createPaymentReqs) != 1 {
		t.Fatalf("expected the webhook path to capture, got %d calls", len(gw.createPaymentReqs))
	}
	if got := store.get("don-10").Status; got != StatusSucceeded {
		t.Fatalf("expected succeeded after webhook capture, got %q", got)
	}
	if s, _ := fanout.counts(); s != 1 {
		t.Fatalf("expected one success fanout, got %d", s)
	}
}

func TestWebhookIgnoredEventTypeLeavesRecordAlone(t *testing.T) {
	store := newFakeStore()
	store.put(pendingGCashDonation("don-11", "src_abc"))
	engine := newTestEngine(store, &fakeGateway{}, &fakeFanout{})

	err := engine.HandleWebhook(context.Background(), WebhookEvent{
		Type: "source.updated", ResourceID: "src_abc", DonationID: "don-11",
	})
	if err != nil {
		t.Fatalf("ignored event should be acknowledged, got error: %v", err)
	}
	if got := store.get("don-11").Status; got != StatusPending {
		t.Fatalf("ignored event mutated the record: %q", got)
	}
}

func TestRedirectBackfillsReferenceExactlyOnce(t *testing.T) {
	store := newFakeStore()
	store.put(pendingGCashDonation("don-12", ""))
	engine := newTestEngine(store, &fakeGateway{}, &fakeFanout{})
	ctx := context.Background()

	location, err := engine.HandleRedirect(ctx, "don-12", "src_first")
	if err != nil {
		t.Fatalf("HandleRedirect returned error: %v", err)
	}
	if location != "https://donate.example.edu/donations/success?donationId=don-12&sourceId=src_first" {
		t.Fatalf("unexpected redirect location %q", location)
	}
	if got := store.get("don-12").PaymongoReferenceID.String; got != "src_first" {
		t.Fatalf("reference not backfilled, got %q", got)
	}

	// A second redirect with a different id must not overwrite it.
	if _, err := engine.HandleRedirect(ctx, "don-12", "src_second"); err != nil {
		t.Fatalf("second HandleRedirect returned error: %v", err)
	}
	if got := store.get("don-12").PaymongoReferenceID.String; got != "src_first" {
		t.Fatalf("reference overwritten to %q", got)
	}
}

func TestRedirectRejectsUnrecognizedReference(t *testing.T) {
	store := newFakeStore()
	store.put(pendingGCashDonation("don-13", ""))
	engine := newTestEngine(store, &fakeGateway{}, &fakeFanout{})

	_, err := engine.HandleRedirect(context.Background(), "don-13", "tok_junk")
	if err == nil {
		t.Fatal("expected an error for an unrecognized reference")
	}
	if KindOf(err) != KindUnrecognizedReference {
		t.Fatalf("expected unrecognized reference kind, got %q", KindOf(err))
	}
}

func TestRedirectResolvesByReferenceAlone(t *testing.T) {
	store := newFakeStore()
	store.put(pendingGCashDonation("don-14", "src_ref"))
	engine := newTestEngine(store, &fakeGateway{}, &fakeFanout{})

	location, err := engine.HandleRedirect(context.Background(), "", "src_ref")
	if err != nil {
		t.Fatalf("HandleRedirect returned error: %v", err)
	}
	if location != "https://donate.example.edu/donations/success?donationId=don-14&sourceId=src_ref" {
		t.Fatalf("unexpected redirect location %q", location)
	}
}

func TestFanoutFailureDoesNotFailTheTransition(t *testing.T) {
	store := newFakeStore()
	store.put(pendingGCashDonation("don-15", "src_abc"))
	fanout := &fakeFanout{err: context.DeadlineExceeded}
	engine := newTestEngine(store, &fakeGateway{}, fanout)

	err := engine.HandleWebhook(context.Background(), WebhookEvent{
		Type: "payment.paid", ResourceID: "src_abc", DonationID: "don-15",
	})
	if err != nil {
		t.Fatalf("fanout failure leaked out of the transition: %v", err)
	}
	if got := store.get("don-15").Status; got != StatusSucceeded {
		t.Fatalf("status not committed despite fanout failure: %q", got)
	}
}
