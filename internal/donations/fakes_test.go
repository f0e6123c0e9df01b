package donations

import (
	"context"
	"sync"

	"donatrack/internal/models"
	"donatrack/internal/paymongo"
)

// fakeStore mirrors the conditional-update semantics of SQLStore in
// memory so the engine's race behavior can be exercised without a DB.
type fakeStore struct {
	mu        sync.Mutex
	donations map[string]*models.Donation

	departments map[int]*models.Department
	events      map[int]*models.Event

	createCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		donations:   map[string]*models.Donation{},
		departments: map[int]*models.Department{},
		events:      map[int]*models.Event{},
	}
}

func (s *fakeStore) put(d *models.Donation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.donations[d.ID] = &cp
}

func (s *fakeStore) get(id string) *models.Donation {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.donations[id]
	return &cp
}

func (s *fakeStore) Create(_ context.Context, d *models.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	cp := *d
	cp.FanoutDoneFor = FanoutNone
	s.donations[d.ID] = &cp
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*models.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok {
		return nil, errNotFound("donation not found")
	}
	cp := *d
	return &cp, nil
}

func (s *fakeStore) GetByReference(_ context.Context, ref string) (*models.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.donations {
		if d.PaymongoReferenceID.Valid && d.PaymongoReferenceID.String == ref {
			cp := *d
			return &cp, nil
		}
	}
	return nil, errNotFound("donation not found")
}

func (s *fakeStore) UpdateGatewayDetails(_ context.Context, id, ref, kind, checkoutURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok {
		return errNotFound("donation not found")
	}
	d.PaymongoReferenceID.String, d.PaymongoReferenceID.Valid = ref, true
	d.ReferenceKind.String, d.ReferenceKind.Valid = kind, true
	if checkoutURL != "" {
		d.SourceCheckoutURL.String, d.SourceCheckoutURL.Valid = checkoutURL, true
	}
	return nil
}

func (s *fakeStore) SetReference(_ context.Context, id, ref, kind string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok {
		return false, errNotFound("donation not found")
	}
	if d.PaymongoReferenceID.Valid {
		return false, nil
	}
	d.PaymongoReferenceID.String, d.PaymongoReferenceID.Valid = ref, true
	d.ReferenceKind.String, d.ReferenceKind.Valid = kind, true
	return true, nil
}

func (s *fakeStore) Transition(_ context.Context, id, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok {
		return false, errNotFound("donation not found")
	}
	if !CanTransition(d.Status, to) {
		return false, nil
	}
	d.Status = to
	switch to {
	case StatusSucceeded:
		d.FanoutDoneFor = FanoutSucceeded
	case StatusFailed:
		d.FanoutDoneFor = FanoutFailed
	}
	return true, nil
}

func (s *fakeStore) VerifyCash(_ context.Context, id string, _ int, _, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok || d.Status != StatusCashPendingVerify {
		return false, nil
	}
	d.Status = StatusCashVerified
	return true, nil
}

func (s *fakeStore) CompleteCash(_ context.Context, id string, _ int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok || d.Status != StatusCashVerified {
		return false, nil
	}
	d.Status = StatusCashCompleted
	d.FanoutDoneFor = FanoutSucceeded
	return true, nil
}

func (s *fakeStore) DepartmentByID(_ context.Context, id int) (*models.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dep, ok := s.departments[id]
	if !ok {
		return nil, errNotFound("department not found")
	}
	return dep, nil
}

func (s *fakeStore) EventByID(_ context.Context, id int) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, errNotFound("event not found")
	}
	return ev, nil
}

// fakeGateway returns scripted PSP responses and records the calls.
type fakeGateway struct {
	mu sync.Mutex

	source       *paymongo.Source
	sourceErr    error
	intent       *paymongo.PaymentIntent
	intentErr    error
	payment      *paymongo.Payment
	paymentErr   error
	method       *paymongo.PaymentMethod
	methodErr    error
	attached     *paymongo.PaymentIntent
	attachErr    error

	createSourceReqs  []paymongo.CreateSourceRequest
	createPaymentReqs []paymongo.CreatePaymentRequest
	createIntentReqs  []paymongo.CreatePaymentIntentRequest
	attachReqs        []paymongo.AttachPaymentMethodRequest
	getSourceIDs      []string
	getIntentIDs      []string
}

func (g *fakeGateway) CreateSource(_ context.Context, req paymongo.CreateSourceRequest) (*paymongo.Source, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createSourceReqs = append(g.createSourceReqs, req)
	return g.source, g.sourceErr
}

func (g *fakeGateway) GetSource(_ context.Context, id string) (*paymongo.Source, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getSourceIDs = append(g.getSourceIDs, id)
	return g.source, g.sourceErr
}

func (g *fakeGateway) CreatePayment(_ context.Context, req paymongo.CreatePaymentRequest) (*paymongo.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createPaymentReqs = append(g.createPaymentReqs, req)
	return g.payment, g.paymentErr
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, req paymongo.CreatePaymentIntentRequest) (*paymongo.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createIntentReqs = append(g.createIntentReqs, req)
	return g.intent, g.intentErr
}

func (g *fakeGateway) GetPaymentIntent(_ context.Context, id string) (*paymongo.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getIntentIDs = append(g.getIntentIDs, id)
	return g.intent, g.intentErr
}

func (g *fakeGateway) CreatePaymentMethod(_ context.Context, _ string) (*paymongo.PaymentMethod, error) {
	return g.method, g.methodErr
}

func (g *fakeGateway) AttachPaymentMethod(_ context.Context, req paymongo.AttachPaymentMethodRequest) (*paymongo.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attachReqs = append(g.attachReqs, req)
	return g.attached, g.attachErr
}

// fakeFanout counts fanout invocations per outcome.
type fakeFanout struct {
	mu        sync.Mutex
	succeeded int
	failed    int
	submitted int
	verified  int
	lastByDep bool
	err       error
}

func (f *fakeFanout) DeliverOutcome(_ context.Context, _ *models.Donation, outcome Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if outcome == OutcomeSucceeded {
		f.succeeded++
	} else {
		f.failed++
	}
	return f.err
}

func (f *fakeFanout) DonationSubmitted(_ context.Context, _ *models.Donation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted++
	return f.err
}

func (f *fakeFanout) CashVerified(_ context.Context, _ *models.Donation, byDepartment bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified++
	f.lastByDep = byDepartment
	return f.err
}

func (f *fakeFanout) counts() (succeeded, failed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.succeeded, f.failed
}
