package donations

import (
	"context"

	"donatrack/internal/paymongo"
)

// Gateway is the slice of the PayMongo client the donation services
// consume. *paymongo.Client satisfies it; tests substitute fakes.
type Gateway interface {
	CreateSource(ctx context.Context, req paymongo.CreateSourceRequest) (*paymongo.Source, error)
	GetSource(ctx context.Context, id string) (*paymongo.Source, error)
	CreatePayment(ctx context.Context, req paymongo.CreatePaymentRequest) (*paymongo.Payment, error)
	CreatePaymentIntent(ctx context.Context, req paymongo.CreatePaymentIntentRequest) (*paymongo.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*paymongo.PaymentIntent, error)
	CreatePaymentMethod(ctx context.Context, methodType string) (*paymongo.PaymentMethod, error)
	AttachPaymentMethod(ctx context.Context, req paymongo.AttachPaymentMethodRequest) (*paymongo.PaymentIntent, error)
}
