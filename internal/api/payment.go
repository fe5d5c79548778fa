package api

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// PaymentIntent is the amount a checkout asks the provider to collect.
type PaymentIntent struct {
	Provider    string
	CartID      string
	AmountCents int64
	Currency    string
}

// PaymentResult is the provider's answer to a new intent.
type PaymentResult struct {
	ID           string
	ClientSecret string
	Status       string
}

// PaymentGateway creates payment intents with an external provider
// (Stripe, PayPal). The service never sees card details.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, intent PaymentIntent) (PaymentResult, error)
}

// OfflineGateway answers intents locally. It is used when no provider is
// configured, e.g. in development and tests.
type OfflineGateway struct{}

func (OfflineGateway) CreateIntent(_ context.Context, intent PaymentIntent) (PaymentResult, error) {
	prefix := "pi"
	if strings.EqualFold(intent.Provider, "paypal") {
		prefix = "PAYID"
	}
	return PaymentResult{
		ID:           prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		ClientSecret: uuid.NewString(),
		Status:       "requires_payment_method",
	}, nil
}
