package verifier

import (
	"context"
	"net/http"
	"time"

	"github.com/lithic-com/lithic-go"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/inbound"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/secrets"
)

// VendorFunc is a provider SDK's own signature check. A nil error means verified.
type VendorFunc func(payload []byte, header http.Header, secret string) error

// Delegated hands verification to a vendor library.
type Delegated struct {
	Func        VendorFunc
	SecretField string
}

func (v *Delegated) Verify(_ context.Context, evt *inbound.Event, bundle secrets.Bundle) Outcome {
	payload := evt.Body()
	if len(payload) == 0 {
		return Fail(ReasonMissingBody)
	}

	secret, ok := bundle.Get(secretField(v.SecretField))
	if !ok {
		return Fail(ReasonSecretNotConfigured)
	}

	if err := v.Func(payload, evt.Headers(), secret); err != nil {
		return Fail(err.Error())
	}
	return OK()
}

// StripeSignatureHeader carries Stripe's `t=...,v1=...` signature.
const StripeSignatureHeader = "Stripe-Signature"

// Stripe validates the payload with stripe-go, including its timestamp tolerance.
func Stripe(payload []byte, header http.Header, secret string) error {
	return webhook.ValidatePayload(payload, header.Get(StripeSignatureHeader), secret)
}

// Lithic validates the payload with lithic-go's webhook signature check.
func Lithic(payload []byte, header http.Header, secret string) error {
	return lithic.NewWebhookService().VerifySignature(payload, header, secret, time.Now())
}
