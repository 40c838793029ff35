// Package verifier authenticates inbound webhooks. Each provider scheme is a
// concrete type implementing Verifier; mismatches are reported as an Outcome
// value, never as an error or panic.
package verifier

import (
	"context"

	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/inbound"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/secrets"
)

// Failure reasons shared across variants.
const (
	ReasonMissingHeader       = "signature header missing"
	ReasonMissingBody         = "payload body missing"
	ReasonSecretNotConfigured = "secret not configured"
	ReasonMismatch            = "signature mismatch"
)

// Outcome is the result of a verification attempt.
type Outcome struct {
	Verified bool
	Reason   string
}

// OK is a successful Outcome.
func OK() Outcome { return Outcome{Verified: true} }

// Fail is a failed Outcome with a server-side reason.
func Fail(reason string) Outcome { return Outcome{Reason: reason} }

// Verifier checks that an event was produced by the holder of the provider secret.
type Verifier interface {
	Verify(ctx context.Context, evt *inbound.Event, bundle secrets.Bundle) Outcome
}

func secretField(field string) string {
	if field == "" {
		return secrets.FieldWebhookSecret
	}
	return field
}
