// Package secrets resolves the per-provider credential bundle used during verification.
package secrets

import (
	"context"
	"errors"
)

// Field names understood by the verifiers.
const (
	FieldWebhookSecret     = "webhook_secret"
	FieldBasicAuthUser     = "basic_auth_user"
	FieldBasicAuthPassword = "basic_auth_password"
	FieldClientID          = "client_id"
	FieldClientSecret      = "client_secret"
)

// ErrNotConfigured means no bundle exists for the provider.
var ErrNotConfigured = errors.New("secrets not configured")

// Bundle maps field name to secret value.
type Bundle map[string]string

// Get returns the field and whether it is present and non-empty.
func (b Bundle) Get(field string) (string, bool) {
	v, ok := b[field]
	return v, ok && v != ""
}

// Provider returns the secret bundle for a provider name.
type Provider interface {
	Get(ctx context.Context, provider string) (Bundle, error)
}
