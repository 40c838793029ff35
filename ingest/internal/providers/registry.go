// Package providers is the static table of supported webhook senders.
package providers

import (
	"errors"
	"fmt"
	"sort"

	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/secrets"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/verifier"
)

// ErrUnknownProvider is returned by Lookup for names that are not registered.
var ErrUnknownProvider = errors.New("unknown provider")

// Provider names.
const (
	Stripe        = "stripe"
	Plaid         = "plaid"
	Marqeta       = "marqeta"
	Lithic        = "lithic"
	Trolley       = "trolley"
	SolidFi       = "solidfi"
	TreasuryPrime = "treasury_prime"
)

// Headers read by the default providers.
const (
	HeaderPlaidVerification = "plaid-verification"
	HeaderMarqetaSignature  = "X-Marqeta-Signature"
	HeaderMarqetaTraceID    = "x-marqeta-request-trace-id"
	HeaderLithicWebhookID   = "webhook-id"
	HeaderTrolleySignature  = "X-PaymentRails-Signature"
	HeaderTrolleyDelivery   = "X-PaymentRails-Delivery"
	HeaderSolidSignature    = "sd-webhook-sha256-signature"
)

// Provider binds a name to its verifier and event id source.
type Provider struct {
	Name            string
	RequiredSecrets []string
	Verifier        verifier.Verifier
	EventID         EventIDFunc
}

// Registry is read-only after construction.
type Registry struct {
	providers map[string]*Provider
}

// NewRegistry builds a registry. Duplicate names are rejected.
func NewRegistry(ps ...*Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]*Provider, len(ps))}
	for _, p := range ps {
		if p.Name == "" || p.Verifier == nil || p.EventID == nil {
			return nil, fmt.Errorf("provider %q is incomplete", p.Name)
		}
		if _, dup := r.providers[p.Name]; dup {
			return nil, fmt.Errorf("provider %q registered twice", p.Name)
		}
		r.providers[p.Name] = p
	}
	return r, nil
}

// Lookup matches the name exactly as registered.
func (r *Registry) Lookup(name string) (*Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names returns the registered names sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns the built-in providers. The key fetcher and cache back the
// Plaid JWT verifier.
func Default(fetcher verifier.KeyFetcher, cache *verifier.KeyCache) *Registry {
	r, err := NewRegistry(DefaultProviders(fetcher, cache)...)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultProviders lists the built-in provider table.
func DefaultProviders(fetcher verifier.KeyFetcher, cache *verifier.KeyCache) []*Provider {
	return []*Provider{
		{
			Name:            Stripe,
			RequiredSecrets: []string{secrets.FieldWebhookSecret},
			Verifier:        &verifier.Delegated{Func: verifier.Stripe},
			EventID:         JSONField("id"),
		},
		{
			Name:            Plaid,
			RequiredSecrets: []string{secrets.FieldClientID, secrets.FieldClientSecret},
			Verifier: &verifier.JWT{
				Header:  HeaderPlaidVerification,
				Fetcher: fetcher,
				Cache:   cache,
			},
			EventID: JSONField("item_id"),
		},
		{
			Name:            Marqeta,
			RequiredSecrets: []string{secrets.FieldBasicAuthUser, secrets.FieldBasicAuthPassword, secrets.FieldWebhookSecret},
			Verifier: &verifier.BasicAuth{
				Next: &verifier.HMAC{Header: HeaderMarqetaSignature, Hash: verifier.SHA1, Encoding: verifier.Hex},
			},
			EventID: Header(HeaderMarqetaTraceID),
		},
		{
			Name:            Lithic,
			RequiredSecrets: []string{secrets.FieldWebhookSecret},
			Verifier:        &verifier.Delegated{Func: verifier.Lithic},
			EventID:         Header(HeaderLithicWebhookID),
		},
		{
			Name:            Trolley,
			RequiredSecrets: []string{secrets.FieldWebhookSecret},
			Verifier:        &verifier.Composite{Header: HeaderTrolleySignature},
			EventID:         Header(HeaderTrolleyDelivery),
		},
		{
			Name:            SolidFi,
			RequiredSecrets: []string{secrets.FieldWebhookSecret},
			Verifier:        &verifier.HMAC{Header: HeaderSolidSignature, Hash: verifier.SHA256, Encoding: verifier.Hex},
			EventID:         JSONField("data.id"),
		},
		{
			Name:            TreasuryPrime,
			RequiredSecrets: []string{secrets.FieldBasicAuthUser, secrets.FieldBasicAuthPassword},
			Verifier:        &verifier.BasicAuth{},
			EventID:         JSONField("id"),
		},
	}
}
