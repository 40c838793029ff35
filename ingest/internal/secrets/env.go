package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider reads fields from environment variables named
// {PREFIX}_{PROVIDER}_{FIELD}, upper-cased, e.g. WEBHOOKS_SECRET_STRIPE_WEBHOOK_SECRET.
type EnvProvider struct {
	Prefix string
	Fields []string

	lookup func(string) (string, bool)
}

// NewEnvProvider uses os.LookupEnv and the standard field set.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{
		Prefix: prefix,
		Fields: []string{
			FieldWebhookSecret,
			FieldBasicAuthUser,
			FieldBasicAuthPassword,
			FieldClientID,
			FieldClientSecret,
		},
		lookup: os.LookupEnv,
	}
}

// VarName returns the environment variable consulted for a provider field.
func (p *EnvProvider) VarName(provider, field string) string {
	name := provider + "_" + field
	if p.Prefix != "" {
		name = p.Prefix + "_" + name
	}
	return strings.ToUpper(name)
}

func (p *EnvProvider) Get(_ context.Context, provider string) (Bundle, error) {
	lookup := p.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	b := make(Bundle)
	for _, f := range p.Fields {
		if v, ok := lookup(p.VarName(provider, f)); ok {
			b[f] = v
		}
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%s: %w", provider, ErrNotConfigured)
	}
	return b, nil
}
