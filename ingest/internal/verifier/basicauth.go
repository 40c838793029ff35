package verifier

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/inbound"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/secrets"
)

const (
	ReasonMissingAuthorization = "authorization header missing"
	ReasonBadAuthorization     = "authorization header malformed"
	ReasonCredentialsMismatch  = "credentials mismatch"
)

// BasicAuth checks HTTP Basic credentials against the bundle and, when Next
// is set, then requires Next to verify as well.
//
// Credentials are compared with ordinary equality. The check is a precheck
// and is not constant time.
type BasicAuth struct {
	Next Verifier
}

// ParseBasicAuth decodes an `Authorization: Basic ...` value.
func ParseBasicAuth(authorization string) (user, password string, ok bool) {
	scheme, param, found := strings.Cut(authorization, " ")
	if !found || !strings.EqualFold(scheme, "basic") {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(param))
	if err != nil {
		return "", "", false
	}
	return strings.Cut(string(decoded), ":")
}

// BasicAuthHeader renders an Authorization header value.
func BasicAuthHeader(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

func (v *BasicAuth) Verify(ctx context.Context, evt *inbound.Event, bundle secrets.Bundle) Outcome {
	authorization := evt.Header("Authorization")
	if authorization == "" {
		return Fail(ReasonMissingAuthorization)
	}

	wantUser, okUser := bundle.Get(secrets.FieldBasicAuthUser)
	wantPass, okPass := bundle.Get(secrets.FieldBasicAuthPassword)
	if !okUser || !okPass {
		return Fail(ReasonSecretNotConfigured)
	}

	user, pass, ok := ParseBasicAuth(authorization)
	if !ok {
		return Fail(ReasonBadAuthorization)
	}
	if user != wantUser || pass != wantPass {
		return Fail(ReasonCredentialsMismatch)
	}

	if v.Next != nil {
		return v.Next.Verify(ctx, evt, bundle)
	}
	return OK()
}
