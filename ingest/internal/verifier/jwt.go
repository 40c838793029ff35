package verifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/inbound"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/secrets"
)

const (
	ReasonMalformedToken = "malformed token"
	ReasonUnknownKey     = "unknown key id"
	ReasonKeyExpired     = "verification key expired"
	ReasonBadToken       = "token signature invalid"
	ReasonTokenTooOld    = "token issued too long ago"
	ReasonBodyHash       = "body hash mismatch"
)

// DefaultMaxTokenAge bounds how old a token's iat may be.
const DefaultMaxTokenAge = 5 * time.Minute

const bodyHashClaim = "request_body_sha256"

// JWT verifies an ES256-signed token carrying the SHA-256 of the body.
// Signing keys are resolved through Cache and refreshed from Fetcher on a miss.
type JWT struct {
	Header      string
	Fetcher     KeyFetcher
	Cache       *KeyCache
	MaxTokenAge time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

func (v *JWT) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *JWT) Verify(ctx context.Context, evt *inbound.Event, bundle secrets.Bundle) Outcome {
	signed := evt.Header(v.Header)
	if signed == "" {
		return Fail(ReasonMissingHeader)
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(signed, jwt.MapClaims{})
	if err != nil {
		return Fail(ReasonMalformedToken)
	}
	if alg, _ := unverified.Header["alg"].(string); alg != jwt.SigningMethodES256.Alg() {
		return Fail(ReasonMalformedToken)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return Fail(ReasonMalformedToken)
	}

	if _, ok := v.Cache.Get(kid); !ok {
		clientID, okID := bundle.Get(secrets.FieldClientID)
		clientSecret, okSecret := bundle.Get(secrets.FieldClientSecret)
		if !okID || !okSecret {
			return Fail(ReasonSecretNotConfigured)
		}
		v.refresh(ctx, clientID, clientSecret, kid)
	}

	key, ok := v.Cache.Get(kid)
	if !ok {
		return Fail(ReasonUnknownKey)
	}
	if key.Expired() || key.Key == nil {
		return Fail(ReasonKeyExpired)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) {
		return key.Key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Fail(ReasonBadToken)
	}

	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return Fail(ReasonMalformedToken)
	}
	maxAge := v.MaxTokenAge
	if maxAge <= 0 {
		maxAge = DefaultMaxTokenAge
	}
	if iat.Time.Before(v.now().Add(-maxAge)) {
		return Fail(ReasonTokenTooOld)
	}

	claimed, _ := claims[bodyHashClaim].(string)
	sum := sha256.Sum256(evt.Body())
	computed := hex.EncodeToString(sum[:])
	if !hmac.Equal([]byte(claimed), []byte(computed)) {
		return Fail(ReasonBodyHash)
	}
	return OK()
}

// refresh re-fetches every unexpired cached key plus kid. Keys the issuer
// does not return are skipped.
func (v *JWT) refresh(ctx context.Context, clientID, clientSecret, kid string) {
	ids := append(v.Cache.Unexpired(), kid)
	for _, id := range ids {
		key, err := v.Fetcher.FetchKey(ctx, clientID, clientSecret, id)
		if err != nil {
			slog.DebugContext(ctx, "verification key fetch skipped",
				slog.String("kid", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		v.Cache.Put(id, key)
	}
}
