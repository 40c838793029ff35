// Package signer produces the headers each supported provider attaches to a
// webhook delivery. It is used to exercise a running ingest service.
package signer

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/providers"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/secrets"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/verifier"
)

// Lithic delivery headers.
const (
	HeaderLithicTimestamp = "webhook-timestamp"
	HeaderLithicSignature = "webhook-signature"
)

var ErrMissingSecret = errors.New("missing secret")

// Credentials are the sender-side secrets for one provider.
type Credentials struct {
	// Secrets uses the same field names as the service's secret bundles.
	Secrets map[string]string

	// PlaidKey signs Plaid verification tokens; PlaidKID is advertised in the token header.
	PlaidKey *ecdsa.PrivateKey
	PlaidKID string
}

func (c Credentials) get(field string) (string, error) {
	v, ok := c.Secrets[field]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingSecret, field)
	}
	return v, nil
}

// Options vary per delivery.
type Options struct {
	// DeliveryID fills the provider's delivery id header where it has one.
	DeliveryID string
	Now        time.Time
}

// Info describes a registered provider.
type Info struct {
	Name            string   `json:"name"`
	RequiredSecrets []string `json:"required_secrets"`
}

// Providers lists the providers the ingest service accepts.
func Providers() []Info {
	table := providers.DefaultProviders(nil, nil)
	out := make([]Info, 0, len(table))
	for _, p := range table {
		out = append(out, Info{Name: p.Name, RequiredSecrets: p.RequiredSecrets})
	}
	return out
}

// Sign returns the headers provider would send with body.
func Sign(provider string, body []byte, creds Credentials, opts Options) (http.Header, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	h := make(http.Header)
	h.Set("Content-Type", "application/json")

	switch provider {
	case providers.Stripe:
		secret, err := creds.get(secrets.FieldWebhookSecret)
		if err != nil {
			return nil, err
		}
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   body,
			Secret:    secret,
			Timestamp: opts.Now,
		})
		h.Set(verifier.StripeSignatureHeader, signed.Header)

	case providers.Plaid:
		if creds.PlaidKey == nil || creds.PlaidKID == "" {
			return nil, fmt.Errorf("%w: plaid signing key", ErrMissingSecret)
		}
		token, err := PlaidToken(creds.PlaidKey, creds.PlaidKID, body, opts.Now)
		if err != nil {
			return nil, err
		}
		h.Set(providers.HeaderPlaidVerification, token)

	case providers.Marqeta:
		if err := setBasicAuth(h, creds); err != nil {
			return nil, err
		}
		if err := setHMAC(h, providers.HeaderMarqetaSignature, verifier.SHA1, body, creds); err != nil {
			return nil, err
		}
		if opts.DeliveryID != "" {
			h.Set(providers.HeaderMarqetaTraceID, opts.DeliveryID)
		}

	case providers.Lithic:
		secret, err := creds.get(secrets.FieldWebhookSecret)
		if err != nil {
			return nil, err
		}
		sig, err := LithicSignature(secret, opts.DeliveryID, opts.Now, body)
		if err != nil {
			return nil, err
		}
		h.Set(providers.HeaderLithicWebhookID, opts.DeliveryID)
		h.Set(HeaderLithicTimestamp, strconv.FormatInt(opts.Now.Unix(), 10))
		h.Set(HeaderLithicSignature, sig)

	case providers.Trolley:
		secret, err := creds.get(secrets.FieldWebhookSecret)
		if err != nil {
			return nil, err
		}
		ts := strconv.FormatInt(opts.Now.Unix(), 10)
		h.Set(providers.HeaderTrolleySignature, verifier.SignComposite([]byte(secret), ts, body))
		if opts.DeliveryID != "" {
			h.Set(providers.HeaderTrolleyDelivery, opts.DeliveryID)
		}

	case providers.SolidFi:
		if err := setHMAC(h, providers.HeaderSolidSignature, verifier.SHA256, body, creds); err != nil {
			return nil, err
		}

	case providers.TreasuryPrime:
		if err := setBasicAuth(h, creds); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w: %q", providers.ErrUnknownProvider, provider)
	}

	return h, nil
}

func setBasicAuth(h http.Header, creds Credentials) error {
	user, err := creds.get(secrets.FieldBasicAuthUser)
	if err != nil {
		return err
	}
	password, err := creds.get(secrets.FieldBasicAuthPassword)
	if err != nil {
		return err
	}
	h.Set("Authorization", verifier.BasicAuthHeader(user, password))
	return nil
}

func setHMAC(h http.Header, header string, hash verifier.Hash, body []byte, creds Credentials) error {
	secret, err := creds.get(secrets.FieldWebhookSecret)
	if err != nil {
		return err
	}
	sig, err := verifier.Sign(hash, verifier.Hex, []byte(secret), body)
	if err != nil {
		return err
	}
	h.Set(header, sig)
	return nil
}

// PlaidToken issues an ES256 verification token covering body.
func PlaidToken(key *ecdsa.PrivateKey, kid string, body []byte, now time.Time) (string, error) {
	sum := sha256.Sum256(body)
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iat":                 now.Unix(),
		"request_body_sha256": hex.EncodeToString(sum[:]),
	})
	tok.Header["kid"] = kid
	return tok.SignedString(key)
}

// LithicSignature signs "id.timestamp.body" with a whsec_-prefixed base64 secret.
func LithicSignature(secret, id string, now time.Time, body []byte) (string, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return "", fmt.Errorf("decode lithic secret: %w", err)
	}
	content := make([]byte, 0, len(id)+len(body)+24)
	content = append(content, id...)
	content = append(content, '.')
	content = strconv.AppendInt(content, now.Unix(), 10)
	content = append(content, '.')
	content = append(content, body...)

	sig, err := verifier.Sign(verifier.SHA256, verifier.Base64, key, content)
	if err != nil {
		return "", err
	}
	return "v1," + sig, nil
}
