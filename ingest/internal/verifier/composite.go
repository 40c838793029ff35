package verifier

import (
	"context"
	"crypto/hmac"
	"strings"

	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/inbound"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/secrets"
)

const (
	ReasonMalformedSignature = "malformed signature header"
)

// Composite verifies a `t=<timestamp>,v1=<hex>` header whose digest covers
// the timestamp followed by the raw body (HMAC-SHA256).
type Composite struct {
	Header      string
	SecretField string
}

// ParseComposite splits a composite header into its timestamp and v1 signatures.
func ParseComposite(header string) (timestamp string, signatures []string) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "t":
			timestamp = strings.TrimSpace(v)
		case "v1":
			if s := strings.TrimSpace(v); s != "" {
				signatures = append(signatures, s)
			}
		}
	}
	return timestamp, signatures
}

// SignComposite renders the header value for a timestamp and payload.
func SignComposite(key []byte, timestamp string, payload []byte) string {
	sig, _ := Sign(SHA256, Hex, key, append([]byte(timestamp), payload...))
	return "t=" + timestamp + ",v1=" + sig
}

func (v *Composite) Verify(_ context.Context, evt *inbound.Event, bundle secrets.Bundle) Outcome {
	header := evt.Header(v.Header)
	if header == "" {
		return Fail(ReasonMissingHeader)
	}

	payload := evt.Body()
	if len(payload) == 0 {
		return Fail(ReasonMissingBody)
	}

	secret, ok := bundle.Get(secretField(v.SecretField))
	if !ok {
		return Fail(ReasonSecretNotConfigured)
	}

	timestamp, signatures := ParseComposite(header)
	if timestamp == "" || len(signatures) == 0 {
		return Fail(ReasonMalformedSignature)
	}

	computed, err := Sign(SHA256, Hex, []byte(secret), append([]byte(timestamp), payload...))
	if err != nil {
		return Fail(err.Error())
	}

	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(computed)) {
			matched = true
		}
	}
	if !matched {
		return Fail(ReasonMismatch)
	}
	return OK()
}
