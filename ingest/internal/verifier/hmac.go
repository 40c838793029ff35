package verifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/inbound"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/secrets"
)

// Hash names a digest algorithm.
type Hash string

const (
	SHA1   Hash = "sha1"
	SHA256 Hash = "sha256"
)

// Encoding names a digest text encoding.
type Encoding string

const (
	Hex    Encoding = "hex"
	Base64 Encoding = "base64"
)

func (h Hash) new() (func() hash.Hash, error) {
	switch h {
	case SHA1:
		return sha1.New, nil
	case SHA256, "":
		return sha256.New, nil
	default:
		return nil, fmt.Errorf("unsupported hash %q", string(h))
	}
}

// Sign computes the encoded HMAC of payload under key.
func Sign(h Hash, enc Encoding, key, payload []byte) (string, error) {
	fn, err := h.new()
	if err != nil {
		return "", err
	}
	mac := hmac.New(fn, key)
	mac.Write(payload)
	sum := mac.Sum(nil)

	switch enc {
	case Hex, "":
		return hex.EncodeToString(sum), nil
	case Base64:
		return base64.StdEncoding.EncodeToString(sum), nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", string(enc))
	}
}

// HMAC verifies a digest of the raw body carried in a single header.
type HMAC struct {
	Header      string
	Hash        Hash
	Encoding    Encoding
	SecretField string
}

func (v *HMAC) Verify(_ context.Context, evt *inbound.Event, bundle secrets.Bundle) Outcome {
	signature := evt.Header(v.Header)
	if signature == "" {
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

	computed, err := Sign(v.Hash, v.Encoding, []byte(secret), payload)
	if err != nil {
		return Fail(err.Error())
	}

	if v.Encoding == Base64 {
		signature = strings.TrimRight(signature, " \t\r\n")
		computed = strings.TrimRight(computed, " \t\r\n")
	}

	if !hmac.Equal([]byte(signature), []byte(computed)) {
		return Fail(ReasonMismatch)
	}
	return OK()
}
