// Package keyclient fetches webhook verification keys from Plaid.
package keyclient

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/verifier"
)

// DefaultEndpoint is the production verification key endpoint.
const DefaultEndpoint = "https://production.plaid.com/webhook_verification_key/get"

type Client struct {
	endpoint   string
	httpClient *http.Client
}

type keyRequest struct {
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
	KeyID    string `json:"key_id"`
}

type keyResponse struct {
	Key       JWK    `json:"key"`
	RequestID string `json:"request_id"`
}

// JWK is the JSON Web Key shape returned by the endpoint.
type JWK struct {
	Alg       string `json:"alg"`
	Crv       string `json:"crv"`
	Kid       string `json:"kid"`
	Kty       string `json:"kty"`
	Use       string `json:"use"`
	X         string `json:"x"`
	Y         string `json:"y"`
	CreatedAt int64  `json:"created_at"`
	ExpiredAt *int64 `json:"expired_at"`
}

func New(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchKey implements verifier.KeyFetcher. A non-200 response is reported as
// verifier.ErrKeyNotFound.
func (c *Client) FetchKey(ctx context.Context, clientID, clientSecret, kid string) (verifier.CachedKey, error) {
	if c == nil {
		return verifier.CachedKey{}, fmt.Errorf("key client not configured")
	}

	bodyBytes, err := json.Marshal(keyRequest{
		ClientID: clientID,
		Secret:   clientSecret,
		KeyID:    kid,
	})
	if err != nil {
		return verifier.CachedKey{}, fmt.Errorf("marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return verifier.CachedKey{}, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return verifier.CachedKey{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return verifier.CachedKey{}, fmt.Errorf("key %s: status %d: %w", kid, resp.StatusCode, verifier.ErrKeyNotFound)
	}

	var result keyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return verifier.CachedKey{}, fmt.Errorf("decode response: %w", err)
	}

	pub, err := result.Key.PublicKey()
	if err != nil {
		return verifier.CachedKey{}, err
	}

	return verifier.CachedKey{Key: pub, ExpiredAt: result.Key.ExpiredAt}, nil
}

// PublicKey converts a P-256 EC JWK to an ECDSA public key.
func (k JWK) PublicKey() (*ecdsa.PublicKey, error) {
	if k.Kty != "EC" || k.Crv != "P-256" {
		return nil, fmt.Errorf("unsupported key type %s/%s", k.Kty, k.Crv)
	}

	x, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, fmt.Errorf("decode x: %w", err)
	}
	y, err := base64.RawURLEncoding.DecodeString(k.Y)
	if err != nil {
		return nil, fmt.Errorf("decode y: %w", err)
	}

	curve := elliptic.P256()
	pub := &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}
	if !curve.IsOnCurve(pub.X, pub.Y) {
		return nil, fmt.Errorf("key %s: point not on curve", k.Kid)
	}
	return pub, nil
}

// EncodeJWK renders an ECDSA public key as a JWK; used by tests and the CLI stub server.
func EncodeJWK(kid string, pub *ecdsa.PublicKey, createdAt int64, expiredAt *int64) JWK {
	size := (pub.Curve.Params().BitSize + 7) / 8
	return JWK{
		Alg:       "ES256",
		Crv:       "P-256",
		Kid:       kid,
		Kty:       "EC",
		Use:       "sig",
		X:         base64.RawURLEncoding.EncodeToString(pub.X.FillBytes(make([]byte, size))),
		Y:         base64.RawURLEncoding.EncodeToString(pub.Y.FillBytes(make([]byte, size))),
		CreatedAt: createdAt,
		ExpiredAt: expiredAt,
	}
}

// KeyResponse wraps a JWK in the endpoint's response envelope.
func KeyResponse(key JWK, requestID string) any {
	return keyResponse{Key: key, RequestID: requestID}
}
