package signer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/telhawk-systems/telhawk-webhooks/common/httputil"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/keyclient"
)

// GenerateKey creates a P-256 key for signing Plaid tokens.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// EncodeKey renders key as a PEM "EC PRIVATE KEY" block.
func EncodeKey(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// DecodeKey parses a PEM "EC PRIVATE KEY" block.
func DecodeKey(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "EC PRIVATE KEY" {
		return nil, errors.New("no EC PRIVATE KEY block found")
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

type keyRequest struct {
	KeyID string `json:"key_id"`
}

// KeyHandler serves the Plaid verification-key endpoint for one key, so a local
// ingest service can verify tokens from PlaidToken. Unknown key ids get 400.
func KeyHandler(kid string, pub *ecdsa.PublicKey, createdAt time.Time) http.Handler {
	jwk := keyclient.EncodeJWK(kid, pub, createdAt.Unix(), nil)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req keyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.KeyID != kid {
			httputil.WriteError(w, http.StatusBadRequest, "key not found")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, keyclient.KeyResponse(jwk, uuid.NewString()))
	})
}
