package providers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/inbound"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/secrets"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/verifier"
)

type noFetcher struct{}

func (noFetcher) FetchKey(context.Context, string, string, string) (verifier.CachedKey, error) {
	return verifier.CachedKey{}, verifier.ErrKeyNotFound
}

func TestDefault_Names(t *testing.T) {
	r := Default(noFetcher{}, verifier.NewKeyCache())
	assert.Equal(t, []string{
		"lithic", "marqeta", "plaid", "solidfi", "stripe", "treasury_prime", "trolley",
	}, r.Names())
}

func TestLookup_Unknown(t *testing.T) {
	r := Default(noFetcher{}, verifier.NewKeyCache())

	for _, name := range []string{"acme", "Stripe", "STRIPE", ""} {
		_, err := r.Lookup(name)
		assert.True(t, errors.Is(err, ErrUnknownProvider), name)
	}
}

func TestNewRegistry_Rejects(t *testing.T) {
	p := &Provider{Name: "x", Verifier: &verifier.BasicAuth{}, EventID: Header("id")}

	_, err := NewRegistry(p, p)
	assert.Error(t, err)

	_, err = NewRegistry(&Provider{Name: "y"})
	assert.Error(t, err)
}

func evt(headers map[string]string, body string) *inbound.Event {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return inbound.New(h, []byte(body), time.Now())
}

func TestDefault_EventIDs(t *testing.T) {
	r := Default(noFetcher{}, verifier.NewKeyCache())

	tests := []struct {
		provider string
		evt      *inbound.Event
		want     string
	}{
		{Stripe, evt(nil, `{"id":"evt_1"}`), "evt_1"},
		{Plaid, evt(nil, `{"item_id":"item_9"}`), "item_9"},
		{Marqeta, evt(map[string]string{"X-Marqeta-Request-Trace-Id": "trace"}, `{}`), "trace"},
		{Lithic, evt(map[string]string{"webhook-id": "msg_2"}, `{}`), "msg_2"},
		{Trolley, evt(map[string]string{"X-PaymentRails-Delivery": "d-1"}, `{}`), "d-1"},
		{SolidFi, evt(nil, `{"data":{"id":"solid-1"}}`), "solid-1"},
		{TreasuryPrime, evt(nil, `{"id":"tp_1"}`), "tp_1"},
		{Stripe, evt(nil, `{}`), ""},
		{Stripe, evt(nil, `[1,2]`), ""},
		{SolidFi, evt(nil, `{"data":"flat"}`), ""},
		{Lithic, evt(nil, `{}`), ""},
	}

	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.want, func(t *testing.T) {
			p, err := r.Lookup(tt.provider)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.EventID(tt.evt))
		})
	}
}

func TestJSONField_Number(t *testing.T) {
	assert.Equal(t, "42", JSONField("id")(evt(nil, `{"id":42}`)))
	assert.Equal(t, "1.5e3", JSONField("id")(evt(nil, `{"id":1.5e3}`)))

	// Both exceed 2^53 and collapse to the same float64.
	a := JSONField("data.id")(evt(nil, `{"data":{"id":9007199254740993}}`))
	b := JSONField("data.id")(evt(nil, `{"data":{"id":9007199254740992}}`))
	assert.Equal(t, "9007199254740993", a)
	assert.Equal(t, "9007199254740992", b)
	assert.NotEqual(t, a, b)
}

func TestDefault_TreasuryPrimeBasicAuth(t *testing.T) {
	r := Default(noFetcher{}, verifier.NewKeyCache())
	p, err := r.Lookup(TreasuryPrime)
	require.NoError(t, err)

	bundle := secrets.Bundle{
		secrets.FieldBasicAuthUser:     "u",
		secrets.FieldBasicAuthPassword: "p",
	}
	out := p.Verifier.Verify(context.Background(),
		evt(map[string]string{"Authorization": verifier.BasicAuthHeader("u", "p")}, `{"id":"1"}`), bundle)
	assert.True(t, out.Verified, out.Reason)
}

func TestDefault_MarqetaRequiresSignature(t *testing.T) {
	r := Default(noFetcher{}, verifier.NewKeyCache())
	p, err := r.Lookup(Marqeta)
	require.NoError(t, err)

	body := `{"type":"authorization"}`
	bundle := secrets.Bundle{
		secrets.FieldBasicAuthUser:     "u",
		secrets.FieldBasicAuthPassword: "p",
		secrets.FieldWebhookSecret:     "k",
	}
	sig, err := verifier.Sign(verifier.SHA1, verifier.Hex, []byte("k"), []byte(body))
	require.NoError(t, err)

	out := p.Verifier.Verify(context.Background(), evt(map[string]string{
		"Authorization":        verifier.BasicAuthHeader("u", "p"),
		HeaderMarqetaSignature: sig,
	}, body), bundle)
	assert.True(t, out.Verified, out.Reason)

	out = p.Verifier.Verify(context.Background(), evt(map[string]string{
		"Authorization": verifier.BasicAuthHeader("u", "p"),
	}, body), bundle)
	assert.False(t, out.Verified)
}
