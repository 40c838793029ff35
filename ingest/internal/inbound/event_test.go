package inbound

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_HeaderCaseInsensitive(t *testing.T) {
	h := http.Header{}
	h.Set("X-Marqeta-Signature", "abc")

	evt := New(h, []byte(`{}`), time.Now())

	assert.Equal(t, "abc", evt.Header("x-marqeta-signature"))
	assert.Equal(t, "abc", evt.Header("X-MARQETA-SIGNATURE"))
	assert.Empty(t, evt.Header("missing"))
}

func TestEvent_Immutable(t *testing.T) {
	body := []byte(`{"a":1}`)
	h := http.Header{"X-Test": {"one"}}
	evt := New(h, body, time.Now())

	body[0] = 'X'
	h.Set("X-Test", "two")

	assert.Equal(t, `{"a":1}`, string(evt.Body()))
	assert.Equal(t, "one", evt.Header("X-Test"))

	got := evt.Body()
	got[0] = 'Y'
	assert.Equal(t, `{"a":1}`, string(evt.Body()))
}

func TestEvent_JSON(t *testing.T) {
	evt := New(nil, []byte(`{"id":"evt_1","data":{"id":"inner"}}`), time.Now())

	m, err := evt.JSON()
	require.NoError(t, err)
	assert.Equal(t, "evt_1", m["id"])

	bad := New(nil, []byte(`not json`), time.Now())
	_, err = bad.JSON()
	assert.Error(t, err)

	_, err = New(nil, []byte(`{"id":1} {"id":2}`), time.Now()).JSON()
	assert.Error(t, err)

	num, err := New(nil, []byte(`{"id":12345678901234567890}`), time.Now()).JSON()
	require.NoError(t, err)
	assert.Equal(t, json.Number("12345678901234567890"), num["id"])
}

func TestEvent_ArrivedAtIsUTC(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, loc)

	evt := New(nil, nil, ts)
	assert.Equal(t, time.UTC, evt.ArrivedAt().Location())
	assert.True(t, ts.Equal(evt.ArrivedAt()))
}

func TestFromRequest(t *testing.T) {
	now := time.Now()

	t.Run("within limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/stripe", bytes.NewBufferString("hello"))
		req.Header.Set("Stripe-Signature", "sig")

		evt, err := FromRequest(req, 10, now)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(evt.Body()))
		assert.Equal(t, "sig", evt.Header("stripe-signature"))
	})

	t.Run("exactly at limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/stripe", bytes.NewBufferString("0123456789"))
		evt, err := FromRequest(req, 10, now)
		require.NoError(t, err)
		assert.Equal(t, 10, evt.Len())
	})

	t.Run("over limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/stripe", bytes.NewBufferString("0123456789A"))
		_, err := FromRequest(req, 10, now)
		assert.True(t, errors.Is(err, ErrBodyTooLarge))
	})
}
