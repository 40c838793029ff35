// Package inbound holds the immutable view of a received webhook request.
package inbound

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ErrBodyTooLarge is returned by FromRequest when the body exceeds the configured limit.
var ErrBodyTooLarge = errors.New("request body too large")

// Event is a received webhook: headers, raw body and the arrival instant.
// It is safe for concurrent reads.
type Event struct {
	header    http.Header
	body      []byte
	arrivedAt time.Time

	jsonOnce sync.Once
	jsonBody map[string]any
	jsonErr  error
}

// New builds an Event. Header names are canonicalised so lookups are case-insensitive.
func New(header http.Header, body []byte, arrivedAt time.Time) *Event {
	h := make(http.Header, len(header))
	for k, vs := range header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	b := make([]byte, len(body))
	copy(b, body)

	return &Event{
		header:    h,
		body:      b,
		arrivedAt: arrivedAt.UTC(),
	}
}

// FromRequest reads at most maxBytes of the request body.
func FromRequest(r *http.Request, maxBytes int64, now time.Time) (*Event, error) {
	var body []byte
	if r.Body != nil {
		defer r.Body.Close()

		limited := io.LimitReader(r.Body, maxBytes+1)
		b, err := io.ReadAll(limited)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if int64(len(b)) > maxBytes {
			return nil, ErrBodyTooLarge
		}
		body = b
	}
	return New(r.Header, body, now), nil
}

// Header returns the first value of the named header, or "".
func (e *Event) Header(name string) string {
	return e.header.Get(name)
}

// Headers returns a copy of all headers.
func (e *Event) Headers() http.Header {
	return e.header.Clone()
}

// Body returns a copy of the raw body bytes.
func (e *Event) Body() []byte {
	b := make([]byte, len(e.body))
	copy(b, e.body)
	return b
}

// Len is the body length in bytes.
func (e *Event) Len() int {
	return len(e.body)
}

// ArrivedAt is the UTC arrival time.
func (e *Event) ArrivedAt() time.Time {
	return e.arrivedAt
}

// JSON parses the body as a JSON object. The result is computed once.
// Numbers are kept as json.Number so large integer ids survive intact.
func (e *Event) JSON() (map[string]any, error) {
	e.jsonOnce.Do(func() {
		dec := json.NewDecoder(bytes.NewReader(e.body))
		dec.UseNumber()
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			e.jsonErr = fmt.Errorf("decode json body: %w", err)
			return
		}
		if _, err := dec.Token(); err != io.EOF {
			e.jsonErr = errors.New("decode json body: trailing data after object")
			return
		}
		e.jsonBody = m
	})
	return e.jsonBody, e.jsonErr
}
