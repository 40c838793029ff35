package providers

import (
	"encoding/json"
	"strings"

	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/inbound"
)

// EventIDFunc extracts the provider's unique event id. "" means none was supplied.
type EventIDFunc func(evt *inbound.Event) string

// Header reads the id from a header.
func Header(name string) EventIDFunc {
	return func(evt *inbound.Event) string {
		return strings.TrimSpace(evt.Header(name))
	}
}

// JSONField reads the id from a dotted path in a JSON object body, e.g. "data.id".
// A body that is not a JSON object yields "".
func JSONField(path string) EventIDFunc {
	parts := strings.Split(path, ".")
	return func(evt *inbound.Event) string {
		m, err := evt.JSON()
		if err != nil {
			return ""
		}

		var cur any = m
		for _, p := range parts {
			obj, ok := cur.(map[string]any)
			if !ok {
				return ""
			}
			cur = obj[p]
		}

		switch v := cur.(type) {
		case string:
			return v
		case json.Number:
			return v.String()
		default:
			return ""
		}
	}
}
