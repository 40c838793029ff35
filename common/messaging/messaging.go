// Package messaging carries webhook lifecycle notifications to a broker.
package messaging

import (
	"context"
	"time"
)

// Message is one broker notification. Metadata travels as message headers.
type Message struct {
	Subject   string
	Data      []byte
	Metadata  map[string]string
	Timestamp time.Time
}

// Publisher delivers notifications. Implementations return only after the
// broker has accepted the message, or with the reason it did not.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	PublishMsg(ctx context.Context, msg *Message) error
	Close() error
}
