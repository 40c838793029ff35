// Package notify announces persisted webhook events to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/telhawk-systems/telhawk-webhooks/common/messaging"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/records"
)

// Notifier publishes a persisted record.
type Notifier interface {
	Notify(ctx context.Context, rec records.EventRecord) error
}

// Received is the notification body.
type Received struct {
	Provider  string `json:"provider"`
	EventID   string `json:"event_id"`
	ArrivedAt string `json:"arrived_at"`
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	VersionID string `json:"version_id,omitempty"`
	ExpiresAt int64  `json:"expires_at"`
}

// Publisher sends records on webhooks.received.{provider}.
type Publisher struct {
	pub messaging.Publisher
}

func NewPublisher(pub messaging.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

func (p *Publisher) Notify(ctx context.Context, rec records.EventRecord) error {
	data, err := json.Marshal(Received{
		Provider:  rec.Provider,
		EventID:   rec.SK,
		ArrivedAt: rec.ArrivedAt,
		Bucket:    rec.Blob.Bucket,
		Key:       rec.Blob.Key,
		VersionID: rec.Blob.VersionID,
		ExpiresAt: rec.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	return p.pub.PublishMsg(ctx, &messaging.Message{
		Subject: messaging.WebhookReceivedSubject(rec.Provider),
		Data:    data,
		Metadata: map[string]string{
			messaging.HeaderMsgID: rec.PK + ":" + rec.SK,
		},
	})
}

// Noop discards notifications.
type Noop struct{}

func (Noop) Notify(context.Context, records.EventRecord) error { return nil }
