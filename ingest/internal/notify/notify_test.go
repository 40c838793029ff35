package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/telhawk-webhooks/common/messaging"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/blobstore"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/records"
)

type capturePublisher struct {
	msgs []*messaging.Message
	err  error
}

func (c *capturePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return c.PublishMsg(ctx, &messaging.Message{Subject: subject, Data: data})
}

func (c *capturePublisher) PublishMsg(_ context.Context, msg *messaging.Message) error {
	c.msgs = append(c.msgs, msg)
	return c.err
}

func (c *capturePublisher) Close() error { return nil }

func TestPublisher_Notify(t *testing.T) {
	pub := &capturePublisher{}
	rec := records.EventRecord{
		PK:        "SOLIDFI",
		SK:        "evt_9",
		ArrivedAt: "2024-01-01T00:00:00Z",
		Provider:  "solidfi",
		Blob:      blobstore.Locator{Bucket: "b", Key: "raw/solidfi/evt_evt_9.json", VersionID: "v"},
		ExpiresAt: 1704326400,
	}

	require.NoError(t, NewPublisher(pub).Notify(context.Background(), rec))
	require.Len(t, pub.msgs, 1)

	msg := pub.msgs[0]
	assert.Equal(t, "webhooks.received.solidfi", msg.Subject)
	assert.Equal(t, "SOLIDFI:evt_9", msg.Metadata[messaging.HeaderMsgID])

	var body Received
	require.NoError(t, json.Unmarshal(msg.Data, &body))
	assert.Equal(t, "evt_9", body.EventID)
	assert.Equal(t, "raw/solidfi/evt_evt_9.json", body.Key)
	assert.Equal(t, int64(1704326400), body.ExpiresAt)
}

func TestPublisher_PropagatesError(t *testing.T) {
	pub := &capturePublisher{err: errors.New("nats down")}
	err := NewPublisher(pub).Notify(context.Background(), records.EventRecord{Provider: "stripe"})
	assert.Error(t, err)
}
