// Package records stores the indexed metadata record for each ingested webhook.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/blobstore"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrRead          = errors.New("record read failed")
	ErrWrite         = errors.New("record write failed")
)

// StatusPending is the index status of a freshly ingested event.
const StatusPending = "PENDING"

// DefaultRetention is how long records and payload metadata are kept.
const DefaultRetention = 3 * 24 * time.Hour

// Deadlines the stores put on each call, inside whatever the caller set.
const (
	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	sweepTimeout = 30 * time.Second
)

// Attribute names accepted by Get projections.
const (
	AttrPK              = "pk"
	AttrSK              = "sk"
	AttrArrivedAt       = "arrived_at"
	AttrProvider        = "provider"
	AttrBlob            = "blob"
	AttrStatusIndex     = "status_index"
	AttrStatusIndexSort = "status_index_sort"
	AttrExpiresAt       = "expires_at"
)

// EventRecord is the persisted metadata for one webhook.
type EventRecord struct {
	PK              string            `json:"pk"`
	SK              string            `json:"sk"`
	ArrivedAt       string            `json:"arrived_at"`
	Provider        string            `json:"provider"`
	Blob            blobstore.Locator `json:"blob"`
	StatusIndex     string            `json:"status_index"`
	StatusIndexSort string            `json:"status_index_sort"`
	ExpiresAt       int64             `json:"expires_at"`
}

// PartitionKey is the upper-cased provider name.
func PartitionKey(provider string) string {
	return strings.ToUpper(provider)
}

// FormatArrival renders t as RFC3339 with second precision and a Z suffix.
func FormatArrival(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

// NewEventRecord assembles a pending record.
func NewEventRecord(provider, eventID string, arrivedAt time.Time, retention time.Duration, blob blobstore.Locator) EventRecord {
	arrived := arrivedAt.UTC().Truncate(time.Second)
	ts := FormatArrival(arrived)
	return EventRecord{
		PK:              PartitionKey(provider),
		SK:              eventID,
		ArrivedAt:       ts,
		Provider:        provider,
		Blob:            blob,
		StatusIndex:     StatusPending,
		StatusIndexSort: ts,
		ExpiresAt:       arrived.Add(retention).Unix(),
	}
}

// Store is a conditional key-value store of EventRecords.
type Store interface {
	// Put writes the record only if (PK, SK) is absent; otherwise ErrAlreadyExists.
	Put(ctx context.Context, rec EventRecord) error

	// Get returns ErrNotFound when absent. attrs limits the populated fields;
	// none means all.
	Get(ctx context.Context, pk, sk string, attrs ...string) (*EventRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// Dedup answers whether an event was already recorded.
type Dedup struct {
	store Store
}

func NewDedup(store Store) *Dedup {
	return &Dedup{store: store}
}

// Exists reports (false, nil) for an absent record and wraps read faults in ErrRead.
func (d *Dedup) Exists(ctx context.Context, pk, sk string) (bool, error) {
	_, err := d.store.Get(ctx, pk, sk, AttrPK)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if errors.Is(err, ErrRead) {
		return false, err
	}
	return false, fmt.Errorf("%w: %v", ErrRead, err)
}

func project(rec *EventRecord, attrs []string) *EventRecord {
	if len(attrs) == 0 {
		return rec
	}
	out := &EventRecord{}
	for _, a := range attrs {
		switch a {
		case AttrPK:
			out.PK = rec.PK
		case AttrSK:
			out.SK = rec.SK
		case AttrArrivedAt:
			out.ArrivedAt = rec.ArrivedAt
		case AttrProvider:
			out.Provider = rec.Provider
		case AttrBlob:
			out.Blob = rec.Blob
		case AttrStatusIndex:
			out.StatusIndex = rec.StatusIndex
		case AttrStatusIndexSort:
			out.StatusIndexSort = rec.StatusIndexSort
		case AttrExpiresAt:
			out.ExpiresAt = rec.ExpiresAt
		}
	}
	return out
}
