// Package pipeline authenticates, de-duplicates and persists inbound webhooks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/telhawk-systems/telhawk-webhooks/common/logging"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/blobstore"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/inbound"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/metrics"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/notify"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/providers"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/records"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/saga"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/secrets"
)

var (
	ErrMissingPayload = errors.New("no payload found in request")
	ErrVerification   = errors.New("webhook verification failed")
	ErrBlobWrite      = errors.New("failed to store request payload")
	ErrRecordWrite    = errors.New("failed to store request metadata")
	ErrRecordRead     = errors.New("failed to read request metadata")

	// ErrArrivalCollision is a record conflict on an arrival-time event id.
	// Two distinct deliveries arrived in the same second; the later one must be retried.
	ErrArrivalCollision = errors.New("arrival-time event id already recorded")
)

// Stage names the progress of one ingestion, for logs.
type Stage string

const (
	StageReceived     Stage = "RECEIVED"
	StageVerified     Stage = "VERIFIED"
	StageDedupChecked Stage = "DEDUP_CHECKED"
	StageBlobStored   Stage = "BLOB_STORED"
	StageRecorded     Stage = "RECORDED"
	StageAck          Stage = "ACK"
)

// Saga step names.
const (
	stepBlob   = "blob"
	stepRecord = "record"
)

// Registry resolves provider names.
type Registry interface {
	Lookup(name string) (*providers.Provider, error)
}

// DedupChecker reports whether a (pk, sk) record exists.
type DedupChecker interface {
	Exists(ctx context.Context, pk, sk string) (bool, error)
}

// RecordWriter conditionally writes records.
type RecordWriter interface {
	Put(ctx context.Context, rec records.EventRecord) error
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Registry Registry
	Secrets  secrets.Provider
	Dedup    DedupChecker
	Blobs    blobstore.Store
	Records  RecordWriter
	Notifier notify.Notifier
	Logger   *logging.Logger
}

// Options tune key layout and retention.
type Options struct {
	// KeyPrefix is prepended to every blob key, e.g. "webhooks/".
	KeyPrefix string
	Retention time.Duration
}

// Result is the outcome of a successful ingestion.
type Result struct {
	Record    records.EventRecord
	Duplicate bool
}

type Pipeline struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Pipeline {
	if deps.Notifier == nil {
		deps.Notifier = notify.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if opts.Retention <= 0 {
		opts.Retention = records.DefaultRetention
	}
	return &Pipeline{deps: deps, opts: opts}
}

// Ingest runs one webhook through verification and persistence.
func (p *Pipeline) Ingest(ctx context.Context, providerName string, evt *inbound.Event) (Result, error) {
	log := p.deps.Logger.WithContext(ctx).With(logging.Provider(providerName))

	if evt.Len() == 0 {
		log.Warn("no payload found in request")
		return Result{}, ErrMissingPayload
	}

	prov, err := p.deps.Registry.Lookup(providerName)
	if err != nil {
		log.Warn("unknown provider")
		return Result{}, err
	}
	log.Debug("webhook received", logging.Stage(string(StageReceived)))

	bundle, err := p.deps.Secrets.Get(ctx, prov.Name)
	switch {
	case err == nil:
	case errors.Is(err, secrets.ErrNotConfigured):
		bundle = secrets.Bundle{}
	default:
		metrics.VerificationFailures.WithLabelValues(prov.Name).Inc()
		log.Warn("secret lookup failed", logging.Error(err))
		return Result{}, ErrVerification
	}

	outcome := prov.Verifier.Verify(ctx, evt, bundle)
	if !outcome.Verified {
		metrics.VerificationFailures.WithLabelValues(prov.Name).Inc()
		log.Warn("webhook verification failed", logging.Reason(outcome.Reason))
		return Result{}, ErrVerification
	}
	log.Debug("webhook verified", logging.Stage(string(StageVerified)))

	arrivedAt := records.FormatArrival(evt.ArrivedAt())
	pk := records.PartitionKey(prov.Name)
	eventID := prov.EventID(evt)
	fromProvider := eventID != ""
	if !fromProvider {
		eventID = arrivedAt
	}
	log = log.With(logging.EventID(eventID))

	// Arrival-time ids are checked too: blob keys are derived from the id, and
	// a second delivery in the same second must not overwrite the first payload.
	start := time.Now()
	exists, err := p.deps.Dedup.Exists(ctx, pk, eventID)
	metrics.StorageDuration.WithLabelValues("record_get").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageErrors.WithLabelValues("record_get").Inc()
		log.Error("dedup check failed", logging.Error(err))
		return Result{}, fmt.Errorf("%w: %w", ErrRecordRead, err)
	}
	switch {
	case exists && fromProvider:
		log.Warn("duplicate webhook request, replying with 200")
		return Result{Record: records.EventRecord{PK: pk, SK: eventID, Provider: prov.Name}, Duplicate: true}, nil
	case exists:
		log.Error("arrival-time event id collision")
		return Result{}, fmt.Errorf("%w: %w", ErrRecordWrite, ErrArrivalCollision)
	}
	log.Debug("dedup checked", logging.Stage(string(StageDedupChecked)))

	key := blobstore.EventKey(p.opts.KeyPrefix, prov.Name, eventID)
	rec := records.NewEventRecord(prov.Name, eventID, evt.ArrivedAt(), p.opts.Retention, blobstore.Locator{})
	metadata := map[string]string{
		"event_id":   eventID,
		"arrived_at": arrivedAt,
		"provider":   prov.Name,
		"expires_at": strconv.FormatInt(rec.ExpiresAt, 10),
	}

	var loc blobstore.Locator
	tx := saga.New(
		saga.Step{
			Name: stepBlob,
			Do: func(ctx context.Context) error {
				start := time.Now()
				l, err := p.deps.Blobs.Put(ctx, key, evt.Body(), metadata)
				metrics.StorageDuration.WithLabelValues("blob_put").Observe(time.Since(start).Seconds())
				if err != nil {
					metrics.StorageErrors.WithLabelValues("blob_put").Inc()
					return err
				}
				loc = l
				log.Debug("payload stored", logging.Stage(string(StageBlobStored)), logging.BlobKey(key))
				return nil
			},
			Undo: func(ctx context.Context) error {
				// Without a version id the delete would hit whatever object now
				// lives at the key, possibly one a committed record points at.
				if loc.VersionID == "" {
					log.Warn("unversioned blob left in place", logging.BlobKey(loc.Key))
					return nil
				}
				return p.deps.Blobs.Delete(ctx, loc.Key, loc.VersionID)
			},
		},
		saga.Step{
			Name: stepRecord,
			Do: func(ctx context.Context) error {
				rec.Blob = loc
				start := time.Now()
				err := p.deps.Records.Put(ctx, rec)
				metrics.StorageDuration.WithLabelValues("record_put").Observe(time.Since(start).Seconds())
				if err != nil && !errors.Is(err, records.ErrAlreadyExists) {
					metrics.StorageErrors.WithLabelValues("record_put").Inc()
				}
				return err
			},
		},
	)
	tx.OnCompensationError = func(step string, err error) {
		metrics.CompensationFailures.Inc()
		log.Error("compensation failed", slog.String("step", step), logging.BlobKey(key), logging.Error(err))
	}

	if err := tx.Run(ctx); err != nil {
		var stepErr *saga.StepError
		if !errors.As(err, &stepErr) {
			return Result{}, err
		}
		switch {
		case stepErr.Step == stepBlob:
			log.Error("failed to store request payload", logging.Error(stepErr.Err))
			return Result{}, fmt.Errorf("%w: %w", ErrBlobWrite, stepErr.Err)
		case errors.Is(stepErr.Err, records.ErrAlreadyExists) && fromProvider:
			log.Warn("concurrent duplicate webhook request, replying with 200")
			return Result{Record: rec, Duplicate: true}, nil
		case errors.Is(stepErr.Err, records.ErrAlreadyExists):
			log.Error("arrival-time event id collision")
			return Result{}, fmt.Errorf("%w: %w", ErrRecordWrite, ErrArrivalCollision)
		default:
			log.Error("failed to store request metadata", logging.Error(stepErr.Err))
			return Result{}, fmt.Errorf("%w: %w", ErrRecordWrite, stepErr.Err)
		}
	}
	log.Debug("record stored", logging.Stage(string(StageRecorded)))

	if err := p.deps.Notifier.Notify(ctx, rec); err != nil {
		metrics.NotifyErrors.Inc()
		log.Warn("ingestion notification failed", logging.Error(err))
	}

	log.Info("webhook ingested", logging.Stage(string(StageAck)), logging.BlobKey(key))
	return Result{Record: rec}, nil
}
