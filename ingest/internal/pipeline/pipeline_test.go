package pipeline

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/telhawk-webhooks/common/logging"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/blobstore"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/inbound"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/providers"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/records"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/secrets"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/verifier"
)

const sigHeader = "sd-webhook-sha256-signature"

// ---- fakes ----

type fakeSecrets struct {
	bundles map[string]secrets.Bundle
	err     error
}

func (f *fakeSecrets) Get(_ context.Context, provider string) (secrets.Bundle, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.bundles[provider]
	if !ok {
		return nil, secrets.ErrNotConfigured
	}
	return b, nil
}

type putCall struct {
	key      string
	body     []byte
	metadata map[string]string
}

// fakeBlobs keeps the latest body per key. With unversioned set it behaves
// like a bucket without versioning: empty version ids, and a bare-key delete
// removes whatever object is current.
type fakeBlobs struct {
	mu          sync.Mutex
	puts        []putCall
	deletes     []blobstore.Locator
	objects     map[string][]byte
	putErr      error
	delErr      error
	versions    int
	unversioned bool
}

func (f *fakeBlobs) Put(_ context.Context, key string, body []byte, metadata map[string]string) (blobstore.Locator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, putCall{key: key, body: body, metadata: metadata})
	if f.putErr != nil {
		return blobstore.Locator{}, f.putErr
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = body
	if f.unversioned {
		return blobstore.Locator{Bucket: "raw-bucket", Key: key}, nil
	}
	f.versions++
	return blobstore.Locator{Bucket: "raw-bucket", Key: key, VersionID: "v" + string(rune('0'+f.versions))}, nil
}

func (f *fakeBlobs) Delete(_ context.Context, key, versionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, blobstore.Locator{Key: key, VersionID: versionID})
	if f.delErr != nil {
		return f.delErr
	}
	if versionID == "" {
		delete(f.objects, key)
	}
	return nil
}

type memRecords struct {
	mu       sync.Mutex
	items    map[string]records.EventRecord
	puts     int
	gets     int
	putErr   error
	getErr   error
	conflict bool
}

func newMemRecords() *memRecords {
	return &memRecords{items: make(map[string]records.EventRecord)}
}

func (m *memRecords) Put(_ context.Context, rec records.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	k := rec.PK + "#" + rec.SK
	if _, ok := m.items[k]; ok || m.conflict {
		return records.ErrAlreadyExists
	}
	m.items[k] = rec
	return nil
}

func (m *memRecords) Get(_ context.Context, pk, sk string, _ ...string) (*records.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.items[pk+"#"+sk]
	if !ok {
		return nil, records.ErrNotFound
	}
	return &rec, nil
}

func (m *memRecords) Ping(context.Context) error { return nil }
func (m *memRecords) Close() error               { return nil }

type fakeNotifier struct {
	got []records.EventRecord
	err error
}

func (f *fakeNotifier) Notify(_ context.Context, rec records.EventRecord) error {
	f.got = append(f.got, rec)
	return f.err
}

// ---- harness ----

type harness struct {
	pipeline *Pipeline
	secrets  *fakeSecrets
	blobs    *fakeBlobs
	records  *memRecords
	notifier *fakeNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	reg, err := providers.NewRegistry(
		&providers.Provider{
			Name:     "solidfi",
			Verifier: &verifier.HMAC{Header: sigHeader, Hash: verifier.SHA256, Encoding: verifier.Hex},
			EventID:  providers.JSONField("data.id"),
		},
		&providers.Provider{
			Name:     "anon",
			Verifier: &verifier.HMAC{Header: sigHeader, Hash: verifier.SHA256, Encoding: verifier.Hex},
			EventID:  providers.Header("X-Never-Sent"),
		},
	)
	require.NoError(t, err)

	h := &harness{
		secrets: &fakeSecrets{bundles: map[string]secrets.Bundle{
			"solidfi": {secrets.FieldWebhookSecret: "k"},
			"anon":    {secrets.FieldWebhookSecret: "k"},
		}},
		blobs:    &fakeBlobs{},
		records:  newMemRecords(),
		notifier: &fakeNotifier{},
	}
	h.pipeline = New(Deps{
		Registry: reg,
		Secrets:  h.secrets,
		Dedup:    records.NewDedup(h.records),
		Blobs:    h.blobs,
		Records:  h.records,
		Notifier: h.notifier,
		Logger:   logging.Discard(),
	}, Options{KeyPrefix: "pre/"})
	return h
}

func (h *harness) storageCalls() int {
	return len(h.blobs.puts) + len(h.blobs.deletes) + h.records.puts + h.records.gets
}

var arrival = time.Date(2024, 5, 6, 7, 8, 9, 123000000, time.UTC)

func signed(body string, secret string) *inbound.Event {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	h := http.Header{}
	h.Set(sigHeader, hex.EncodeToString(mac.Sum(nil)))
	return inbound.New(h, []byte(body), arrival)
}

// ---- tests ----

func TestIngest_Success(t *testing.T) {
	h := newHarness(t)
	body := `{"data":{"id":"sol_1"}}`

	res, err := h.pipeline.Ingest(context.Background(), "solidfi", signed(body, "k"))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	rec := res.Record
	assert.Equal(t, "SOLIDFI", rec.PK)
	assert.Equal(t, "sol_1", rec.SK)
	assert.Equal(t, "2024-05-06T07:08:09Z", rec.ArrivedAt)
	assert.Equal(t, records.StatusPending, rec.StatusIndex)
	assert.Equal(t, rec.ArrivedAt, rec.StatusIndexSort)
	assert.Equal(t, time.Date(2024, 5, 9, 7, 8, 9, 0, time.UTC).Unix(), rec.ExpiresAt)
	assert.Equal(t, blobstore.Locator{Bucket: "raw-bucket", Key: "pre/raw/solidfi/evt_sol_1.json", VersionID: "v1"}, rec.Blob)

	require.Len(t, h.blobs.puts, 1)
	put := h.blobs.puts[0]
	assert.Equal(t, "pre/raw/solidfi/evt_sol_1.json", put.key)
	assert.Equal(t, body, string(put.body))
	assert.Equal(t, map[string]string{
		"event_id":   "sol_1",
		"arrived_at": "2024-05-06T07:08:09Z",
		"provider":   "solidfi",
		"expires_at": "1715238489",
	}, put.metadata)

	assert.Equal(t, 1, h.records.puts)
	assert.Len(t, h.notifier.got, 1)
}

func TestIngest_ConcreteHMACScenario(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Ingest(context.Background(), "solidfi", signed(`{"a":1}`, "k"))
	require.NoError(t, err)

	evt := signed(`{"a":1}`, "k")
	truncated := inbound.New(evt.Headers(), []byte(`{"a":1`), arrival)
	_, err = h.pipeline.Ingest(context.Background(), "solidfi", truncated)
	assert.True(t, errors.Is(err, ErrVerification))
}

func TestIngest_UnknownProviderTouchesNoStorage(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Ingest(context.Background(), "acme", signed(`{"a":1}`, "k"))
	assert.True(t, errors.Is(err, providers.ErrUnknownProvider))
	assert.Zero(t, h.storageCalls())
}

func TestIngest_MissingPayload(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Ingest(context.Background(), "acme", inbound.New(nil, nil, arrival))
	assert.True(t, errors.Is(err, ErrMissingPayload))
	assert.Zero(t, h.storageCalls())
}

func TestIngest_VerificationFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"bad signature", func(h *harness) {}},
		{"secret not configured", func(h *harness) { delete(h.secrets.bundles, "solidfi") }},
		{"secret backend fault", func(h *harness) { h.secrets.err = errors.New("vault sealed") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			_, err := h.pipeline.Ingest(context.Background(), "solidfi", signed(`{"data":{"id":"x"}}`, "wrong"))
			assert.True(t, errors.Is(err, ErrVerification))
			assert.Zero(t, h.storageCalls())
		})
	}
}

func TestIngest_Idempotent(t *testing.T) {
	h := newHarness(t)
	body := `{"data":{"id":"dup_1"}}`

	first, err := h.pipeline.Ingest(context.Background(), "solidfi", signed(body, "k"))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := h.pipeline.Ingest(context.Background(), "solidfi", signed(body, "k"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	assert.Len(t, h.blobs.puts, 1)
	assert.Equal(t, 1, h.records.puts)
	assert.Len(t, h.notifier.got, 1)
}

func TestIngest_FallbackEventID(t *testing.T) {
	h := newHarness(t)

	res, err := h.pipeline.Ingest(context.Background(), "anon", signed(`{"x":1}`, "k"))
	require.NoError(t, err)

	assert.Equal(t, "2024-05-06T07:08:09Z", res.Record.SK)
	assert.Equal(t, "pre/raw/anon/evt_2024-05-06T07:08:09Z.json", h.blobs.puts[0].key)
	assert.Equal(t, 1, h.records.gets, "arrival-time ids are checked before writing")
}

func TestIngest_FallbackCollisionIsRetryable(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Ingest(context.Background(), "anon", signed(`{"x":1}`, "k"))
	require.NoError(t, err)

	_, err = h.pipeline.Ingest(context.Background(), "anon", signed(`{"x":2}`, "k"))
	assert.True(t, errors.Is(err, ErrRecordWrite))
	assert.True(t, errors.Is(err, ErrArrivalCollision))
	assert.Len(t, h.blobs.puts, 1, "colliding payload is never written")
	assert.Empty(t, h.blobs.deletes)
}

func TestIngest_ArrivalCollisionKeepsFirstPayload_Unversioned(t *testing.T) {
	h := newHarness(t)
	h.blobs.unversioned = true

	first, err := h.pipeline.Ingest(context.Background(), "anon", signed(`{"x":1}`, "k"))
	require.NoError(t, err)

	_, err = h.pipeline.Ingest(context.Background(), "anon", signed(`{"x":2}`, "k"))
	require.ErrorIs(t, err, ErrArrivalCollision)

	rec := h.records.items[first.Record.PK+"#"+first.Record.SK]
	body, ok := h.blobs.objects[rec.Blob.Key]
	require.True(t, ok, "record %s#%s has no backing blob", rec.PK, rec.SK)
	assert.Equal(t, `{"x":1}`, string(body))
}

func TestIngest_ConflictOnUnversionedBucketSkipsDelete(t *testing.T) {
	h := newHarness(t)
	h.blobs.unversioned = true
	key := "pre/raw/solidfi/evt_race.json"
	h.blobs.objects = map[string][]byte{key: []byte(`{"data":{"id":"race"}}`)}
	// The concurrent winner committed between this request's dedup check and its record put.
	h.records.conflict = true

	res, err := h.pipeline.Ingest(context.Background(), "solidfi", signed(`{"data":{"id":"race"}}`, "k"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Empty(t, h.blobs.deletes)
	assert.Contains(t, h.blobs.objects, key)
}

func TestIngest_RecordWriteFailureOnUnversionedBucketLeavesOrphan(t *testing.T) {
	h := newHarness(t)
	h.blobs.unversioned = true
	h.records.putErr = records.ErrWrite

	_, err := h.pipeline.Ingest(context.Background(), "solidfi", signed(`{"data":{"id":"x"}}`, "k"))
	assert.ErrorIs(t, err, ErrRecordWrite)
	assert.Empty(t, h.blobs.deletes)
	assert.Contains(t, h.blobs.objects, "pre/raw/solidfi/evt_x.json")
	assert.Empty(t, h.records.items)
}

func TestIngest_DedupReadFault(t *testing.T) {
	h := newHarness(t)
	h.records.getErr = errors.New("timeout")

	_, err := h.pipeline.Ingest(context.Background(), "solidfi", signed(`{"data":{"id":"x"}}`, "k"))
	assert.True(t, errors.Is(err, ErrRecordRead))
	assert.True(t, errors.Is(err, records.ErrRead))
	assert.Empty(t, h.blobs.puts)
}

func TestIngest_BlobWriteFailure(t *testing.T) {
	h := newHarness(t)
	h.blobs.putErr = blobstore.ErrPut

	_, err := h.pipeline.Ingest(context.Background(), "solidfi", signed(`{"data":{"id":"x"}}`, "k"))
	assert.True(t, errors.Is(err, ErrBlobWrite))
	assert.Zero(t, h.records.puts)
	assert.Empty(t, h.blobs.deletes)
}

func TestIngest_RecordWriteCompensates(t *testing.T) {
	h := newHarness(t)
	h.records.putErr = records.ErrWrite

	_, err := h.pipeline.Ingest(context.Background(), "solidfi", signed(`{"data":{"id":"x"}}`, "k"))
	assert.True(t, errors.Is(err, ErrRecordWrite))
	assert.True(t, errors.Is(err, records.ErrWrite))

	require.Len(t, h.blobs.deletes, 1)
	assert.Equal(t, blobstore.Locator{Key: "pre/raw/solidfi/evt_x.json", VersionID: "v1"}, h.blobs.deletes[0])
	assert.Empty(t, h.notifier.got)
}

func TestIngest_CompensationFailureSurfacesRecordError(t *testing.T) {
	h := newHarness(t)
	h.records.putErr = records.ErrWrite
	h.blobs.delErr = blobstore.ErrDelete

	_, err := h.pipeline.Ingest(context.Background(), "solidfi", signed(`{"data":{"id":"x"}}`, "k"))
	assert.True(t, errors.Is(err, ErrRecordWrite))
	assert.False(t, errors.Is(err, blobstore.ErrDelete))
	assert.Len(t, h.blobs.deletes, 1)
}

func TestIngest_ConcurrentConflictIsDuplicate(t *testing.T) {
	h := newHarness(t)
	h.records.conflict = true

	res, err := h.pipeline.Ingest(context.Background(), "solidfi", signed(`{"data":{"id":"race"}}`, "k"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Len(t, h.blobs.deletes, 1, "losing writer's blob is removed")
	assert.Empty(t, h.notifier.got)
}

func TestIngest_NotifyFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("nats unavailable")

	res, err := h.pipeline.Ingest(context.Background(), "solidfi", signed(`{"data":{"id":"n"}}`, "k"))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Len(t, h.records.items, 1)
}
