// Package blobstore persists raw webhook payloads in an S3-compatible bucket.
package blobstore

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrPut    = errors.New("blob put failed")
	ErrDelete = errors.New("blob delete failed")

	// ErrVersioningDisabled means puts would return locators without a version id.
	ErrVersioningDisabled = errors.New("bucket versioning is not enabled")
)

// Locator addresses a stored object version.
type Locator struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	VersionID string `json:"version_id"`
}

// Store writes and deletes raw payload objects.
type Store interface {
	Put(ctx context.Context, key string, body []byte, metadata map[string]string) (Locator, error)
	Delete(ctx context.Context, key, versionID string) error
}

// EventKey builds {prefix}raw/{provider}/evt_{eventID}.json.
func EventKey(prefix, provider, eventID string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString("raw/")
	b.WriteString(provider)
	b.WriteString("/evt_")
	b.WriteString(eventID)
	b.WriteString(".json")
	return b.String()
}
