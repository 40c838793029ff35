package blobstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/encrypt"
)

// MinIOConfig configures the S3 client.
type MinIOConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseTLS       bool
	Region       string
	Bucket       string
	KMSKeyID     string
	StorageClass string
}

// MinIO is a Store backed by minio-go. The bucket must have versioning
// enabled so that Locator.VersionID is populated; see CheckVersioning.
type MinIO struct {
	mc           *minio.Client
	bucket       string
	sse          encrypt.ServerSide
	storageClass string
}

func NewMinIO(cfg MinIOConfig) (*MinIO, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseTLS,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	c := &MinIO{mc: mc, bucket: cfg.Bucket, storageClass: cfg.StorageClass}
	if cfg.KMSKeyID != "" {
		sse, err := encrypt.NewSSEKMS(cfg.KMSKeyID, nil)
		if err != nil {
			return nil, fmt.Errorf("configure sse-kms: %w", err)
		}
		c.sse = sse
	}
	return c, nil
}

// EnsureBucket creates the bucket if needed and turns on versioning.
func (c *MinIO) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return err
		}
	}
	return c.mc.EnableVersioning(ctx, c.bucket)
}

// CheckVersioning fails unless the bucket has versioning enabled. Compensating
// deletes address one object version; on an unversioned bucket they cannot.
func (c *MinIO) CheckVersioning(ctx context.Context) error {
	v, err := c.mc.GetBucketVersioning(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("read versioning of %s: %w", c.bucket, err)
	}
	if !v.Enabled() {
		return fmt.Errorf("%w: %s", ErrVersioningDisabled, c.bucket)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (c *MinIO) Ping(ctx context.Context) error {
	_, err := c.mc.BucketExists(ctx, c.bucket)
	return err
}

func (c *MinIO) Put(ctx context.Context, key string, body []byte, metadata map[string]string) (Locator, error) {
	opts := minio.PutObjectOptions{
		ContentType:          "application/json",
		UserMetadata:         metadata,
		SendContentMd5:       true,
		StorageClass:         c.storageClass,
		ServerSideEncryption: c.sse,
	}

	info, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(body), int64(len(body)), opts)
	if err != nil {
		return Locator{}, fmt.Errorf("%w: %s: %v", ErrPut, key, err)
	}

	return Locator{Bucket: c.bucket, Key: key, VersionID: info.VersionID}, nil
}

func (c *MinIO) Delete(ctx context.Context, key, versionID string) error {
	err := c.mc.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{VersionID: versionID})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDelete, key, err)
	}
	return nil
}

// Get reads an object version back; used by the CLI and tests.
func (c *MinIO) Get(ctx context.Context, key, versionID string) ([]byte, map[string]string, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{VersionID: versionID})
	if err != nil {
		return nil, nil, err
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, nil, err
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), info.UserMetadata, nil
}
