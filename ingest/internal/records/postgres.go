package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps records in the webhook_events table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Put(ctx context.Context, rec EventRecord) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	query := `
		INSERT INTO webhook_events (pk, sk, arrived_at, provider, blob_bucket, blob_key, blob_version_id,
		                            status_index, status_index_sort, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (pk, sk) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		rec.PK, rec.SK, rec.ArrivedAt, rec.Provider,
		rec.Blob.Bucket, rec.Blob.Key, rec.Blob.VersionID,
		rec.StatusIndex, rec.StatusIndexSort, rec.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, pk, sk string, attrs ...string) (*EventRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	query := `
		SELECT pk, sk, arrived_at, provider, blob_bucket, blob_key, blob_version_id,
		       status_index, status_index_sort, expires_at
		FROM webhook_events
		WHERE pk = $1 AND sk = $2
	`

	var rec EventRecord
	err := s.pool.QueryRow(ctx, query, pk, sk).Scan(
		&rec.PK, &rec.SK, &rec.ArrivedAt, &rec.Provider,
		&rec.Blob.Bucket, &rec.Blob.Key, &rec.Blob.VersionID,
		&rec.StatusIndex, &rec.StatusIndexSort, &rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return project(&rec, attrs), nil
}

// DeleteExpired removes rows whose expires_at is before now.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM webhook_events WHERE expires_at < $1`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
