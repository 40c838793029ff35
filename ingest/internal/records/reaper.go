package records

import (
	"context"
	"log/slog"
	"time"

	"github.com/telhawk-systems/telhawk-webhooks/common/logging"
)

// Expirer is implemented by stores that need periodic cleanup.
type Expirer interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RunReaper calls DeleteExpired every interval until ctx is done.
func RunReaper(ctx context.Context, e Expirer, interval time.Duration, logger *logging.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := e.DeleteExpired(ctx, now)
			if err != nil {
				logger.ErrorContext(ctx, "expired record cleanup failed", logging.Error(err))
				continue
			}
			if n > 0 {
				logger.InfoContext(ctx, "expired records removed", slog.Int64("count", n))
			}
		}
	}
}
