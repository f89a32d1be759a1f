package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/toyota-m2k/android-worker/host"
)

// Logging returns middleware that logs task start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *host.Task, next Handler) error {
		logger.Info("task started",
			slog.String("task_id", t.ID.String()),
			slog.Bool("expedited", t.Expedited),
			slog.Bool("foreground", t.Foreground),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("task failed",
				slog.String("task_id", t.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("task completed",
				slog.String("task_id", t.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
