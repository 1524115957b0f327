package internal

import (
	"context"
	"time"
)

// WithTimeout bounds a single store round trip. A non-positive d leaves ctx as is.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
