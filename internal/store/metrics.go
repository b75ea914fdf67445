package store

import (
	"context"
	"time"

	"github.com/theakshaypant/calmirror/internal/metrics"
)

// ObserveDB starts a latency measurement for a backend operation; call the
// returned func when it completes.
func ObserveDB(ctx context.Context, operation string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveDBLatency(ctx, operation, start)
	}
}
