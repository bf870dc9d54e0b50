package remote

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/jacentio/arbor/store"
)

// DefaultInterval is the minimum delay between two fetcher invocations.
const DefaultInterval = 500 * time.Millisecond

type throttled struct {
	next    Fetcher
	limiter *rate.Limiter
}

// Throttle wraps f so that consecutive invocations are at least interval
// apart. A zero interval uses DefaultInterval; a negative one disables the
// gate.
func Throttle(f Fetcher, interval time.Duration) Fetcher {
	if interval == 0 {
		interval = DefaultInterval
	}
	if interval < 0 {
		return f
	}
	return &throttled{next: f, limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (t *throttled) FetchByIDs(ctx context.Context, ptrs []store.Pointer) (store.RecordMap, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.FetchByIDs(ctx, ptrs)
}

func (t *throttled) QueryChildren(ctx context.Context, parentID string, kind store.Kind) (store.RecordMap, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.QueryChildren(ctx, parentID, kind)
}
