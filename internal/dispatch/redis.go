package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zulandar/semaphore/internal/scale"
)

// RedisDispatcher pushes tokens with LPUSH, the end of the list opposite to
// where the autoscaler pops.
type RedisDispatcher struct {
	client  redis.UniversalClient
	list    string
	timeout time.Duration
}

// NewRedisDispatcher returns a dispatcher pushing onto list. A zero timeout
// leaves the deadline to the caller's context and the client's socket
// timeouts.
func NewRedisDispatcher(client redis.UniversalClient, list string, timeout time.Duration) *RedisDispatcher {
	return &RedisDispatcher{client: client, list: list, timeout: timeout}
}

// Dispatch appends sig.Token and returns the resulting list length.
func (d *RedisDispatcher) Dispatch(ctx context.Context, sig scale.Signal) (Result, error) {
	if sig.Token == "" {
		return Result{}, &Error{Kind: KindUnexpected, Backend: "redis", Err: fmt.Errorf("empty token")}
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	n, err := d.client.LPush(ctx, d.list, sig.Token).Result()
	if err != nil {
		return Result{}, &Error{Kind: classify(err), Backend: "redis", Err: err}
	}
	return Result{Accepted: true, QueueDepth: n}, nil
}
