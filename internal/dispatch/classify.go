package dispatch

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"

	"github.com/redis/go-redis/v9"
)

// classify maps a Redis client error onto a Kind. Timeouts are checked
// first so a dial that times out is reported as a timeout.
func classify(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, redis.ErrPoolTimeout) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindTransportUnavailable
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return KindTransportUnavailable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindTransportUnavailable
	}

	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		return KindTransportError
	}
	return KindUnexpected
}
