package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/zulandar/semaphore/internal/config"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}}, KindTransportUnavailable},
		{"dns", &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "cache.invalid", IsNotFound: true}}, KindTransportUnavailable},
		{"dns timeout", &net.DNSError{Err: "i/o timeout", Name: "cache.internal", IsTimeout: true}, KindTimeout},
		{"deadline", fmt.Errorf("lpush: %w", context.DeadlineExceeded), KindTimeout},
		{"socket deadline", &net.OpError{Op: "read", Net: "tcp", Err: os.ErrDeadlineExceeded}, KindTimeout},
		{"unreachable", &net.OpError{Op: "write", Err: &os.SyscallError{Syscall: "write", Err: syscall.EHOSTUNREACH}}, KindTransportUnavailable},
		{"plain", errors.New("boom"), KindUnexpected},
		{"canceled", context.Canceled, KindUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindTimeout, Backend: "redis", Err: context.DeadlineExceeded})
	if KindOf(err) != KindTimeout {
		t.Errorf("KindOf = %q, want timeout", KindOf(err))
	}
	if KindOf(errors.New("x")) != KindUnexpected {
		t.Error("KindOf(plain error) should be unexpected")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("Error should unwrap to its cause")
	}
}

func TestMessage_DistinctPerKind(t *testing.T) {
	cause := errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")
	seen := make(map[string]Kind)
	for _, k := range []Kind{KindTransportUnavailable, KindTimeout, KindTransportError, KindUnexpected} {
		msg := Message(&Error{Kind: k, Backend: "redis", Err: cause})
		if msg == "" {
			t.Errorf("Message for %s is empty", k)
		}
		if other, dup := seen[msg]; dup {
			t.Errorf("Message for %s duplicates %s", k, other)
		}
		seen[msg] = k
	}
	if !strings.Contains(Message(&Error{Kind: KindTransportError, Err: cause}), "WRONGTYPE") {
		t.Error("transport error message should include the backend reason")
	}
}

func TestNew_Backends(t *testing.T) {
	cfg := &config.Config{
		Redis:    config.RedisConfig{Host: "127.0.0.1", Port: 6379, List: testList},
		Dispatch: config.DispatchConfig{Backend: config.DispatchCLI, Command: []string{"redis-cli", "LPUSH", "{list}", "{token}"}},
	}
	d, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New(cli): %v", err)
	}
	if _, ok := d.(*CLIDispatcher); !ok {
		t.Errorf("New(cli) = %T, want *CLIDispatcher", d)
	}

	cfg.Dispatch.Backend = config.DispatchRedis
	if _, err := New(cfg, nil); err == nil {
		t.Error("New(redis) without client should fail")
	}
	_, client := newTestRedis(t)
	d, err = New(cfg, client)
	if err != nil {
		t.Fatalf("New(redis): %v", err)
	}
	if _, ok := d.(*RedisDispatcher); !ok {
		t.Errorf("New(redis) = %T, want *RedisDispatcher", d)
	}

	cfg.Dispatch.Backend = "kafka"
	if _, err := New(cfg, client); err == nil {
		t.Error("New(kafka) should fail")
	}
}
