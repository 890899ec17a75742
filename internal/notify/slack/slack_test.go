package slack

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/semaphore/internal/notify"
)

// --- Mock Slack client ---

type mockSlackClient struct {
	mu       sync.Mutex
	posted   []string
	errs     []error // returned in order, then nil
	attempts int
}

func (m *mockSlackClient) PostMessageContext(_ context.Context, channelID string, _ ...slackapi.MsgOption) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return "", "", err
	}
	m.posted = append(m.posted, channelID)
	return channelID, "1234567890.123456", nil
}

func testEvent() notify.Event {
	return notify.Event{CapacityUnits: 20, ExpiresAt: time.Now().Add(time.Hour), Token: "20#2026-03-01T11:30:15", QueueDepth: 1}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{ChannelID: "C1"}); err == nil || !strings.Contains(err.Error(), "bot token") {
		t.Errorf("err = %v, want bot token error", err)
	}
	if _, err := New(Opts{BotToken: "xoxb-1"}); err == nil || !strings.Contains(err.Error(), "channel") {
		t.Errorf("err = %v, want channel error", err)
	}
	n, err := New(Opts{BotToken: "xoxb-1", ChannelID: "C1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := n.client.(*slackapi.Client); !ok {
		t.Errorf("client = %T, want *slack.Client", n.client)
	}
}

func TestNotify_PostsToChannel(t *testing.T) {
	mock := &mockSlackClient{}
	n, err := New(Opts{ChannelID: "C123", Client: mock})
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(mock.posted) != 1 || mock.posted[0] != "C123" {
		t.Errorf("posted = %v, want [C123]", mock.posted)
	}
}

func TestNotify_RetriesRateLimit(t *testing.T) {
	mock := &mockSlackClient{errs: []error{&slackapi.RateLimitedError{RetryAfter: time.Millisecond}}}
	n, _ := New(Opts{ChannelID: "C123", Client: mock})
	if err := n.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if mock.attempts != 2 {
		t.Errorf("attempts = %d, want 2", mock.attempts)
	}
}

func TestNotify_NonRateLimitErrorNotRetried(t *testing.T) {
	mock := &mockSlackClient{errs: []error{errors.New("channel_not_found")}}
	n, _ := New(Opts{ChannelID: "C123", Client: mock})
	err := n.Notify(context.Background(), testEvent())
	if err == nil || !strings.Contains(err.Error(), "slack: post message") {
		t.Errorf("err = %v, want wrapped post error", err)
	}
	if mock.attempts != 1 {
		t.Errorf("attempts = %d, want 1", mock.attempts)
	}
}

func TestRetryOnRateLimit_GivesUp(t *testing.T) {
	calls := 0
	err := retryOnRateLimit(context.Background(), func() error {
		calls++
		return &slackapi.RateLimitedError{RetryAfter: time.Millisecond}
	})
	if err == nil {
		t.Fatal("expected error after retries")
	}
	if calls != maxRetries+1 {
		t.Errorf("calls = %d, want %d", calls, maxRetries+1)
	}
}

func TestRetryOnRateLimit_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retryOnRateLimit(ctx, func() error {
		return &slackapi.RateLimitedError{RetryAfter: time.Hour}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBuildMessageOptions(t *testing.T) {
	opts := buildMessageOptions(notify.Format(testEvent()))
	if len(opts) != 2 {
		t.Errorf("len(options) = %d, want 2", len(opts))
	}
}
