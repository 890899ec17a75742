// Package signal ties the scale encoder, dispatcher and notifier together
// into the scale-out operation shared by the API, the CLI and schedules.
package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zulandar/semaphore/internal/dispatch"
	"github.com/zulandar/semaphore/internal/notify"
	"github.com/zulandar/semaphore/internal/scale"
)

// Origin identifies who asked for a scale-out.
type Origin struct {
	Source    string // "api", "cli", "schedule:<name>"
	Requester string
}

// Outcome is a fully encoded and dispatched signal.
type Outcome struct {
	Signal scale.Signal
	Result dispatch.Result
}

// Requester is satisfied by *Service; schedulers and handlers depend on it.
type Requester interface {
	Request(ctx context.Context, req scale.Request, origin Origin) (Outcome, error)
}

// Service runs encode, dispatch and notify for one request.
type Service struct {
	Encoder    *scale.Encoder
	Dispatcher dispatch.Dispatcher
	Notifier   notify.Notifier // optional
	Logger     *slog.Logger    // optional
}

// Request encodes req and dispatches the resulting token. Errors are either
// a *scale.ValidationError (nothing was dispatched) or a *dispatch.Error.
// Notification failures are logged and never fail the request.
func (s *Service) Request(ctx context.Context, req scale.Request, origin Origin) (Outcome, error) {
	logger := s.logger().With("op", "scale_out", "source", origin.Source, "requester", origin.Requester)

	sig, err := s.Encoder.Encode(req)
	if err != nil {
		var ve *scale.ValidationError
		if errors.As(err, &ve) {
			logger.Warn("scale request rejected", "field", ve.Field, "reason", ve.Message)
		} else {
			logger.Error("scale request could not be encoded", "err", err)
		}
		return Outcome{}, fmt.Errorf("signal: encode: %w", err)
	}
	logger = logger.With("token", sig.Token, "capacity_units", sig.CapacityUnits, "hours", sig.Hours)

	res, err := s.Dispatcher.Dispatch(ctx, sig)
	if err != nil {
		logger.Error("scale signal dispatch failed", "kind", dispatch.KindOf(err), "err", err)
		return Outcome{}, fmt.Errorf("signal: dispatch: %w", err)
	}
	logger.Info("scale signal dispatched", "queue_depth", res.QueueDepth, "expires_at", sig.ExpiresAtString())

	if s.Notifier != nil {
		evt := notify.Event{
			Source:        origin.Source,
			Requester:     origin.Requester,
			CapacityUnits: sig.CapacityUnits,
			Level:         sig.Level,
			ExpiresAt:     sig.ExpiresAt,
			Token:         sig.Token,
			QueueDepth:    res.QueueDepth,
		}
		if err := s.Notifier.Notify(ctx, evt); err != nil {
			logger.Warn("scale notification failed", "err", err)
		}
	}

	return Outcome{Signal: sig, Result: res}, nil
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
