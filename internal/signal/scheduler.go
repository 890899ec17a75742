package signal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/semaphore/internal/config"
	"github.com/zulandar/semaphore/internal/scale"
)

// cronParser accepts standard 5-field expressions (minute, hour, dom,
// month, dow) and descriptors such as @hourly.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// requestTimeout bounds one scheduled scale request.
const requestTimeout = time.Minute

// Scheduler fires configured scale requests on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	svc    Requester
	logger *slog.Logger
}

// NewScheduler registers one cron entry per schedule. An invalid expression
// fails the whole set.
func NewScheduler(svc Requester, schedules []config.ScheduleConfig, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithParser(cronParser)),
		svc:    svc,
		logger: logger,
	}
	for i, sc := range schedules {
		name := sc.Name
		if name == "" {
			name = fmt.Sprintf("schedule-%d", i)
		}
		req := scale.Request{Size: sc.ScaleSize, Level: sc.ScaleLevel, Hours: sc.HoursToExpire}
		if _, err := s.cron.AddFunc(sc.Cron, func() { s.run(name, req) }); err != nil {
			return nil, fmt.Errorf("signal: schedule %q: parse cron %q: %w", name, sc.Cron, err)
		}
	}
	return s, nil
}

// Len reports the number of registered schedules.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run(name string, req scale.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	out, err := s.svc.Request(ctx, req, Origin{Source: "schedule:" + name, Requester: name})
	if err != nil {
		s.logger.Error("scheduled scale request failed", "schedule", name, "err", err)
		return
	}
	s.logger.Info("scheduled scale request sent", "schedule", name, "token", out.Signal.Token)
}
