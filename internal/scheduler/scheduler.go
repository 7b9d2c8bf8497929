package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/itbi-price-aggregation/internal/itbi"
)

// Refresher reloads the ITBI snapshot.
type Refresher interface {
	Refresh(ctx context.Context) (*itbi.Snapshot, error)
}

// Scheduler periodically refreshes the ITBI snapshot.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler. timeout bounds one whole refresh pass.
func New(interval, timeout time.Duration, refresher Refresher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		refresher: refresher,
		interval:  interval,
		timeout:   timeout,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start schedules the periodic refresh. The first run happens one interval
// after start; the initial load is the caller's job. A non-positive interval
// disables the scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("periodic refresh disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().SingletonMode().Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("periodic refresh scheduled", "interval", s.interval.String())
	return nil
}

func (s *Scheduler) run() {
	s.logger.Info("running snapshot refresh job")

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	snap, err := s.refresher.Refresh(ctx)
	if err != nil {
		s.logger.Error("snapshot refresh failed", "error", err)
		return
	}
	s.logger.Info("snapshot refresh completed", "snapshot", snap.ID, "records", len(snap.Records))
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
