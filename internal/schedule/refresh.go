// Package schedule runs periodic gallery refreshes so that images added or
// removed outside the API are picked up without a restart.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Rebuilder rebuilds the gallery from storage.
type Rebuilder interface {
	RebuildGallery(ctx context.Context) error
}

// RebuilderFunc adapts a function to the Rebuilder interface.
type RebuilderFunc func(ctx context.Context) error

// RebuildGallery calls f.
func (f RebuilderFunc) RebuildGallery(ctx context.Context) error { return f(ctx) }

// Refresher triggers a rebuild on a fixed interval. Runs never overlap.
type Refresher struct {
	scheduler *gocron.Scheduler
	cancel    context.CancelFunc
	log       *slog.Logger
}

// NewRefresher schedules rebuilder every interval. The first run happens one
// interval after Start.
func NewRefresher(rebuilder Rebuilder, interval time.Duration, logger *slog.Logger) (*Refresher, error) {
	if interval <= 0 {
		return nil, errors.New("refresh interval must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Refresher{
		scheduler: gocron.NewScheduler(time.UTC),
		cancel:    cancel,
		log:       logger.With("component", "refresher"),
	}

	_, err := r.scheduler.Every(interval).SingletonMode().WaitForSchedule().Do(func() {
		start := time.Now()
		if err := rebuilder.RebuildGallery(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Error("scheduled gallery refresh failed", "error", err)
			return
		}
		r.log.Debug("scheduled gallery refresh done", "duration", time.Since(start))
	})
	if err != nil {
		cancel()
		return nil, err
	}
	return r, nil
}

// Start begins running the schedule in the background.
func (r *Refresher) Start() {
	r.scheduler.StartAsync()
}

// Stop cancels a running refresh and stops the schedule.
func (r *Refresher) Stop() {
	r.cancel()
	r.scheduler.Stop()
}
