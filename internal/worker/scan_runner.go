package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/consult-api/internal/service/scanner"
	"github.com/jwalitptl/consult-api/pkg/logger"
)

// Scanner is the part of scanner.Service the runner drives.
type Scanner interface {
	Reminders(ctx context.Context, now time.Time) (*scanner.Result, error)
	LicenseExpiry(ctx context.Context, now time.Time) (*scanner.Result, error)
}

// ScanRunner runs the reminder and license scans on a fixed interval.
// Re-running within a day is harmless because scan events are deduplicated.
type ScanRunner struct {
	scanner  Scanner
	interval time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

func NewScanRunner(s Scanner, interval time.Duration, log *logger.Logger) *ScanRunner {
	return &ScanRunner{
		scanner:  s,
		interval: interval,
		logger:   log,
		now:      time.Now,
	}
}

// Start scans once immediately, then on every tick until ctx is done.
func (w *ScanRunner) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Starting scan runner", "interval", w.interval.String())
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down scan runner")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs both scans; a failure in one does not skip the other.
func (w *ScanRunner) RunOnce(ctx context.Context) {
	now := w.now()

	if res, err := w.scanner.Reminders(ctx, now); err != nil {
		w.logger.Error(err, "Reminder scan failed")
	} else if res.Err != nil {
		w.logger.Error(res.Err, "Reminder scan finished with errors", "failed", res.Failed)
	}

	if res, err := w.scanner.LicenseExpiry(ctx, now); err != nil {
		w.logger.Error(err, "License expiry scan failed")
	} else if res.Err != nil {
		w.logger.Error(res.Err, "License expiry scan finished with errors", "failed", res.Failed)
	}
}
