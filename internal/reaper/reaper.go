// Package reaper runs the background maintenance loops: periodic lock
// expiry and the startup orphan sweep.
package reaper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wikora/wikora/internal/service"
)

// DefaultInterval is the lock expiry poll period; the contract bounds it
// at ten seconds.
const DefaultInterval = 5 * time.Second

// Reaper drives the maintenance schedule.
type Reaper struct {
	svc      *service.Service
	interval time.Duration
	log      *logrus.Entry
}

// New builds a reaper. A zero or out-of-bounds interval falls back to the
// default.
func New(svc *service.Service, interval time.Duration, log *logrus.Logger) *Reaper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if interval <= 0 || interval > 10*time.Second {
		interval = DefaultInterval
	}
	return &Reaper{
		svc:      svc,
		interval: interval,
		log:      log.WithField("component", "reaper"),
	}
}

// Run sweeps orphans once, then polls for expired locks until ctx ends.
func (r *Reaper) Run(ctx context.Context) error {
	if err := r.svc.SweepAssets(); err != nil {
		r.log.WithError(err).Warn("startup orphan sweep failed")
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.svc.ReapExpired(ctx); err != nil {
				r.log.WithError(err).Warn("lock reap failed")
			}
		}
	}
}
