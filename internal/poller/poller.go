package poller

import (
	"context"
	"time"

	"bookwatch/logger"
)

// Refresher is the part of the session the poller drives.
type Refresher interface {
	Refresh(ctx context.Context) bool
	RefreshNow(ctx context.Context) bool
}

// Poller refreshes on a fixed interval and on demand. Both paths run on the
// same goroutine so refreshes it starts never overlap.
type Poller struct {
	target   Refresher
	interval time.Duration
	trigger  chan struct{}
	log      *logger.Log
}

func New(target Refresher, interval time.Duration, log *logger.Log) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Poller{
		target:   target,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		log:      log,
	}
}

// Trigger requests an immediate refresh. Requests made while one is pending
// collapse into it.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run refreshes once immediately and then on every interval tick until ctx is
// cancelled.
func (p *Poller) Run(ctx context.Context) {
	log := p.log.WithComponent("poller").WithFields(logger.Fields{"interval": p.interval.String()})
	log.Info("starting poller")

	p.target.Refresh(ctx)

	now := time.Now()
	timer := time.NewTimer(now.Truncate(p.interval).Add(p.interval).Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("poller stopped due to context cancellation")
			return
		case <-p.trigger:
			log.Debug("manual refresh")
			p.target.RefreshNow(ctx)
		case <-timer.C:
			start := time.Now()
			p.target.Refresh(ctx)
			duration := time.Since(start)

			if duration > p.interval {
				log.WithFields(logger.Fields{
					"duration_ms": duration.Milliseconds(),
				}).Warn("refresh took longer than interval")
			}

			timer.Reset(time.Until(time.Now().Truncate(p.interval).Add(p.interval)))
		}
	}
}
