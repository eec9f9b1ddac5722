package snapshot

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler exports a snapshot every Interval until its context ends.
type Scheduler struct {
	Exporter *Exporter
	UserID   string
	Interval time.Duration
}

// Run blocks until ctx is cancelled. Export failures are logged and retried
// on the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.Exporter.init()
	log := s.Exporter.Logger

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Exporter.Export(ctx, s.UserID); err != nil {
				log.Error("scheduled snapshot failed", zap.Error(err))
			}
		}
	}
}
