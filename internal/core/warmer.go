package core

import (
	"context"
	"time"
)

// StartWarmer reloads the snapshot every interval so visitors rarely pay
// for a cold load. It loads once immediately and returns when ctx ends.
// A failed reload is logged; the next tick tries again.
func (s *Service) StartWarmer(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	log := s.log.With("job", "warmer")
	log.Info("cache warmer started", "interval", interval.String())

	s.warm(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("cache warmer stopped")
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				log.Warn("cache invalidation failed", "error", err)
			}
			s.warm(ctx)
		}
	}
}

// warm runs one load cycle.
func (s *Service) warm(ctx context.Context) {
	start := s.now()
	snap := s.Snapshot(ctx)
	if snap.Failed() {
		s.log.Warn("warm load failed", "error", snap.Err)
		return
	}
	s.log.Debug("cache warmed",
		"snapshot_id", snap.ID,
		"records", snap.Dataset.Len(),
		"duration_ms", s.now().Sub(start).Milliseconds(),
	)
}
