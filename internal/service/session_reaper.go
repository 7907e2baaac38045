package service

import (
	"context"
	"time"
)

// RunSessionReaper drops idle sessions until ctx is done. It returns
// immediately when idle expiry is disabled.
func (s *Service) RunSessionReaper(ctx context.Context) {
	ttl := s.config.SessionIdleTimeout()
	if ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepIdleSessions(ttl)
		}
	}
}

// sweepIdleSessions removes sessions unused for longer than ttl and returns
// how many were removed. Sessions with a turn in flight are skipped.
func (s *Service) sweepIdleSessions(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if !sess.lastActive.Before(cutoff) {
			continue
		}
		if !sess.mu.TryLock() {
			continue
		}
		delete(s.sessions, id)
		sess.mu.Unlock()
		removed++
		s.logger.Info("session expired", "session_id", id)
	}
	return removed
}
