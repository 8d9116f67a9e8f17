package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/store"
)

// HousekeepingService periodically deletes expired refresh tokens and
// stale throttle counters so neither table grows without bound. Request
// paths already tolerate both (expired tokens are rejected on use, stale
// counters ignored), so the sweep is purely best effort.
type HousekeepingService struct {
	Store          store.Store
	Logger         *slog.Logger
	Interval       time.Duration
	ThrottleWindow time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates the sweep worker. If interval is 0 or
// negative, defaults to 1 hour.
func NewHousekeepingService(
	s store.Store,
	logger *slog.Logger,
	interval, throttleWindow time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if throttleWindow <= 0 {
		throttleWindow = DefaultThrottleConfig().Window
	}

	return &HousekeepingService{
		Store:          s,
		Logger:         logger,
		Interval:       interval,
		ThrottleWindow: throttleWindow,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop() to
// gracefully shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop shuts down the worker, blocking until any in-progress sweep has
// finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Sweep immediately on startup
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep performs the deletions. Each is independent; one failing does not
// stop the others.
func (s *HousekeepingService) sweep() {
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
	}

	if err := s.Store.LoginThrottles().DeleteStaleThrottles(ctx, now.Add(-s.ThrottleWindow)); err != nil {
		s.Logger.Error("failed to delete stale throttle counters", "error", err)
	}

	s.Logger.Debug("housekeeping sweep completed")
}
