package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/store"
)

// SweepResult counts what one housekeeping pass removed.
type SweepResult struct {
	Blacklist     int64
	RefreshStates int64
}

// HousekeepingService periodically removes expired blacklist entries and
// refresh states so neither table grows without bound.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration
	Now      func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. A non-positive
// interval defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    store,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the sweeper in the background. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) cleanup() {
	res, err := s.RunOnce(context.Background())
	if err != nil {
		s.Logger.Error("housekeeping sweep failed", "error", err)
	}
	s.Logger.Info("housekeeping sweep completed",
		"blacklist_removed", res.Blacklist,
		"refresh_states_removed", res.RefreshStates,
	)
}

// RunOnce performs a single sweep. The two deletions are independent: a
// failure in one does not skip the other, and both errors are returned.
func (s *HousekeepingService) RunOnce(ctx context.Context) (SweepResult, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	var (
		res  SweepResult
		errs []error
		err  error
	)

	res.Blacklist, err = s.Store.Blacklist().SweepExpired(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep blacklist: %w", err))
	}

	res.RefreshStates, err = s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete expired refresh tokens: %w", err))
	}

	return res, errors.Join(errs...)
}
