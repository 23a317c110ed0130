package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultSweepInterval   = time.Hour
	DefaultRecordRetention = 30 * 24 * time.Hour
	DefaultMinRetention    = 0.1
	sweepTimeout           = 30 * time.Second
)

type RetentionConfig struct {
	Interval time.Duration
	// MaxAge is how long a record is kept regardless of its weight.
	MaxAge time.Duration
	// MinWeight keeps older records whose peak-end retention weight is at
	// least this high.
	MinWeight float64
}

func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Interval:  DefaultSweepInterval,
		MaxAge:    DefaultRecordRetention,
		MinWeight: DefaultMinRetention,
	}
}

// RetentionSweeper periodically forgets old, unremarkable memory records.
// The most intense and the most recent outcomes of each belief carry a
// high retention weight and survive the sweep.
type RetentionSweeper struct {
	records domain.MemoryRecordStore
	cfg     RetentionConfig
	logger  *zap.Logger
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewRetentionSweeper(records domain.MemoryRecordStore, cfg RetentionConfig, logger *zap.Logger) *RetentionSweeper {
	def := DefaultRetentionConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	return &RetentionSweeper{
		records: records,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Start runs the sweep on a periodic schedule in a background goroutine.
func (s *RetentionSweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		s.logger.Info("memory retention sweeper started",
			zap.Duration("interval", s.cfg.Interval),
			zap.Duration("max_age", s.cfg.MaxAge),
		)
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
				_, _ = s.Sweep(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("memory retention sweeper stopped")
				return
			}
		}
	}()
}

func (s *RetentionSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Sweep removes records older than MaxAge with a weight below MinWeight.
func (s *RetentionSweeper) Sweep(ctx context.Context) (int64, error) {
	removed, err := s.records.Prune(ctx, s.now().Add(-s.cfg.MaxAge), s.cfg.MinWeight)
	if err != nil {
		s.logger.Error("failed to prune memory records", zap.Error(err))
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("pruned memory records", zap.Int64("count", removed))
	}
	return removed, nil
}
