package recent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"contractWatch/internal/metrics"
	"contractWatch/internal/storage"
)

// DefaultSnapshotInterval is the snapshot period when none is configured.
const DefaultSnapshotInterval = 5 * time.Second

// Snapshotter periodically persists a Log.
type Snapshotter struct {
	log      *Log
	store    storage.SnapshotStore
	interval time.Duration
	logger   *zap.Logger

	saved uint64
}

func NewSnapshotter(log *Log, store storage.SnapshotStore, interval time.Duration, logger *zap.Logger) *Snapshotter {
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshotter{log: log, store: store, interval: interval, logger: logger}
}

// Restore loads the persisted snapshot into the log.
func (s *Snapshotter) Restore(ctx context.Context) error {
	entries, err := s.store.LoadRecentEvents(ctx)
	if err != nil {
		return err
	}
	s.log.Restore(entries)
	_, s.saved = s.log.Snapshot()
	s.logger.Info("recent events restored", zap.Int("entries", s.log.Len()))
	return nil
}

// Run saves on every tick when the log changed, and once more when ctx ends.
func (s *Snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.Flush(flushCtx)
			return nil
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

// Flush writes the current contents if they changed since the last write.
func (s *Snapshotter) Flush(ctx context.Context) bool {
	entries, version := s.log.Snapshot()
	if version == s.saved {
		return false
	}
	if err := s.store.SaveRecentEvents(ctx, entries); err != nil {
		metrics.SnapshotFailures.Inc()
		s.logger.Warn("save recent events failed", zap.Error(err))
		return false
	}
	s.saved = version
	s.logger.Debug("recent events saved", zap.Int("entries", len(entries)))
	return true
}
