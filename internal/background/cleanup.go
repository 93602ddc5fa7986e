package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/pagebuilder-identity/internal/metrics"
)

// CleanupTask deletes stale rows from one table and reports how many went
type CleanupTask struct {
	Table string
	Run   func(ctx context.Context) (int64, error)
}

// CleanupManager periodically removes expired OTP records and stale rate
// limit windows. Verification never depends on it: expired records are
// rejected on read.
type CleanupManager struct {
	tasks    []CleanupTask
	metrics  *metrics.Metrics
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(tasks []CleanupTask, m *metrics.Metrics, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		tasks:    tasks,
		metrics:  m,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce runs every task. A failing task does not stop the others.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, task := range cm.tasks {
		rowsDeleted, err := task.Run(cleanupCtx)
		if err != nil {
			cm.logger.Error("cleanup failed",
				slog.String("table", task.Table),
				slog.Any("error", err))
			continue
		}

		cm.metrics.RowsPruned(task.Table, rowsDeleted)
		if rowsDeleted > 0 {
			cm.logger.Info("cleanup completed",
				slog.String("table", task.Table),
				slog.Int64("rows_deleted", rowsDeleted))
		}
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
