// internal/app/system/workers/auditprune.go
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pruner deletes audit events older than a cutoff.
type Pruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditPrune is a background worker that drops audit events past their
// retention period.
type AuditPrune struct {
	store     Pruner
	log       *zap.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewAuditPrune creates a new audit prune worker.
//
// Parameters:
//   - store: the audit store
//   - logger: zap logger for logging
//   - interval: how often to run the prune (e.g., 1 hour)
//   - retention: how long an event is kept (e.g., 90 days)
func NewAuditPrune(store Pruner, logger *zap.Logger, interval, retention time.Duration) *AuditPrune {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditPrune{
		store:     store,
		log:       logger,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background prune loop.
func (w *AuditPrune) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("audit prune worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("retention", w.retention))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *AuditPrune) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("audit prune worker stopped")
}

func (w *AuditPrune) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.prune()
		}
	}
}

// prune runs one pass and returns the number of events removed.
func (w *AuditPrune) prune() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := w.now().UTC().Add(-w.retention)
	count, err := w.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		w.log.Error("failed to prune audit events", zap.Error(err))
		return 0
	}

	if count > 0 {
		w.log.Info("pruned audit events", zap.Int64("count", count), zap.Time("cutoff", cutoff))
	}
	return count
}
