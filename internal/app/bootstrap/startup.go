// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/leadtrack/internal/app/system/notify"
	"github.com/dalemusser/leadtrack/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It
// applies the configured store timeouts, declares the AMQP exchange when
// that backend is on, starts the audit prune worker and logs the import
// settings in effect.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.AMQPChannel != nil {
		if err := notify.DeclareTopology(deps.AMQPChannel, appCfg.AMQPExchange); err != nil {
			logger.Error("declare AMQP topology failed", zap.Error(err))
			return err
		}
	}

	timeouts.Configure(appCfg.Timeouts)
	t := timeouts.Current()
	logger.Info("store timeouts configured",
		zap.Duration("ping", t.Ping),
		zap.Duration("short", t.Short),
		zap.Duration("medium", t.Medium),
		zap.Duration("long", t.Long),
		zap.Duration("batch", t.Batch))

	if deps.AuditPrune != nil {
		deps.AuditPrune.Start()
	}

	logger.Info("lead import configured",
		zap.Int("batch_size", appCfg.ImportBatchSize),
		zap.Int("batch_concurrency", appCfg.ImportBatchConcurrency),
		zap.Int("max_rows", appCfg.ImportMaxRows),
		zap.String("default_relationship", appCfg.ImportDefaultRelationship),
		zap.Strings("notify_backends", appCfg.NotifyBackends),
		zap.Duration("followup_delay", appCfg.FollowUpDelay))
	return nil
}
