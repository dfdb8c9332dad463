// internal/app/bootstrap/services.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/leadtrack/internal/app/importer"
	"github.com/dalemusser/leadtrack/internal/app/merger"
	"github.com/dalemusser/leadtrack/internal/app/store/audit"
	leadstore "github.com/dalemusser/leadtrack/internal/app/store/leads"
	metricsstore "github.com/dalemusser/leadtrack/internal/app/store/metrics"
	taskstore "github.com/dalemusser/leadtrack/internal/app/store/tasks"
	"github.com/dalemusser/leadtrack/internal/app/system/auditlog"
	"github.com/dalemusser/leadtrack/internal/app/system/metrics"
	"github.com/dalemusser/leadtrack/internal/app/system/notify"
	"go.uber.org/zap"
)

// Services is the wired import and merge engine shared by the HTTP server
// and leadctl.
type Services struct {
	Leads    *leadstore.Store
	Tasks    *taskstore.Store
	Importer *importer.Service
	Merger   *merger.Engine
	Metrics  *metrics.Metrics
	Audit    *auditlog.Logger
	// Events reads the audit trail back; Audit writes to the same store.
	Events *audit.Store
}

// NewServices builds the stores, the notifier chain and both engines on top
// of deps.
func NewServices(appCfg AppConfig, deps DBDeps, logger *zap.Logger) *Services {
	db := deps.MongoDatabase
	leads := leadstore.New(db, logger)
	tasks := taskstore.New(db)

	m := metrics.New(func(ctx context.Context) metricsstore.Counts {
		return metricsstore.FetchLeadCounts(ctx, db)
	})

	exec := importer.NewExecutor(leads, buildNotifier(appCfg, deps, leads, tasks, logger),
		appCfg.ImportBatchSize, appCfg.ImportBatchConcurrency, logger)
	svc := importer.NewService(leads, exec, importer.Config{
		DefaultRelationship: appCfg.ImportDefaultRelationship,
		MaxRows:             appCfg.ImportMaxRows,
	}, m, logger)

	events := audit.New(db)
	trail := auditlog.New(events, logger, auditlog.Config{
		Import: appCfg.AuditLogImport,
		Merge:  appCfg.AuditLogMerge,
	})

	return &Services{
		Leads:    leads,
		Tasks:    tasks,
		Importer: svc,
		Merger:   merger.New(leads, tasks, m, logger),
		Metrics:  m,
		Audit:    trail,
		Events:   events,
	}
}

// buildNotifier returns the enabled backends in configured order, or nil
// when none are enabled.
func buildNotifier(appCfg AppConfig, deps DBDeps, leads *leadstore.Store, tasks *taskstore.Store, logger *zap.Logger) importer.Notifier {
	var chain notify.Multi
	for _, b := range appCfg.NotifyBackends {
		switch b {
		case notify.BackendTask:
			chain = append(chain, notify.NewTaskNotifier(tasks, leads, appCfg.FollowUpDelay))
		case notify.BackendRedis:
			if deps.Redis == nil {
				logger.Warn("redis notify backend enabled without a client; skipping")
				continue
			}
			chain = append(chain, notify.NewRedisNotifier(deps.Redis, appCfg.RedisQueue))
		case notify.BackendAMQP:
			if deps.AMQPChannel == nil {
				logger.Warn("amqp notify backend enabled without a channel; skipping")
				continue
			}
			chain = append(chain, notify.NewAMQPNotifier(deps.AMQPChannel, appCfg.AMQPExchange, appCfg.AMQPRoutingKey))
		}
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}
