// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown cleanly tears down DB connections and other resources.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.AuditPrune != nil {
		deps.AuditPrune.Stop()
	}
	if deps.ImportLimiter != nil {
		deps.ImportLimiter.Stop()
	}
	return closeDeps(ctx, deps, logger)
}

// closeDeps closes whatever deps holds, brokers first, and returns the
// Mongo disconnect error if any.
func closeDeps(ctx context.Context, deps DBDeps, logger *zap.Logger) error {
	if deps.AMQPChannel != nil {
		if err := deps.AMQPChannel.Close(); err != nil {
			logger.Warn("AMQP channel close failed", zap.Error(err))
		}
	}
	if deps.AMQPConn != nil {
		logger.Info("closing AMQP connection")
		if err := deps.AMQPConn.Close(); err != nil {
			logger.Warn("AMQP connection close failed", zap.Error(err))
		}
	}
	if deps.Redis != nil {
		logger.Info("closing Redis client")
		if err := deps.Redis.Close(); err != nil {
			logger.Warn("Redis close failed", zap.Error(err))
		}
	}
	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
