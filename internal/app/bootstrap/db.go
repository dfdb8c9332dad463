// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/leadtrack/internal/app/store/audit"
	"github.com/dalemusser/leadtrack/internal/app/system/indexes"
	"github.com/dalemusser/leadtrack/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// EnsureSchema installs the collection validators, then the indexes,
// including the audit trail's.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := validators.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		logger.Error("ensure collection validators failed", zap.Error(err))
		return err
	}
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		logger.Error("ensure indexes failed", zap.Error(err))
		return err
	}
	if err := audit.New(deps.MongoDatabase).EnsureIndexes(ctx); err != nil {
		logger.Error("ensure audit indexes failed", zap.Error(err))
		return err
	}
	logger.Info("schema ensured")
	return nil
}
