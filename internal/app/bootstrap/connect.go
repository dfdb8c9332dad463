// internal/app/bootstrap/connect.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/leadtrack/internal/app/store/audit"
	"github.com/dalemusser/leadtrack/internal/app/system/notify"
	"github.com/dalemusser/leadtrack/internal/app/system/ratelimit"
	"github.com/dalemusser/leadtrack/internal/app/system/timeouts"
	"github.com/dalemusser/leadtrack/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB opens MongoDB and, when their notify backends are enabled, the
// Redis and AMQP clients. Anything opened before a failure is closed again.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	deps, err := Connect(ctx, appCfg, logger)
	if err != nil {
		return deps, err
	}
	if appCfg.AuditRetention > 0 {
		deps.AuditPrune = workers.NewAuditPrune(audit.New(deps.MongoDatabase), logger, time.Hour, appCfg.AuditRetention)
	}
	if appCfg.ImportRateLimit > 0 {
		deps.ImportLimiter = ratelimit.New(appCfg.ImportRateLimit, time.Minute)
	}
	return deps, nil
}

// Connect is ConnectDB without the WAFFLE core config, for leadctl.
func Connect(ctx context.Context, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	var deps DBDeps

	client, err := connectMongo(ctx, appCfg)
	if err != nil {
		logger.Error("mongo connect failed", zap.Error(err))
		return DBDeps{}, err
	}
	deps.MongoClient = client
	deps.MongoDatabase = client.Database(appCfg.MongoDatabase)
	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))

	if appCfg.notifies(notify.BackendRedis) {
		rdb, err := connectRedis(ctx, appCfg.RedisURL)
		if err != nil {
			logger.Error("redis connect failed", zap.Error(err))
			closeDeps(ctx, deps, logger)
			return DBDeps{}, err
		}
		deps.Redis = rdb
		logger.Info("connected to Redis", zap.String("queue", appCfg.RedisQueue))
	}

	if appCfg.notifies(notify.BackendAMQP) {
		conn, err := amqp.Dial(appCfg.AMQPURL)
		if err != nil {
			logger.Error("amqp dial failed", zap.Error(err))
			closeDeps(ctx, deps, logger)
			return DBDeps{}, fmt.Errorf("amqp dial: %w", err)
		}
		deps.AMQPConn = conn
		ch, err := conn.Channel()
		if err != nil {
			logger.Error("amqp channel failed", zap.Error(err))
			closeDeps(ctx, deps, logger)
			return DBDeps{}, fmt.Errorf("amqp channel: %w", err)
		}
		deps.AMQPChannel = ch
		logger.Info("connected to AMQP broker", zap.String("exchange", appCfg.AMQPExchange))
	}

	return deps, nil
}

func connectMongo(ctx context.Context, appCfg AppConfig) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(appCfg.MongoURI)
	if appCfg.MongoMaxPoolSize > 0 {
		opts.SetMaxPoolSize(appCfg.MongoMaxPoolSize)
	}
	if appCfg.MongoMinPoolSize > 0 {
		opts.SetMinPoolSize(appCfg.MongoMinPoolSize)
	}

	cctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()

	client, err := mongo.Connect(cctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(cctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	pctx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
