// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/leadtrack/internal/app/system/ratelimit"
	"github.com/dalemusser/leadtrack/internal/app/system/workers"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
// Redis and the AMQP connection are nil unless their notify backend is on.
// Connect used by leadctl never starts background workers.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	Redis *redis.Client

	AMQPConn    *amqp.Connection
	AMQPChannel *amqp.Channel

	// AuditPrune is set by ConnectDB when audit_retention is positive.
	AuditPrune *workers.AuditPrune

	// ImportLimiter is set by ConnectDB when import_rate_limit is positive.
	// Shutdown stops its cleanup loop.
	ImportLimiter *ratelimit.Limiter
}
