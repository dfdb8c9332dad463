// internal/app/system/txn/txn.go
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Run executes fn inside a multi-document transaction. When the deployment
// cannot run transactions (standalone server, some DocumentDB versions) fn is
// run once more without one and a warning is logged; writes are then applied
// one at a time.
//
// fn may be invoked more than once (the driver retries transient commit
// errors), so it must not carry side effects outside the database.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn func(ctx context.Context) error) error {
	if log == nil {
		log = zap.NewNop()
	}
	sess, err := db.Client().StartSession()
	if err != nil {
		if IsNotSupported(err) {
			log.Warn("transactions unavailable; running without", zap.Error(err))
			return fn(ctx)
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		log.Warn("transactions unavailable; running without", zap.Error(err))
		return fn(ctx)
	}
	return err
}

// Active reports whether ctx carries a session, i.e. fn is running inside
// the transaction rather than on the fallback path.
func Active(ctx context.Context) bool {
	return mongo.SessionFromContext(ctx) != nil
}

// IsNotSupported reports whether err means the server cannot run
// multi-document transactions.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, // IllegalOperation
			51,  // not a replica set member (older servers)
			263: // OperationNotSupportedInTransaction
			return true
		}
	}
	s := strings.ToLower(err.Error())
	has := func(a, b string) bool { return strings.Contains(s, a) && strings.Contains(s, b) }
	return has("transaction", "replica set") ||
		has("session", "not supported") ||
		has("transaction", "session") ||
		has("illegal operation", "")
}
