package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultRedisQueue is the list lead events are pushed onto.
const DefaultRedisQueue = "leadtrack:lead_events"

// listPusher is the part of *redis.Client the notifier uses.
type listPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisNotifier LPUSHes a LeadCreated event for an external worker.
type RedisNotifier struct {
	rdb   listPusher
	queue string
	now   func() time.Time
}

func NewRedisNotifier(rdb listPusher, queue string) *RedisNotifier {
	if queue == "" {
		queue = DefaultRedisQueue
	}
	return &RedisNotifier{rdb: rdb, queue: queue, now: time.Now}
}

func (n *RedisNotifier) OnLeadCreated(ctx context.Context, leadID primitive.ObjectID, name string) error {
	body, err := json.Marshal(newLeadCreated(leadID, name, n.now()))
	if err != nil {
		return fmt.Errorf("marshal lead event: %w", err)
	}
	if err := n.rdb.LPush(ctx, n.queue, body).Err(); err != nil {
		return fmt.Errorf("push lead event to %s: %w", n.queue, err)
	}
	return nil
}
