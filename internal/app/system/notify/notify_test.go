package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/leadtrack/internal/domain/models"
	"github.com/dalemusser/leadtrack/internal/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTaskNotifier_StartsFollowUpCycle(t *testing.T) {
	lead := testutil.NewLead("Jo", "jo@x.com")
	store := testutil.NewMemStore(lead)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	n := NewTaskNotifier(store, store, 0)
	n.now = func() time.Time { return fixed }

	require.NoError(t, n.OnLeadCreated(t.Context(), lead.ID, lead.Name))

	tasks := store.Tasks()
	require.Len(t, tasks, 1)
	tk := tasks[0]
	assert.Equal(t, lead.ID, tk.LeadID)
	assert.Equal(t, "Jo", tk.LeadName)
	assert.Equal(t, FollowUpDescription, tk.Description)
	assert.Equal(t, models.TaskInteractive, tk.Nature)
	assert.False(t, tk.Completed)
	require.NotNil(t, tk.DueDate)
	assert.Equal(t, fixed.Add(24*time.Hour), *tk.DueDate)

	got, _ := store.Lead(lead.ID)
	assert.Equal(t, 1, got.AFCStep)
}

func TestTaskNotifier_CreateFailure(t *testing.T) {
	lead := testutil.NewLead("Jo", "jo@x.com")
	store := testutil.NewMemStore(lead)
	store.FailCreate = errors.New("disk full")

	err := NewTaskNotifier(store, store, time.Hour).OnLeadCreated(t.Context(), lead.ID, lead.Name)
	require.Error(t, err)

	got, _ := store.Lead(lead.ID)
	assert.Zero(t, got.AFCStep, "step only advances once the task exists")
}

type fakeRedis struct {
	key    string
	values []interface{}
	err    error
}

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.key = key
	f.values = values
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestRedisNotifier(t *testing.T) {
	fr := &fakeRedis{}
	n := NewRedisNotifier(fr, "")
	id := primitive.NewObjectID()

	require.NoError(t, n.OnLeadCreated(t.Context(), id, "Jo"))
	assert.Equal(t, DefaultRedisQueue, fr.key)
	require.Len(t, fr.values, 1)

	var evt LeadCreated
	require.NoError(t, json.Unmarshal(fr.values[0].([]byte), &evt))
	assert.Equal(t, EventLeadCreated, evt.Type)
	assert.Equal(t, id.Hex(), evt.LeadID)
	assert.Equal(t, "Jo", evt.LeadName)
	assert.NotEmpty(t, evt.ID)

	fr.err = errors.New("connection reset")
	assert.Error(t, n.OnLeadCreated(t.Context(), id, "Jo"))
}

type fakeChannel struct {
	exchange, key string
	msg           amqp.Publishing
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil
}

func TestAMQPNotifier(t *testing.T) {
	ch := &fakeChannel{}
	n := NewAMQPNotifier(ch, "", "")
	id := primitive.NewObjectID()

	require.NoError(t, n.OnLeadCreated(t.Context(), id, "Jo"))
	assert.Equal(t, DefaultExchange, ch.exchange)
	assert.Equal(t, DefaultRoutingKey, ch.key)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, "application/json", ch.msg.ContentType)

	var evt LeadCreated
	require.NoError(t, json.Unmarshal(ch.msg.Body, &evt))
	assert.Equal(t, id.Hex(), evt.LeadID)
	assert.Equal(t, evt.ID, ch.msg.MessageId)
}

type countingNotifier struct {
	n   int
	err error
}

func (c *countingNotifier) OnLeadCreated(context.Context, primitive.ObjectID, string) error {
	c.n++
	return c.err
}

func TestMulti_CallsAllAndJoinsErrors(t *testing.T) {
	a := &countingNotifier{err: errors.New("a down")}
	b := &countingNotifier{}
	c := &countingNotifier{err: errors.New("c down")}

	err := Multi{a, b, c}.OnLeadCreated(t.Context(), primitive.NewObjectID(), "Jo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a down")
	assert.Contains(t, err.Error(), "c down")
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
	assert.Equal(t, 1, c.n)

	assert.NoError(t, Multi{b}.OnLeadCreated(t.Context(), primitive.NewObjectID(), "Jo"))
}

func TestParseBackends(t *testing.T) {
	got, err := ParseBackends(" Task, redis ,,task,AMQP")
	require.NoError(t, err)
	assert.Equal(t, []string{"task", "redis", "amqp"}, got)

	got, err = ParseBackends("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseBackends("task,sms")
	assert.Error(t, err)
}
