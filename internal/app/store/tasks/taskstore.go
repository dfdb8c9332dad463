// internal/app/store/tasks/taskstore.go
package taskstore

import (
	"context"
	"time"

	"github.com/dalemusser/leadtrack/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("tasks")}
}

// Create inserts t, filling in the id and timestamps when unset.
func (s *Store) Create(ctx context.Context, t models.Task) (models.Task, error) {
	now := time.Now().UTC()
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, t); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// ListByLeadID returns every task linked to leadID, oldest first.
func (s *Store) ListByLeadID(ctx context.Context, leadID primitive.ObjectID) ([]models.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"lead_id": leadID}, opts)
	if err != nil {
		return nil, err
	}
	out := []models.Task{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Relink points the tasks in ids that still reference from at to instead,
// refreshing the denormalized lead name. It returns how many tasks were
// changed. Tasks already pointing elsewhere are left alone, so a repeated
// call is harmless.
func (s *Store) Relink(ctx context.Context, ids []primitive.ObjectID, from, to primitive.ObjectID, leadName string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.c.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "lead_id": from},
		bson.M{"$set": bson.M{"lead_id": to, "lead_name": leadName, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
