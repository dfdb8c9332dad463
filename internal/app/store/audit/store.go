// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event categories
const (
	CategoryImport = "import"
	CategoryMerge  = "merge"
)

// Event types
const (
	EventImportCommitted = "import_committed"
	EventImportRejected  = "import_rejected"
	EventMergeCompleted  = "merge_completed"
	EventMergeFailed     = "merge_failed"
)

// Event represents an audit event.
//
// For merges LeadID is the primary and RelatedLeadID the secondary. A failed
// merge keeps the last completed step in Details so the pair can be
// reconciled by hand.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Timestamp time.Time          `bson:"timestamp"`

	// Event classification
	Category  string `bson:"category"`
	EventType string `bson:"event_type"`

	// What
	LeadID        *primitive.ObjectID `bson:"lead_id,omitempty"`
	RelatedLeadID *primitive.ObjectID `bson:"related_lead_id,omitempty"`
	RunID         string              `bson:"run_id,omitempty"`

	// Context
	Source string `bson:"source"` // client IP, or "cli"

	// Outcome
	Success       bool   `bson:"success"`
	FailureReason string `bson:"failure_reason,omitempty"`

	// Additional details (varies by event type)
	Details map[string]string `bson:"details,omitempty"`
}

// QueryFilter defines filters for querying audit events.
type QueryFilter struct {
	LeadID    *primitive.ObjectID // matches either lead_id or related_lead_id
	Category  string
	EventType string
	Failed    bool // only unsuccessful events
	StartTime *time.Time
	Limit     int64
}

// Store manages audit event records.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_events")}
}

// EnsureIndexes creates necessary indexes for efficient querying.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// Query by time range (most recent first)
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_timestamp"),
		},
		// Query by lead
		{
			Keys: bson.D{
				{Key: "lead_id", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_lead_timestamp").SetSparse(true),
		},
		// Query by event type
		{
			Keys: bson.D{
				{Key: "category", Value: 1},
				{Key: "event_type", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_category_type_timestamp"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Log records an audit event.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

// Query retrieves audit events matching the given filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	query := bson.M{}

	if filter.LeadID != nil {
		query["$or"] = bson.A{
			bson.M{"lead_id": filter.LeadID},
			bson.M{"related_lead_id": filter.LeadID},
		}
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.EventType != "" {
		query["event_type"] = filter.EventType
	}
	if filter.Failed {
		query["success"] = false
	}
	if filter.StartTime != nil {
		query["timestamp"] = bson.M{"$gte": *filter.StartTime}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.c.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	events := []Event{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// DeleteBefore removes events recorded before cutoff and returns how many
// were deleted.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// FailedMerges returns merges that stopped partway since the given time.
func (s *Store) FailedMerges(ctx context.Context, since time.Time, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{
		Category:  CategoryMerge,
		EventType: EventMergeFailed,
		Failed:    true,
		StartTime: &since,
		Limit:     limit,
	})
}
