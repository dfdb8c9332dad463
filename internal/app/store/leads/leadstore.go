// internal/app/store/leads/leadstore.go
package leadstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/leadtrack/internal/app/system/txn"
	"github.com/dalemusser/leadtrack/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when no lead has the requested id.
	ErrNotFound = errors.New("lead not found")
	// ErrConcurrentModification is returned when a conditional write finds
	// the lead at a different version (or no longer active).
	ErrConcurrentModification = errors.New("concurrent modification")
)

// WriteKind says what a Write does.
type WriteKind int

const (
	WriteInsert WriteKind = iota
	WriteUpdate
)

// PartialBatchError is returned by ApplyBatch when a batch failed after some
// of its writes were already stored. It only happens when the server cannot
// run transactions. Applied lists the stored writes by index into the batch.
type PartialBatchError struct {
	Applied []int
	Err     error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("batch partially applied (%d writes stored): %v", len(e.Applied), e.Err)
}

func (e *PartialBatchError) Unwrap() error { return e.Err }

// Write is one lead mutation inside an atomic batch.
//
// Insert writes Lead as a new document; Lead.ID must already be set.
// Update replaces phones, courses and relationship on the lead with
// Lead.ID, but only if it is still active at ExpectVersion.
type Write struct {
	Kind          WriteKind
	Lead          models.Lead
	ExpectVersion int64
}

type Store struct {
	db  *mongo.Database
	c   *mongo.Collection
	log *zap.Logger
}

func New(db *mongo.Database, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, c: db.Collection("leads"), log: log}
}

// GetByID returns the lead with id in any status.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Lead, error) {
	var l models.Lead
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Lead{}, ErrNotFound
	}
	return l, err
}

// FindActiveByEmail returns the oldest active lead whose normalized email is
// email, or ErrNotFound.
func (s *Store) FindActiveByEmail(ctx context.Context, email string) (models.Lead, error) {
	if email == "" {
		return models.Lead{}, ErrNotFound
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	var l models.Lead
	err := s.c.FindOne(ctx, bson.M{"email_ci": email, "status": models.LeadStatusActive}, opts).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Lead{}, ErrNotFound
	}
	return l, err
}

// FindActiveByEmails returns every active lead whose normalized email is in
// emails. The lookup is one query so the result is a single point-in-time
// read of the collection.
func (s *Store) FindActiveByEmails(ctx context.Context, emails []string) ([]models.Lead, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	filter := bson.M{
		"email_ci": bson.M{"$in": emails},
		"status":   models.LeadStatusActive,
	}
	cur, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var out []models.Lead
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyBatch applies writes all-or-nothing inside one transaction. Any
// conditional update that misses aborts the batch with
// ErrConcurrentModification.
//
// Without transaction support the writes are applied one at a time, inserts
// first. A failure after some writes landed is returned as a
// *PartialBatchError so the caller can account for what was stored.
func (s *Store) ApplyBatch(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	return txn.Run(ctx, s.db, s.log, func(ctx context.Context) error {
		now := time.Now().UTC()
		if !txn.Active(ctx) {
			return s.applySequential(ctx, writes, now)
		}
		var inserts []interface{}
		for _, w := range writes {
			if w.Kind == WriteInsert {
				inserts = append(inserts, prepareInsert(w.Lead, now))
			}
		}
		if len(inserts) > 0 {
			if _, err := s.c.InsertMany(ctx, inserts); err != nil {
				return fmt.Errorf("insert leads: %w", err)
			}
		}
		for _, w := range writes {
			if w.Kind != WriteUpdate {
				continue
			}
			if err := s.applyUpdate(ctx, w, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) applySequential(ctx context.Context, writes []Write, now time.Time) error {
	var applied []int
	fail := func(err error) error {
		if len(applied) == 0 {
			return err
		}
		return &PartialBatchError{Applied: applied, Err: err}
	}
	for i, w := range writes {
		if w.Kind != WriteInsert {
			continue
		}
		if _, err := s.c.InsertOne(ctx, prepareInsert(w.Lead, now)); err != nil {
			return fail(fmt.Errorf("insert lead %s: %w", w.Lead.ID.Hex(), err))
		}
		applied = append(applied, i)
	}
	for i, w := range writes {
		if w.Kind != WriteUpdate {
			continue
		}
		if err := s.applyUpdate(ctx, w, now); err != nil {
			return fail(err)
		}
		applied = append(applied, i)
	}
	return nil
}

func prepareInsert(l models.Lead, now time.Time) models.Lead {
	l.NameCI = text.Fold(l.Name)
	if l.Status == "" {
		l.Status = models.LeadStatusActive
	}
	if l.Phones == nil {
		l.Phones = []models.Phone{}
	}
	if l.Courses == nil {
		l.Courses = []string{}
	}
	l.Version = 1
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	return l
}

func (s *Store) applyUpdate(ctx context.Context, w Write, now time.Time) error {
	set := bson.M{
		"phones":     nonNilPhones(w.Lead.Phones),
		"courses":    nonNilStrings(w.Lead.Courses),
		"updated_at": now,
	}
	if w.Lead.Relationship != "" {
		set["relationship"] = w.Lead.Relationship
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": w.Lead.ID, "version": w.ExpectVersion, "status": models.LeadStatusActive},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return fmt.Errorf("update lead %s: %w", w.Lead.ID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update lead %s: %w", w.Lead.ID.Hex(), ErrConcurrentModification)
	}
	return nil
}

// ReplaceIfVersion overwrites the mutable fields of an active lead with the
// values in l, provided the stored version is still expect. It returns the
// stored lead after the write.
func (s *Store) ReplaceIfVersion(ctx context.Context, l models.Lead, expect int64) (models.Lead, error) {
	set := bson.M{
		"name":                l.Name,
		"name_ci":             text.Fold(l.Name),
		"email":               l.Email,
		"email_ci":            l.EmailCI,
		"phones":              nonNilPhones(l.Phones),
		"courses":             nonNilStrings(l.Courses),
		"relationship":        l.Relationship,
		"commitment_snapshot": l.CommitmentSnapshot,
		"updated_at":          time.Now().UTC(),
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var out models.Lead
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": l.ID, "version": expect, "status": models.LeadStatusActive},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
		opts,
	).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Lead{}, ErrConcurrentModification
	}
	return out, err
}

// Retire marks an active lead as merged into successor. The lead must still
// be at version expect.
func (s *Store) Retire(ctx context.Context, id, successor primitive.ObjectID, expect int64, at time.Time) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "version": expect, "status": models.LeadStatusActive},
		bson.M{
			"$set": bson.M{
				"status":      models.LeadStatusMerged,
				"merged_into": successor,
				"retired_at":  at.UTC(),
				"updated_at":  at.UTC(),
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// SetAFCStep records the follow-up cycle step for a lead.
func (s *Store) SetAFCStep(ctx context.Context, id primitive.ObjectID, step int) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"afc_step": step, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Resolve follows merged_into links from id to the surviving lead.
func (s *Store) Resolve(ctx context.Context, id primitive.ObjectID) (models.Lead, error) {
	seen := map[primitive.ObjectID]bool{}
	for {
		l, err := s.GetByID(ctx, id)
		if err != nil {
			return models.Lead{}, err
		}
		if l.IsActive() || l.MergedInto == nil || seen[*l.MergedInto] {
			return l, nil
		}
		seen[id] = true
		id = *l.MergedInto
	}
}

func nonNilPhones(p []models.Phone) []models.Phone {
	if p == nil {
		return []models.Phone{}
	}
	return p
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
