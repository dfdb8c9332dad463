package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/leadtrack/internal/app/system/normalize"
	"github.com/dalemusser/leadtrack/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// NewLead builds an active, unsaved lead with a fresh id.
func NewLead(name, email string, phones ...models.Phone) models.Lead {
	now := time.Now().UTC()
	if phones == nil {
		phones = []models.Phone{}
	}
	return models.Lead{
		ID:           primitive.NewObjectID(),
		Name:         name,
		NameCI:       text.Fold(name),
		Email:        email,
		EmailCI:      normalize.Email(email),
		Phones:       phones,
		Courses:      []string{},
		Relationship: "Lead",
		Status:       models.LeadStatusActive,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Phone is shorthand for a models.Phone literal.
func Phone(number string, t models.PhoneType) models.Phone {
	return models.Phone{Number: number, Type: t}
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateLead inserts an active lead with the given name and email.
func (f *Fixtures) CreateLead(ctx context.Context, name, email string, phones ...models.Phone) models.Lead {
	f.t.Helper()
	return f.InsertLead(ctx, NewLead(name, email, phones...))
}

// InsertLead inserts l as given.
func (f *Fixtures) InsertLead(ctx context.Context, l models.Lead) models.Lead {
	f.t.Helper()

	if _, err := f.db.Collection("leads").InsertOne(ctx, l); err != nil {
		f.t.Fatalf("failed to create test lead: %v", err)
	}
	return l
}

// CreateTask inserts an open task linked to leadID.
func (f *Fixtures) CreateTask(ctx context.Context, leadID primitive.ObjectID, description string) models.Task {
	f.t.Helper()

	now := time.Now().UTC()
	task := models.Task{
		ID:          primitive.NewObjectID(),
		LeadID:      leadID,
		Description: description,
		Nature:      models.TaskProcedural,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := f.db.Collection("tasks").InsertOne(ctx, task); err != nil {
		f.t.Fatalf("failed to create test task: %v", err)
	}
	return task
}
