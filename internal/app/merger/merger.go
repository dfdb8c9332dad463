// Package merger folds a duplicate (secondary) lead into a primary lead.
//
// A merge runs three ordered writes: save the merged primary, relink the
// secondary's tasks to the primary, retire the secondary. The writes are not
// atomic as a group. A failure stops the sequence and is reported as a
// StepError naming the last step that did complete; nothing is rolled back.
// Callers must not run overlapping merges concurrently.
package merger

import (
	"context"
	"errors"
	"fmt"
	"time"

	leadstore "github.com/dalemusser/leadtrack/internal/app/store/leads"
	"github.com/dalemusser/leadtrack/internal/app/system/leadfields"
	"github.com/dalemusser/leadtrack/internal/app/system/normalize"
	"github.com/dalemusser/leadtrack/internal/app/system/timeouts"
	"github.com/dalemusser/leadtrack/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	ErrSameLead = errors.New("primary and secondary are the same lead")
	ErrNotFound = errors.New("lead not found or already retired")
)

// Step names a stage of a merge.
type Step string

const (
	StepNone            Step = "none"
	StepLoad            Step = "load"
	StepWritePrimary    Step = "write_primary"
	StepRelinkTasks     Step = "relink_tasks"
	StepRetireSecondary Step = "retire_secondary"
)

// StepError reports a merge that failed at Step after LastCompleted.
type StepError struct {
	Step          Step
	LastCompleted Step
	Err           error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("merge failed at %s (last completed: %s): %v", e.Step, e.LastCompleted, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// LeadStore is the lead side of a merge.
type LeadStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Lead, error)
	ReplaceIfVersion(ctx context.Context, l models.Lead, expect int64) (models.Lead, error)
	Retire(ctx context.Context, id, successor primitive.ObjectID, expect int64, at time.Time) error
}

// TaskStore is the task side of a merge.
type TaskStore interface {
	ListByLeadID(ctx context.Context, leadID primitive.ObjectID) ([]models.Task, error)
	Relink(ctx context.Context, ids []primitive.ObjectID, from, to primitive.ObjectID, leadName string) (int64, error)
}

// Recorder receives the outcome of every merge.
type Recorder interface {
	ObserveMerge(outcome string)
}

// Source says which lead a merged field came from.
type Source string

const (
	FromPrimary   Source = "primary"
	FromSecondary Source = "secondary"
	FromNeither   Source = "none"
)

// FieldsSummary describes how the merged record was assembled.
type FieldsSummary struct {
	Name         Source `json:"name"`
	Email        Source `json:"email"`
	Relationship Source `json:"relationship"`
	Snapshot     Source `json:"commitmentSnapshot"`
	PhonesAdded  int    `json:"phonesAdded"`
	CoursesAdded int    `json:"coursesAdded"`
}

// Report is the result of a successful merge.
type Report struct {
	SurvivingLeadID   string        `json:"survivingLeadId"`
	RetiredLeadID     string        `json:"retiredLeadId"`
	RelinkedTaskCount int64         `json:"relinkedTaskCount"`
	MergedFields      FieldsSummary `json:"mergedFields"`
}

// Engine runs merges against the stores.
type Engine struct {
	leads LeadStore
	tasks TaskStore
	rec   Recorder
	log   *zap.Logger
	now   func() time.Time
}

// New returns an Engine. rec may be nil.
func New(leads LeadStore, tasks TaskStore, rec Recorder, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{leads: leads, tasks: tasks, rec: rec, log: log, now: time.Now}
}

// Compute returns the merged record for primary and secondary. The result
// keeps primary's identity, version and timestamps. It does no I/O.
func Compute(primary, secondary models.Lead) (models.Lead, FieldsSummary) {
	merged := primary.Clone()
	var sum FieldsSummary

	pick := func(p, s string) (string, Source) {
		v := leadfields.PreferPrimary(p, s)
		switch {
		case v == "":
			return v, FromNeither
		case v == p:
			return v, FromPrimary
		}
		return v, FromSecondary
	}

	merged.Name, sum.Name = pick(primary.Name, secondary.Name)
	merged.Relationship, sum.Relationship = pick(primary.Relationship, secondary.Relationship)
	merged.Email, sum.Email = pick(primary.Email, secondary.Email)
	merged.EmailCI = normalize.Email(merged.Email)

	merged.Phones = leadfields.MergePhones(primary.Phones, secondary.Phones)
	sum.PhonesAdded = leadfields.AddedPhones(primary.Phones, secondary.Phones)

	merged.Courses = leadfields.UnionCourses(primary.Courses, secondary.Courses)
	sum.CoursesAdded = leadfields.AddedCourses(primary.Courses, secondary.Courses)

	merged.CommitmentSnapshot = leadfields.PickSnapshot(primary.CommitmentSnapshot, secondary.CommitmentSnapshot)
	switch {
	case merged.CommitmentSnapshot == nil:
		sum.Snapshot = FromNeither
	case leadfields.Completeness(secondary.CommitmentSnapshot) > leadfields.Completeness(primary.CommitmentSnapshot):
		sum.Snapshot = FromSecondary
	default:
		sum.Snapshot = FromPrimary
	}
	return merged, sum
}

// Merge folds secondaryID into primaryID.
func (e *Engine) Merge(ctx context.Context, primaryID, secondaryID primitive.ObjectID) (Report, error) {
	rep, err := e.merge(ctx, primaryID, secondaryID)
	if e.rec != nil {
		e.rec.ObserveMerge(Reason(err))
	}
	return rep, err
}

func (e *Engine) merge(ctx context.Context, primaryID, secondaryID primitive.ObjectID) (Report, error) {
	if primaryID == secondaryID {
		return Report{}, ErrSameLead
	}
	log := e.log.With(
		zap.String("primary_id", primaryID.Hex()),
		zap.String("secondary_id", secondaryID.Hex()))

	primary, err := e.load(ctx, primaryID)
	if err != nil {
		return Report{}, err
	}
	secondary, err := e.load(ctx, secondaryID)
	if err != nil {
		return Report{}, err
	}
	log.Debug("merge loaded leads")

	merged, summary := Compute(primary, secondary)

	// From here the writes run to the end or to a store error, whatever
	// happens to the caller.
	ctx = context.WithoutCancel(ctx)

	// 1) merged record onto the primary id
	wctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), e.log, "merge write primary")
	saved, err := e.leads.ReplaceIfVersion(wctx, merged, primary.Version)
	cancel()
	if err != nil {
		return Report{}, e.fail(log, StepWritePrimary, StepLoad, err)
	}
	log.Debug("merge wrote primary", zap.Int64("version", saved.Version))

	// 2) relink the secondary's tasks
	rctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), e.log, "merge relink tasks")
	relinked, err := e.relink(rctx, secondary.ID, primary.ID, saved.Name)
	cancel()
	if err != nil {
		return Report{}, e.fail(log, StepRelinkTasks, StepWritePrimary, err)
	}
	log.Debug("merge relinked tasks", zap.Int64("count", relinked))

	// 3) retire the secondary
	xctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), e.log, "merge retire secondary")
	err = e.leads.Retire(xctx, secondary.ID, primary.ID, secondary.Version, e.now())
	cancel()
	if err != nil {
		return Report{}, e.fail(log, StepRetireSecondary, StepRelinkTasks, err)
	}

	log.Info("merge completed", zap.Int64("relinked_tasks", relinked))
	return Report{
		SurvivingLeadID:   primary.ID.Hex(),
		RetiredLeadID:     secondary.ID.Hex(),
		RelinkedTaskCount: relinked,
		MergedFields:      summary,
	}, nil
}

func (e *Engine) load(ctx context.Context, id primitive.ObjectID) (models.Lead, error) {
	lctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), e.log, "merge load lead")
	defer cancel()

	l, err := e.leads.GetByID(lctx, id)
	if errors.Is(err, leadstore.ErrNotFound) {
		return models.Lead{}, fmt.Errorf("%w: %s", ErrNotFound, id.Hex())
	}
	if err != nil {
		return models.Lead{}, &StepError{Step: StepLoad, LastCompleted: StepNone, Err: err}
	}
	if !l.IsActive() {
		return models.Lead{}, fmt.Errorf("%w: %s", ErrNotFound, id.Hex())
	}
	return l, nil
}

func (e *Engine) relink(ctx context.Context, from, to primitive.ObjectID, name string) (int64, error) {
	tasks, err := e.tasks.ListByLeadID(ctx, from)
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}
	ids := make([]primitive.ObjectID, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return e.tasks.Relink(ctx, ids, from, to, name)
}

func (e *Engine) fail(log *zap.Logger, step, last Step, err error) error {
	log.Error("merge failed",
		zap.String("step", string(step)),
		zap.String("last_completed", string(last)),
		zap.Error(err))
	return &StepError{Step: step, LastCompleted: last, Err: err}
}

// Reason maps a Merge error to its wire reason code; nil maps to "ok".
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSameLead):
		return "same_lead"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, leadstore.ErrConcurrentModification):
		return "concurrent_modification"
	}
	return "store_error"
}

// LastCompleted returns the last completed step recorded in err, or "".
func LastCompleted(err error) Step {
	var se *StepError
	if errors.As(err, &se) {
		return se.LastCompleted
	}
	return ""
}
