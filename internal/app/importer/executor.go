// internal/app/importer/executor.go
package importer

import (
	"context"
	"errors"
	"slices"
	"time"

	leadstore "github.com/dalemusser/leadtrack/internal/app/store/leads"
	"github.com/dalemusser/leadtrack/internal/app/system/csvutil"
	"github.com/dalemusser/leadtrack/internal/app/system/leadfields"
	"github.com/dalemusser/leadtrack/internal/app/system/timeouts"
	"github.com/dalemusser/leadtrack/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Batch sizing. DefaultBatchSize stays under the 500-write ceiling of a
// single atomic commit.
const (
	DefaultBatchSize   = 499
	MaxBatchSize       = 1000
	DefaultConcurrency = 4
)

// BatchWriter applies a batch of lead writes all-or-nothing.
type BatchWriter interface {
	ApplyBatch(ctx context.Context, writes []leadstore.Write) error
}

// Notifier is told about each lead created by a committed batch.
type Notifier interface {
	OnLeadCreated(ctx context.Context, leadID primitive.ObjectID, name string) error
}

// RowResult is the outcome of one planned row.
type RowResult struct {
	RowIndex    int      `json:"rowIndex"`
	Decision    Decision `json:"decision"`
	Reason      string   `json:"reason,omitempty"`
	LeadID      string   `json:"leadId,omitempty"`
	Annotations []string `json:"annotations,omitempty"`
	Detail      string   `json:"detail,omitempty"`
}

// Report is returned for every import, dry run or not.
type Report struct {
	RunID         string             `json:"runId"`
	DryRun        bool               `json:"dryRun"`
	Counts        Counts             `json:"counts"`
	Rows          []RowResult        `json:"rows"`
	RowErrors     []csvutil.RowError `json:"rowErrors"`
	Batches       int                `json:"batches"`
	FailedBatches int                `json:"failedBatches"`
}

// Executor turns a Plan into store writes.
type Executor struct {
	store       BatchWriter
	notifier    Notifier
	log         *zap.Logger
	batchSize   int
	concurrency int
}

// NewExecutor returns an Executor. batchSize and concurrency fall back to
// the defaults when not positive; batchSize is capped at MaxBatchSize.
func NewExecutor(store BatchWriter, notifier Notifier, batchSize, concurrency int, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	batchSize = min(batchSize, MaxBatchSize)
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Executor{
		store:       store,
		notifier:    notifier,
		log:         log,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// op is one lead write and the plan entries it carries. Several UPDATE rows
// for the same lead fold into one op so that no two ops touch the same lead.
type op struct {
	write   leadstore.Write
	entries []int
}

// batchOutcome is how one batch ended. applied lists the ops that were
// stored even though err is set; it is only filled for partial batches.
type batchOutcome struct {
	err     error
	applied []int
}

func (b batchOutcome) stored(i int) bool {
	return b.err == nil || slices.Contains(b.applied, i)
}

// Execute reports what plan does. Without commit it only derives the report
// from the plan. With commit it applies CREATE and UPDATE entries in atomic
// batches; a failed batch turns its rows into ERROR and leaves the other
// batches alone. Rows whose writes were stored before a partial failure keep
// their decision.
func (e *Executor) Execute(ctx context.Context, plan Plan, commit bool) Report {
	rep := Report{
		RunID:     uuid.NewString(),
		DryRun:    !commit,
		RowErrors: append([]csvutil.RowError{}, plan.RowErrors...),
		Rows:      make([]RowResult, len(plan.Entries)),
	}
	for i, en := range plan.Entries {
		rep.Rows[i] = RowResult{
			RowIndex:    en.RowIndex,
			Decision:    en.Decision,
			Reason:      en.Reason,
			Annotations: en.Annotations,
		}
		if en.TargetLeadID != nil {
			rep.Rows[i].LeadID = en.TargetLeadID.Hex()
		}
	}

	if commit {
		ops := buildOps(plan)
		batches := chunk(ops, e.batchSize)
		outcomes := e.runBatches(ctx, batches)
		rep.Batches = len(batches)

		for bi, b := range batches {
			out := outcomes[bi]
			err := out.err
			if err != nil {
				rep.FailedBatches++
			}
			for oi, o := range b {
				for _, idx := range o.entries {
					row := &rep.Rows[idx]
					if !out.stored(oi) {
						row.Decision = DecisionError
						row.Reason = failureReason(err)
						row.Detail = err.Error()
						continue
					}
					if o.write.Kind == leadstore.WriteInsert {
						row.LeadID = o.write.Lead.ID.Hex()
					}
				}
			}
		}
	}

	rep.Counts = Counts{Errors: len(rep.RowErrors)}
	for _, r := range rep.Rows {
		rep.Counts.add(r.Decision)
	}
	return rep
}

func failureReason(err error) string {
	if errors.Is(err, leadstore.ErrConcurrentModification) {
		return ReasonConcurrentModify
	}
	return ReasonStoreError
}

// buildOps turns CREATE and UPDATE entries into writes, in plan order.
func buildOps(plan Plan) []op {
	now := time.Now().UTC()
	var ops []op
	updates := map[primitive.ObjectID]int{} // target -> index in ops

	for i, en := range plan.Entries {
		switch en.Decision {
		case DecisionCreate:
			rec := en.Record
			var snap *models.CommitmentSnapshot
			if rec.CourseName != "" {
				snap = &models.CommitmentSnapshot{Courses: []string{rec.CourseName}}
			}
			l := models.Lead{
				ID:           primitive.NewObjectID(),
				Name:         rec.Name,
				Email:        rec.Email,
				EmailCI:      rec.EmailKey,
				Phones:       leadfields.MergePhones(rec.Phones, nil),
				Courses:      leadfields.UnionCourses(rec.Courses, nil),
				Relationship: en.Relationship,
				Status:       models.LeadStatusActive,
				CreatedAt:    now,

				CommitmentSnapshot: snap,
			}
			ops = append(ops, op{write: leadstore.Write{Kind: leadstore.WriteInsert, Lead: l}, entries: []int{i}})

		case DecisionUpdate:
			if en.Target == nil {
				continue
			}
			at, ok := updates[en.Target.ID]
			if !ok {
				ops = append(ops, op{write: leadstore.Write{
					Kind:          leadstore.WriteUpdate,
					Lead:          en.Target.Clone(),
					ExpectVersion: en.Target.Version,
				}})
				at = len(ops) - 1
				updates[en.Target.ID] = at
			}
			o := &ops[at]
			applyUpdate(&o.write.Lead, en)
			o.entries = append(o.entries, i)
		}
	}
	return ops
}

// applyUpdate folds one row into the pending lead: phones by number union,
// courses by set union, relationship only when the row set one.
func applyUpdate(l *models.Lead, en Entry) {
	l.Phones = leadfields.MergePhones(l.Phones, en.Record.Phones)
	l.Courses = leadfields.UnionCourses(l.Courses, en.Record.Courses)
	if en.RelationshipSupplied {
		l.Relationship = en.Relationship
	}
}

func chunk(ops []op, size int) [][]op {
	var out [][]op
	for start := 0; start < len(ops); start += size {
		out = append(out, ops[start:min(start+size, len(ops))])
	}
	return out
}

func (e *Executor) runBatches(ctx context.Context, batches [][]op) []batchOutcome {
	outcomes := make([]batchOutcome, len(batches))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, b := range batches {
		g.Go(func() error {
			outcomes[i] = e.runBatch(ctx, i, b)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (e *Executor) runBatch(ctx context.Context, n int, b []op) batchOutcome {
	writes := make([]leadstore.Write, len(b))
	for i, o := range b {
		writes[i] = o.write
	}

	bctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), e.log, "import batch")
	err := e.store.ApplyBatch(bctx, writes)
	cancel()
	if err == nil {
		e.notifyCreated(ctx, writes, nil)
		return batchOutcome{}
	}

	out := batchOutcome{err: err}
	var partial *leadstore.PartialBatchError
	if errors.As(err, &partial) {
		out.applied = partial.Applied
		e.notifyCreated(ctx, writes, partial.Applied)
	}
	e.log.Warn("import batch failed",
		zap.Int("batch", n+1),
		zap.Int("writes", len(writes)),
		zap.Int("stored", len(out.applied)),
		zap.Error(err))
	return out
}

// notifyCreated announces the inserts in writes. A nil only means all of
// them; otherwise just the listed indexes.
func (e *Executor) notifyCreated(ctx context.Context, writes []leadstore.Write, only []int) {
	if e.notifier == nil {
		return
	}
	for i, w := range writes {
		if w.Kind != leadstore.WriteInsert {
			continue
		}
		if only != nil && !slices.Contains(only, i) {
			continue
		}
		if nerr := e.notifier.OnLeadCreated(ctx, w.Lead.ID, w.Lead.Name); nerr != nil {
			e.log.Warn("lead created notification failed",
				zap.String("lead_id", w.Lead.ID.Hex()),
				zap.Error(nerr))
		}
	}
}
