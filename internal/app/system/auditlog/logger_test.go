package auditlog_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dalemusser/leadtrack/internal/app/importer"
	"github.com/dalemusser/leadtrack/internal/app/merger"
	"github.com/dalemusser/leadtrack/internal/app/store/audit"
	"github.com/dalemusser/leadtrack/internal/app/system/auditlog"
	"github.com/dalemusser/leadtrack/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memWriter struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (w *memWriter) Log(_ context.Context, e audit.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.events = append(w.events, e)
	return nil
}

func TestLogger_NilLogger(t *testing.T) {
	// nil logger should be a no-op (not panic)
	var logger *auditlog.Logger
	ctx := context.Background()

	logger.Log(ctx, audit.Event{EventType: "test"})
	logger.ImportRejected(ctx, "cli", "no_input")
	logger.MergeFailed(ctx, "cli", primitive.NewObjectID(), primitive.NewObjectID(), "not_found", "")
}

func TestLogger_Destinations(t *testing.T) {
	tests := []struct {
		setting string
		wantDB  int
		wantLog int
	}{
		{auditlog.ToAll, 1, 1},
		{auditlog.ToDB, 1, 0},
		{auditlog.ToLog, 0, 1},
		{auditlog.ToOff, 0, 0},
		{"", 1, 1},
	}

	for _, tt := range tests {
		t.Run("setting="+tt.setting, func(t *testing.T) {
			core, logs := observer.New(zap.InfoLevel)
			w := &memWriter{}
			logger := auditlog.New(w, zap.New(core), auditlog.Config{Merge: tt.setting})

			logger.MergeCompleted(context.Background(), "10.0.0.1", primitive.NewObjectID(), primitive.NewObjectID(), merger.Report{RelinkedTaskCount: 3})

			if len(w.events) != tt.wantDB {
				t.Errorf("db events: got %d, want %d", len(w.events), tt.wantDB)
			}
			if logs.Len() != tt.wantLog {
				t.Errorf("log entries: got %d, want %d", logs.Len(), tt.wantLog)
			}
		})
	}
}

func TestLogger_StoreFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	w := &memWriter{err: errors.New("write failed")}
	logger := auditlog.New(w, zap.New(core), auditlog.Config{Import: auditlog.ToDB})

	logger.ImportRejected(context.Background(), "cli", "too_many_rows")

	if logs.FilterMessage("failed to store audit event").Len() != 1 {
		t.Error("expected the store failure to be logged")
	}
}

func TestLogger_ImportCommitted(t *testing.T) {
	w := &memWriter{}
	logger := auditlog.New(w, nil, auditlog.Config{Import: auditlog.ToDB})

	logger.ImportCommitted(context.Background(), "cli", importer.Report{
		RunID:         "run-7",
		Counts:        importer.Counts{Created: 2, Updated: 1},
		Batches:       2,
		FailedBatches: 1,
	})

	if len(w.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(w.events))
	}
	e := w.events[0]
	if e.RunID != "run-7" || e.EventType != audit.EventImportCommitted {
		t.Errorf("event: %+v", e)
	}
	if e.Success {
		t.Error("an import with a failed batch is not a success")
	}
	if e.Details["created"] != "2" || e.Details["failed_batches"] != "1" {
		t.Errorf("details: %v", e.Details)
	}
}

func TestLogger_MergeFailed_RecordsLastStep(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{Merge: auditlog.ToDB})
	primary, secondary := primitive.NewObjectID(), primitive.NewObjectID()
	logger.MergeFailed(ctx, "cli", primary, secondary, "store_error", merger.StepWritePrimary)

	events, err := store.Query(ctx, audit.QueryFilter{LeadID: &primary})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Details["last_completed_step"] != string(merger.StepWritePrimary) {
		t.Errorf("details: %v", events[0].Details)
	}
	if events[0].FailureReason != "store_error" {
		t.Errorf("failure reason: got %q", events[0].FailureReason)
	}
}

func TestValid(t *testing.T) {
	for _, s := range []string{"all", "db", "log", "off"} {
		if !auditlog.Valid(s) {
			t.Errorf("Valid(%q) = false", s)
		}
	}
	if auditlog.Valid("everything") {
		t.Error("Valid(everything) = true")
	}
}
