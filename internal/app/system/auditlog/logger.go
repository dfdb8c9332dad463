// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"strconv"

	"github.com/dalemusser/leadtrack/internal/app/importer"
	"github.com/dalemusser/leadtrack/internal/app/merger"
	"github.com/dalemusser/leadtrack/internal/app/store/audit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Destinations accepted in Config.
const (
	ToAll = "all" // MongoDB + zap
	ToDB  = "db"
	ToLog = "log"
	ToOff = "off"
)

// Config holds audit logging configuration.
type Config struct {
	// Import controls logging for committed and rejected imports.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Import string
	// Merge controls logging for completed and failed merges.
	Merge string
}

// Valid reports whether s is a known destination.
func Valid(s string) bool {
	switch s {
	case ToAll, ToDB, ToLog, ToOff:
		return true
	}
	return false
}

// EventWriter persists audit events.
type EventWriter interface {
	Log(ctx context.Context, event audit.Event) error
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  EventWriter
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store EventWriter, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("source", event.Source),
	}

	if event.LeadID != nil {
		fields = append(fields, zap.String("lead_id", event.LeadID.Hex()))
	}
	if event.RelatedLeadID != nil {
		fields = append(fields, zap.String("related_lead_id", event.RelatedLeadID.Hex()))
	}
	if event.RunID != "" {
		fields = append(fields, zap.String("run_id", event.RunID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
// A failed database write is logged, never returned.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryImport:
		setting = l.config.Import
	case audit.CategoryMerge:
		setting = l.config.Merge
	}
	if setting == "" {
		setting = ToAll
	}
	if setting == ToOff {
		return
	}

	if setting == ToAll || setting == ToLog {
		l.logToZap(event)
	}

	if (setting == ToAll || setting == ToDB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Import Events ---

// ImportCommitted logs a committed (non dry-run) import with its counts.
func (l *Logger) ImportCommitted(ctx context.Context, source string, rep importer.Report) {
	c := rep.Counts
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryImport,
		EventType: audit.EventImportCommitted,
		RunID:     rep.RunID,
		Source:    source,
		Success:   rep.FailedBatches == 0,
		Details: map[string]string{
			"created":        strconv.Itoa(c.Created),
			"updated":        strconv.Itoa(c.Updated),
			"skipped":        strconv.Itoa(c.Skipped),
			"conflicts":      strconv.Itoa(c.Conflicts),
			"errors":         strconv.Itoa(c.Errors),
			"batches":        strconv.Itoa(rep.Batches),
			"failed_batches": strconv.Itoa(rep.FailedBatches),
		},
	})
}

// ImportRejected logs an import refused before planning.
func (l *Logger) ImportRejected(ctx context.Context, source, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryImport,
		EventType:     audit.EventImportRejected,
		Source:        source,
		Success:       false,
		FailureReason: reason,
	})
}

// --- Merge Events ---

// MergeCompleted logs a finished merge.
func (l *Logger) MergeCompleted(ctx context.Context, source string, primary, secondary primitive.ObjectID, rep merger.Report) {
	f := rep.MergedFields
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryMerge,
		EventType:     audit.EventMergeCompleted,
		LeadID:        &primary,
		RelatedLeadID: &secondary,
		Source:        source,
		Success:       true,
		Details: map[string]string{
			"relinked_tasks": strconv.FormatInt(rep.RelinkedTaskCount, 10),
			"phones_added":   strconv.Itoa(f.PhonesAdded),
			"courses_added":  strconv.Itoa(f.CoursesAdded),
			"snapshot_from":  string(f.Snapshot),
		},
	})
}

// MergeFailed logs a merge that was refused or stopped partway. lastStep
// is empty when nothing was written.
func (l *Logger) MergeFailed(ctx context.Context, source string, primary, secondary primitive.ObjectID, reason string, lastStep merger.Step) {
	event := audit.Event{
		Category:      audit.CategoryMerge,
		EventType:     audit.EventMergeFailed,
		LeadID:        &primary,
		RelatedLeadID: &secondary,
		Source:        source,
		Success:       false,
		FailureReason: reason,
	}
	if lastStep != "" && lastStep != merger.StepNone {
		event.Details = map[string]string{"last_completed_step": string(lastStep)}
	}
	l.Log(ctx, event)
}
