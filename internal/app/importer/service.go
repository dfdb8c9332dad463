// internal/app/importer/service.go
package importer

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/leadtrack/internal/app/system/csvutil"
	"github.com/dalemusser/leadtrack/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Request-level failures.
var (
	ErrNoInput    = errors.New("one of jsonData or csvText is required")
	ErrBothInputs = errors.New("jsonData and csvText are mutually exclusive")
	ErrSnapshot   = errors.New("could not load existing leads")
)

// Request is one import call.
type Request struct {
	JSONData            []byte
	CSVText             string
	IsNew               bool
	DryRun              bool
	DefaultRelationship string
}

// Config holds the service defaults.
type Config struct {
	DefaultRelationship string
	MaxRows             int
}

// Recorder receives one observation per finished import.
type Recorder interface {
	ObserveImport(dryRun bool, decisions map[string]int, failedBatches int, elapsed time.Duration)
}

// Service runs normalize, plan and execute for one request.
type Service struct {
	finder LeadFinder
	exec   *Executor
	cfg    Config
	rec    Recorder
	log    *zap.Logger
}

// NewService wires a Service. rec may be nil.
func NewService(finder LeadFinder, exec *Executor, cfg Config, rec Recorder, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DefaultRelationship == "" {
		cfg.DefaultRelationship = DefaultRelationship
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = csvutil.MaxRows
	}
	return &Service{finder: finder, exec: exec, cfg: cfg, rec: rec, log: log}
}

// Source parses the request body into a row source.
func (s *Service) Source(req Request) (*csvutil.Source, error) {
	hasJSON := len(req.JSONData) > 0
	hasCSV := req.CSVText != ""
	opts := csvutil.ParseOptions{MaxRows: s.cfg.MaxRows}
	switch {
	case hasJSON && hasCSV:
		return nil, ErrBothInputs
	case hasJSON:
		return csvutil.NewJSON(req.JSONData, opts)
	case hasCSV:
		return csvutil.NewCSV([]byte(req.CSVText), opts)
	}
	return nil, ErrNoInput
}

// Plan builds the import plan for req against a fresh snapshot. It never
// writes.
func (s *Service) Plan(ctx context.Context, req Request) (Plan, error) {
	src, err := s.Source(req)
	if err != nil {
		return Plan{}, err
	}

	lctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.log, "import snapshot")
	defer cancel()
	snap, err := LoadSnapshot(lctx, s.finder, src)
	if err != nil {
		s.log.Error("import snapshot failed", zap.Error(err))
		return Plan{}, errors.Join(ErrSnapshot, err)
	}
	s.log.Debug("import snapshot loaded",
		zap.Int("rows", src.Len()),
		zap.Int("matched_leads", snap.Len()))

	rel := req.DefaultRelationship
	if rel == "" {
		rel = s.cfg.DefaultRelationship
	}
	return Build(snap, src.Rows(), Options{
		DefaultRelationship: rel,
		IsNew:               req.IsNew,
		DryRun:              req.DryRun,
	}), nil
}

// Import plans req and, unless it is a dry run, commits the plan.
func (s *Service) Import(ctx context.Context, req Request) (Report, error) {
	start := time.Now()

	plan, err := s.Plan(ctx, req)
	if err != nil {
		return Report{}, err
	}

	ectx, cancel := timeouts.WithTimeout(ctx, timeouts.Batch(), s.log, "import commit")
	defer cancel()
	rep := s.exec.Execute(ectx, plan, !req.DryRun)

	elapsed := time.Since(start)
	s.log.Info("import finished",
		zap.String("run_id", rep.RunID),
		zap.Bool("dry_run", rep.DryRun),
		zap.Bool("is_new", req.IsNew),
		zap.Int("created", rep.Counts.Created),
		zap.Int("updated", rep.Counts.Updated),
		zap.Int("skipped", rep.Counts.Skipped),
		zap.Int("conflicts", rep.Counts.Conflicts),
		zap.Int("errors", rep.Counts.Errors),
		zap.Int("failed_batches", rep.FailedBatches),
		zap.Duration("took", elapsed))

	if s.rec != nil {
		s.rec.ObserveImport(rep.DryRun, map[string]int{
			"created":   rep.Counts.Created,
			"updated":   rep.Counts.Updated,
			"skipped":   rep.Counts.Skipped,
			"conflicts": rep.Counts.Conflicts,
			"errors":    rep.Counts.Errors,
		}, rep.FailedBatches, elapsed)
	}
	return rep, nil
}

// ErrorReason maps a request-level error to its wire reason code.
func ErrorReason(err error) string {
	switch {
	case errors.Is(err, csvutil.ErrInvalidJSON):
		return "invalid_json"
	case errors.Is(err, csvutil.ErrTooManyRows):
		return "too_many_rows"
	case errors.Is(err, csvutil.ErrMissingNameColumn):
		return "missing_name_column"
	case errors.Is(err, csvutil.ErrEmptyInput), errors.Is(err, ErrNoInput):
		return "no_input"
	case errors.Is(err, ErrBothInputs):
		return "ambiguous_input"
	case errors.Is(err, ErrSnapshot):
		return "store_error"
	}
	return "malformed_input"
}
