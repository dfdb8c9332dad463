// internal/app/importer/planner.go
package importer

import (
	"iter"
	"strings"

	"github.com/dalemusser/leadtrack/internal/app/system/csvutil"
	"github.com/dalemusser/leadtrack/internal/app/system/leadfields"
	"github.com/dalemusser/leadtrack/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Decision is the verdict for one import row.
type Decision string

const (
	DecisionCreate   Decision = "CREATE"
	DecisionUpdate   Decision = "UPDATE"
	DecisionSkip     Decision = "SKIP"
	DecisionConflict Decision = "CONFLICT"
	// DecisionError is never planned; the executor reports it for rows whose
	// batch failed.
	DecisionError Decision = "ERROR"
)

// Reasons attached to decisions.
const (
	ReasonEmailExistsInNewMode = "email_exists_in_new_mode"
	ReasonNoMatchInUpdateMode  = "no_match_in_update_mode"
	ReasonNoEmailInUpdateMode  = "no_email_in_update_mode"
	ReasonConcurrentModify     = "concurrent_modification"
	ReasonStoreError           = "store_error"

	// AnnotationDuplicateWithinBatch marks a row that targets the same email
	// (or, without email, the same name) as an earlier row in the same run.
	AnnotationDuplicateWithinBatch = "duplicate_within_batch"
)

// DefaultRelationship is used when neither the row nor the request sets one.
const DefaultRelationship = "Lead"

// Options are the caller's flags for one planner run.
type Options struct {
	DefaultRelationship string
	IsNew               bool
	DryRun              bool
}

// Entry is one planned row.
//
// Relationship is the effective value for a create (row value, else the
// default). RelationshipSupplied says whether the row carried its own value,
// which is the only case an update overwrites the stored one.
type Entry struct {
	RowIndex             int
	Record               csvutil.Contact
	Decision             Decision
	TargetLeadID         *primitive.ObjectID
	Target               *models.Lead
	Reason               string
	Relationship         string
	RelationshipSupplied bool
	Annotations          []string
}

// Annotated reports whether the entry carries annotation a.
func (e Entry) Annotated(a string) bool {
	for _, x := range e.Annotations {
		if x == a {
			return true
		}
	}
	return false
}

// Plan is the ordered result of Build.
type Plan struct {
	Options   Options
	Entries   []Entry
	RowErrors []csvutil.RowError
}

// Build decides what each row would do to the lead population in snap. It
// performs no I/O and never reflects the effect of earlier rows on later
// ones: two rows for the same new email both plan CREATE, and the second is
// annotated instead.
func Build(snap *Snapshot, rows iter.Seq[csvutil.Row], opts Options) Plan {
	if strings.TrimSpace(opts.DefaultRelationship) == "" {
		opts.DefaultRelationship = DefaultRelationship
	}
	plan := Plan{Options: opts}

	seenEmail := map[string]bool{}
	seenNoEmailName := map[string]bool{}

	for row := range rows {
		if row.Err != nil {
			plan.RowErrors = append(plan.RowErrors, *row.Err)
			continue
		}
		rec := row.Contact
		rec.Courses = leadfields.UnionCourses(rec.Courses, []string{rec.CourseName})

		e := Entry{
			RowIndex:             row.Index,
			Record:               rec,
			Relationship:         rec.Relationship,
			RelationshipSupplied: rec.Relationship != "",
		}
		if e.Relationship == "" {
			e.Relationship = opts.DefaultRelationship
		}

		switch {
		case rec.HasEmail():
			if match, ok := snap.Find(rec.EmailKey); ok {
				if opts.IsNew {
					e.Decision = DecisionConflict
					e.Reason = ReasonEmailExistsInNewMode
				} else {
					e.Decision = DecisionUpdate
				}
				id := match.ID
				e.TargetLeadID = &id
				e.Target = &match
			} else if opts.IsNew {
				e.Decision = DecisionCreate
			} else {
				e.Decision = DecisionSkip
				e.Reason = ReasonNoMatchInUpdateMode
			}
			if seenEmail[rec.EmailKey] {
				e.Annotations = append(e.Annotations, AnnotationDuplicateWithinBatch)
			}
			seenEmail[rec.EmailKey] = true

		case opts.IsNew:
			e.Decision = DecisionCreate
			key := text.Fold(rec.Name)
			if seenNoEmailName[key] {
				e.Annotations = append(e.Annotations, AnnotationDuplicateWithinBatch)
			}
			seenNoEmailName[key] = true

		default:
			e.Decision = DecisionSkip
			e.Reason = ReasonNoEmailInUpdateMode
		}

		plan.Entries = append(plan.Entries, e)
	}
	return plan
}

// Counts tallies decisions and errors.
type Counts struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Conflicts int `json:"conflicts"`
	Errors    int `json:"errors"`
}

func (c *Counts) add(d Decision) {
	switch d {
	case DecisionCreate:
		c.Created++
	case DecisionUpdate:
		c.Updated++
	case DecisionSkip:
		c.Skipped++
	case DecisionConflict:
		c.Conflicts++
	case DecisionError:
		c.Errors++
	}
}

// Counts returns the planned decision counts; row errors count as errors.
func (p Plan) Counts() Counts {
	c := Counts{Errors: len(p.RowErrors)}
	for _, e := range p.Entries {
		c.add(e.Decision)
	}
	return c
}
