// internal/app/system/csvutil/contacts.go
package csvutil

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/dalemusser/leadtrack/internal/app/system/inputval"
	"github.com/dalemusser/leadtrack/internal/app/system/normalize"
	"github.com/dalemusser/leadtrack/internal/domain/models"
)

// Row error reasons.
const (
	ReasonMissingName  = "missing_name"
	ReasonMalformedRow = "malformed_row"
	ReasonInvalidEmail = "invalid_email"
)

// Request-level failures. These abort the whole import.
var (
	ErrTooManyRows       = errors.New("too many rows")
	ErrMissingNameColumn = errors.New("header has no name column")
	ErrInvalidJSON       = errors.New("invalid json")
	ErrEmptyInput        = errors.New("no contact data provided")
)

// Recognized column keys, compared case-insensitively against the header.
const (
	colName         = "name"
	colEmail        = "email"
	colPhone1       = "phone1"
	colPhone1Type   = "phone1type"
	colPhone2       = "phone2"
	colPhone2Type   = "phone2type"
	colRelationship = "relationship"
	colCourseName   = "coursename"
	colCourses      = "courses"
)

// Contact is one normalized incoming record.
//
// Email keeps the casing it arrived with; EmailKey is the normalized form
// used for matching. Relationship and CourseName are "" when the row did not
// supply them.
type Contact struct {
	Name         string
	Email        string
	EmailKey     string
	Phones       []models.Phone
	Courses      []string
	Relationship string
	CourseName   string
}

// HasEmail reports whether the record carries an email.
func (c Contact) HasEmail() bool { return c.EmailKey != "" }

// RowError describes a rejected data row. Row is 1-based over data rows.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

func (e *RowError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d: %s (%s)", e.Row, e.Reason, e.Detail)
}

// Row is one element of a Source: either a Contact or an Err.
type Row struct {
	Index   int
	Contact Contact
	Err     *RowError
}

// ParseOptions bounds the input.
type ParseOptions struct {
	MaxRows int
}

// DefaultParseOptions returns the package limits.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{MaxRows: MaxRows}
}

type format int

const (
	formatCSV format = iota
	formatJSON
)

// Source is a parsed-on-demand contact input. Rows may be ranged over any
// number of times and always yields the same sequence.
type Source struct {
	format  format
	body    []byte
	header  map[string]int
	width   int
	objects []json.RawMessage
	total   int
}

// Len returns the number of data rows, empty rows included.
func (s *Source) Len() int { return s.total }

// NewCSV checks the header and row count of a CSV body and returns a Source
// over its rows. A UTF-8 BOM is ignored.
func NewCSV(body []byte, opts ParseOptions) (*Source, error) {
	body = bytes.TrimPrefix(body, []byte("\ufeff"))
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyInput
	}

	r := newCSVReader(body)
	r.FieldsPerRecord = -1
	first, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header := make(map[string]int, len(first))
	for i, h := range first {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := header[key]; !dup && key != "" {
			header[key] = i
		}
	}
	if _, ok := header[colName]; !ok {
		return nil, ErrMissingNameColumn
	}

	s := &Source{format: formatCSV, body: body, header: header, width: len(first)}
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		s.total++
		if opts.MaxRows > 0 && s.total > opts.MaxRows {
			return nil, ErrTooManyRows
		}
	}
	return s, nil
}

// NewJSON parses a JSON array of contact objects whose keys match the CSV
// column names.
func NewJSON(body []byte, opts ParseOptions) (*Source, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyInput
	}
	var objects []json.RawMessage
	if err := json.Unmarshal(body, &objects); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if opts.MaxRows > 0 && len(objects) > opts.MaxRows {
		return nil, ErrTooManyRows
	}
	return &Source{format: formatJSON, objects: objects, total: len(objects)}, nil
}

func newCSVReader(body []byte) *csv.Reader {
	r := csv.NewReader(bytes.NewReader(body))
	r.TrimLeadingSpace = true
	return r
}

// Rows yields every non-empty data row in input order.
func (s *Source) Rows() iter.Seq[Row] {
	if s.format == formatJSON {
		return s.jsonRows
	}
	return s.csvRows
}

func (s *Source) csvRows(yield func(Row) bool) {
	r := newCSVReader(s.body)
	r.FieldsPerRecord = s.width
	if _, err := r.Read(); err != nil {
		return
	}
	idx := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return
		}
		idx++
		if err != nil {
			if !yield(Row{Index: idx, Err: &RowError{Row: idx, Reason: ReasonMalformedRow, Detail: rowErrDetail(err)}}) {
				return
			}
			continue
		}
		fields := make(map[string]string, len(s.header))
		for key, col := range s.header {
			fields[key] = rec[col]
		}
		row, ok := buildRow(idx, fields)
		if !ok {
			continue
		}
		if !yield(row) {
			return
		}
	}
}

func rowErrDetail(err error) string {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Err.Error()
	}
	return err.Error()
}

func (s *Source) jsonRows(yield func(Row) bool) {
	for i, raw := range s.objects {
		idx := i + 1
		fields, err := jsonFields(raw)
		if err != nil {
			if !yield(Row{Index: idx, Err: &RowError{Row: idx, Reason: ReasonMalformedRow, Detail: err.Error()}}) {
				return
			}
			continue
		}
		row, ok := buildRow(idx, fields)
		if !ok {
			continue
		}
		if !yield(row) {
			return
		}
	}
}

// jsonFields flattens one contact object into column values. Strings and
// numbers are accepted; "courses" may also be an array of strings.
func jsonFields(raw json.RawMessage) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, errors.New("element is not an object")
	}
	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		key := strings.ToLower(strings.TrimSpace(k))
		switch val := v.(type) {
		case nil:
		case string:
			fields[key] = val
		case json.Number:
			fields[key] = val.String()
		case bool:
			return nil, fmt.Errorf("field %q is not text", k)
		case []any:
			if key != colCourses {
				return nil, fmt.Errorf("field %q is not text", k)
			}
			parts := make([]string, 0, len(val))
			for _, item := range val {
				str, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("field %q must hold strings", k)
				}
				parts = append(parts, str)
			}
			fields[key] = strings.Join(parts, ";")
		default:
			return nil, fmt.Errorf("field %q is not text", k)
		}
	}
	return fields, nil
}

// buildRow validates and normalizes one row. ok is false for rows with no
// content at all, which are skipped silently.
func buildRow(idx int, fields map[string]string) (Row, bool) {
	empty := true
	for _, v := range fields {
		if strings.TrimSpace(v) != "" {
			empty = false
			break
		}
	}
	if empty {
		return Row{}, false
	}

	name := normalize.Name(fields[colName])
	if name == "" {
		return Row{Index: idx, Err: &RowError{Row: idx, Reason: ReasonMissingName}}, true
	}

	email := strings.TrimSpace(fields[colEmail])
	if email != "" && !inputval.IsValidEmail(email) {
		return Row{Index: idx, Err: &RowError{Row: idx, Reason: ReasonInvalidEmail, Detail: email}}, true
	}

	c := Contact{
		Name:         name,
		Email:        email,
		EmailKey:     normalize.Email(email),
		Relationship: normalize.Relationship(fields[colRelationship]),
		CourseName:   normalize.Course(fields[colCourseName]),
	}
	for _, pair := range [][2]string{{colPhone1, colPhone1Type}, {colPhone2, colPhone2Type}} {
		num := strings.TrimSpace(fields[pair[0]])
		if normalize.PhoneDigits(num) == "" {
			continue
		}
		dup := false
		for _, p := range c.Phones {
			if normalize.PhoneDigits(p.Number) == normalize.PhoneDigits(num) {
				dup = true
				break
			}
		}
		if !dup {
			c.Phones = append(c.Phones, models.Phone{Number: num, Type: normalize.PhoneType(fields[pair[1]])})
		}
	}
	for _, course := range strings.Split(fields[colCourses], ";") {
		if course = normalize.Course(course); course != "" {
			c.Courses = append(c.Courses, course)
		}
	}
	return Row{Index: idx, Contact: c}, true
}
