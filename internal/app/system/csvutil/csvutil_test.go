package csvutil

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dalemusser/leadtrack/internal/domain/models"
)

func collect(t *testing.T, s *Source) (contacts []Row, errs []Row) {
	t.Helper()
	for row := range s.Rows() {
		if row.Err != nil {
			errs = append(errs, row)
		} else {
			contacts = append(contacts, row)
		}
	}
	return contacts, errs
}

func TestNewCSV_ValidRows(t *testing.T) {
	csv := `name,email,phone1,phone1Type,phone2,phone2Type,relationship,courseName
John Doe,John@Example.com,555-1111,chat,,,Student,Piano
Jane Smith,jane@example.com,,,,,,
Bob Wilson,,5552222,,5553333,both,,`

	s, err := NewCSV([]byte(csv), DefaultParseOptions())
	if err != nil {
		t.Fatalf("NewCSV() error = %v", err)
	}
	rows, errs := collect(t, s)
	if len(rows) != 3 || len(errs) != 0 {
		t.Fatalf("got %d rows and %d errors, want 3 and 0", len(rows), len(errs))
	}

	john := rows[0].Contact
	if john.Name != "John Doe" {
		t.Errorf("Name = %q, want %q", john.Name, "John Doe")
	}
	if john.Email != "John@Example.com" {
		t.Errorf("Email = %q, want original casing", john.Email)
	}
	if john.EmailKey != "john@example.com" {
		t.Errorf("EmailKey = %q, want %q", john.EmailKey, "john@example.com")
	}
	if len(john.Phones) != 1 || john.Phones[0].Type != models.PhoneChat {
		t.Errorf("Phones = %v, want one chat phone", john.Phones)
	}
	if john.Relationship != "Student" || john.CourseName != "Piano" {
		t.Errorf("Relationship/CourseName = %q/%q", john.Relationship, john.CourseName)
	}

	if rows[1].Contact.Relationship != "" {
		t.Errorf("blank relationship should stay blank, got %q", rows[1].Contact.Relationship)
	}

	bob := rows[2].Contact
	if bob.HasEmail() {
		t.Errorf("Bob should have no email")
	}
	if len(bob.Phones) != 2 || bob.Phones[0].Type != models.PhoneCalling || bob.Phones[1].Type != models.PhoneBoth {
		t.Errorf("Bob phones = %v", bob.Phones)
	}
	if rows[2].Index != 3 {
		t.Errorf("Index = %d, want 3", rows[2].Index)
	}
}

func TestNewCSV_HeaderCaseAndOrder(t *testing.T) {
	csv := "Email , NAME\njo@x.com,Jo\n"
	s, err := NewCSV([]byte(csv), DefaultParseOptions())
	if err != nil {
		t.Fatalf("NewCSV() error = %v", err)
	}
	rows, _ := collect(t, s)
	if len(rows) != 1 || rows[0].Contact.Name != "Jo" || rows[0].Contact.EmailKey != "jo@x.com" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestNewCSV_MissingNameColumn(t *testing.T) {
	_, err := NewCSV([]byte("email,phone1\na@x.com,1\n"), DefaultParseOptions())
	if !errors.Is(err, ErrMissingNameColumn) {
		t.Errorf("NewCSV() error = %v, want ErrMissingNameColumn", err)
	}
}

func TestNewCSV_BOMHandling(t *testing.T) {
	csv := "\ufeffname,email\nJohn Doe,john@example.com"
	s, err := NewCSV([]byte(csv), DefaultParseOptions())
	if err != nil {
		t.Fatalf("NewCSV() error = %v", err)
	}
	rows, errs := collect(t, s)
	if len(rows) != 1 || len(errs) != 0 {
		t.Errorf("got %d rows, %d errors, want 1 and 0", len(rows), len(errs))
	}
}

func TestNewCSV_EmptyFile(t *testing.T) {
	_, err := NewCSV([]byte("  \n"), DefaultParseOptions())
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("NewCSV() error = %v, want ErrEmptyInput", err)
	}
}

func TestNewCSV_RowErrors(t *testing.T) {
	tests := []struct {
		name       string
		row        string
		wantReason string
	}{
		{"missing name", ",john@example.com", ReasonMissingName},
		{"whitespace name", "   ,john@example.com", ReasonMissingName},
		{"invalid email", "John,not-an-email", ReasonInvalidEmail},
		{"too many columns", "John,john@example.com,extra", ReasonMalformedRow},
		{"too few columns", "John", ReasonMalformedRow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewCSV([]byte("name,email\n"+tt.row+"\n"), DefaultParseOptions())
			if err != nil {
				t.Fatalf("NewCSV() error = %v", err)
			}
			rows, errs := collect(t, s)
			if len(rows) != 0 || len(errs) != 1 {
				t.Fatalf("got %d rows and %d errors, want 0 and 1", len(rows), len(errs))
			}
			if errs[0].Err.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", errs[0].Err.Reason, tt.wantReason)
			}
			if errs[0].Err.Row != 1 {
				t.Errorf("Row = %d, want 1", errs[0].Err.Row)
			}
		})
	}
}

func TestNewCSV_MalformedAmongValid(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("name,email\n")
	for i := 1; i <= 10; i++ {
		if i == 4 {
			sb.WriteString("Broken,b@x.com,extra\n")
			continue
		}
		fmt.Fprintf(&sb, "User %d,user%d@example.com\n", i, i)
	}

	s, err := NewCSV([]byte(sb.String()), DefaultParseOptions())
	if err != nil {
		t.Fatalf("NewCSV() error = %v", err)
	}
	rows, errs := collect(t, s)
	if len(rows) != 9 || len(errs) != 1 {
		t.Fatalf("got %d rows and %d errors, want 9 and 1", len(rows), len(errs))
	}
	if errs[0].Index != 4 || errs[0].Err.Reason != ReasonMalformedRow {
		t.Errorf("error row = %+v", errs[0].Err)
	}
	if rows[3].Index != 5 {
		t.Errorf("row after malformed has Index %d, want 5", rows[3].Index)
	}
}

func TestNewCSV_MaxRows(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("name,email\n")
	for i := 0; i < 10; i++ {
		sb.WriteString("User,user@example.com\n")
	}

	_, err := NewCSV([]byte(sb.String()), ParseOptions{MaxRows: 5})
	if !errors.Is(err, ErrTooManyRows) {
		t.Errorf("NewCSV() error = %v, want ErrTooManyRows", err)
	}
}

func TestNewCSV_SkipsEmptyRows(t *testing.T) {
	csv := `name,email
John Doe,john@example.com

,
Jane Smith,jane@example.com

`
	s, err := NewCSV([]byte(csv), DefaultParseOptions())
	if err != nil {
		t.Fatalf("NewCSV() error = %v", err)
	}
	rows, errs := collect(t, s)
	if len(rows) != 2 || len(errs) != 0 {
		t.Errorf("got %d rows and %d errors, want 2 and 0", len(rows), len(errs))
	}
}

func TestNewCSV_DuplicatePhoneInRow(t *testing.T) {
	csv := "name,phone1,phone2\nJo,(555) 111-1111,5551111111\n"
	s, err := NewCSV([]byte(csv), DefaultParseOptions())
	if err != nil {
		t.Fatalf("NewCSV() error = %v", err)
	}
	rows, _ := collect(t, s)
	if len(rows) != 1 || len(rows[0].Contact.Phones) != 1 {
		t.Errorf("rows = %+v, want one row with one phone", rows)
	}
}

func TestSource_RowsRestartable(t *testing.T) {
	csv := "name,email\nA,a@x.com\n,b@x.com\nC,c@x.com\n"
	s, err := NewCSV([]byte(csv), DefaultParseOptions())
	if err != nil {
		t.Fatalf("NewCSV() error = %v", err)
	}

	var first, second []Row
	for r := range s.Rows() {
		first = append(first, r)
	}
	for r := range s.Rows() {
		second = append(second, r)
	}
	if len(first) != 3 || len(first) != len(second) {
		t.Fatalf("passes yielded %d and %d rows", len(first), len(second))
	}
	for i := range first {
		if first[i].Index != second[i].Index || first[i].Contact.Name != second[i].Contact.Name {
			t.Errorf("row %d differs between passes", i)
		}
	}

	// Early break must not disturb later passes.
	for range s.Rows() {
		break
	}
	n := 0
	for range s.Rows() {
		n++
	}
	if n != 3 {
		t.Errorf("after early break got %d rows, want 3", n)
	}
}

func TestNewJSON(t *testing.T) {
	body := `[
		{"name": "Jo", "email": "JO@x.com", "phone1": 5551111, "phone1Type": "chat", "courseName": "Piano"},
		{"name": "", "email": "a@x.com"},
		"not an object",
		{"name": "Al", "courses": ["Voice", "Guitar"]},
		{"name": "Bad", "phone1": {"n": 1}}
	]`
	s, err := NewJSON([]byte(body), DefaultParseOptions())
	if err != nil {
		t.Fatalf("NewJSON() error = %v", err)
	}
	if s.Len() != 5 {
		t.Errorf("Len() = %d, want 5", s.Len())
	}
	rows, errs := collect(t, s)
	if len(rows) != 2 || len(errs) != 3 {
		t.Fatalf("got %d rows and %d errors, want 2 and 3", len(rows), len(errs))
	}
	jo := rows[0].Contact
	if jo.EmailKey != "jo@x.com" || jo.Phones[0].Number != "5551111" || jo.CourseName != "Piano" {
		t.Errorf("jo = %+v", jo)
	}
	if got := rows[1].Contact.Courses; len(got) != 2 || got[0] != "Voice" {
		t.Errorf("courses = %v", got)
	}
	wantReasons := []string{ReasonMissingName, ReasonMalformedRow, ReasonMalformedRow}
	for i, w := range wantReasons {
		if errs[i].Err.Reason != w {
			t.Errorf("errs[%d].Reason = %q, want %q", i, errs[i].Err.Reason, w)
		}
	}
}

func TestNewJSON_Invalid(t *testing.T) {
	for _, body := range []string{`{"name":"Jo"}`, `[{"name":`, `nope`} {
		_, err := NewJSON([]byte(body), DefaultParseOptions())
		if !errors.Is(err, ErrInvalidJSON) {
			t.Errorf("NewJSON(%q) error = %v, want ErrInvalidJSON", body, err)
		}
	}
}

func TestNewJSON_MaxRows(t *testing.T) {
	_, err := NewJSON([]byte(`[{"name":"a"},{"name":"b"},{"name":"c"}]`), ParseOptions{MaxRows: 2})
	if !errors.Is(err, ErrTooManyRows) {
		t.Errorf("NewJSON() error = %v, want ErrTooManyRows", err)
	}
}
