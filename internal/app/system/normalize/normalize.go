// Package normalize holds the canonical forms used for matching and storing
// contact fields. Import and merge both go through these helpers so that two
// spellings of the same value compare equal.
package normalize

import (
	"strings"
	"unicode"

	"github.com/dalemusser/leadtrack/internal/app/system/htmlsanitize"
	"github.com/dalemusser/leadtrack/internal/domain/models"
)

// Email returns the dedup key for an email: trimmed and lower-cased.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Text trims s, strips any markup, and collapses internal whitespace runs to
// a single space. Case is preserved.
func Text(s string) string {
	s = htmlsanitize.PlainText(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

// Name normalizes a display name. Case is preserved.
func Name(s string) string {
	return Text(s)
}

// PhoneDigits returns only the digits of a phone number. Two numbers are the
// same number when their digits match.
func PhoneDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneType maps a free-text phone type onto the known set. Blank or
// unrecognized values default to calling.
func PhoneType(s string) models.PhoneType {
	t := models.PhoneType(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t
	}
	return models.PhoneCalling
}

// Relationship trims a relationship label; blank means "not supplied".
func Relationship(s string) string {
	return Text(s)
}

// Course normalizes a course name for storage.
func Course(s string) string {
	return Text(s)
}

// CourseKey is the membership key for a course name in a course set.
func CourseKey(s string) string {
	return strings.ToLower(Course(s))
}
