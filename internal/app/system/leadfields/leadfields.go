// Package leadfields holds the conflict-resolution rules shared by import
// updates and lead merges. Every function here is pure and returns fresh
// slices; inputs are never modified.
package leadfields

import (
	"strings"

	"github.com/dalemusser/leadtrack/internal/app/system/normalize"
	"github.com/dalemusser/leadtrack/internal/domain/models"
)

// MergePhones returns base followed by every phone in extra whose digits do
// not already appear. The first occurrence of a number wins, including its
// type. Phones with no digits are dropped.
func MergePhones(base, extra []models.Phone) []models.Phone {
	out := make([]models.Phone, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	add := func(p models.Phone) {
		key := normalize.PhoneDigits(p.Number)
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	for _, p := range base {
		add(p)
	}
	for _, p := range extra {
		add(p)
	}
	return out
}

// AddedPhones counts how many phones in extra MergePhones would append to base.
func AddedPhones(base, extra []models.Phone) int {
	return len(MergePhones(base, extra)) - len(MergePhones(base, nil))
}

// UnionCourses returns the set union of a and b. Membership is compared on
// normalize.CourseKey; the first spelling seen is kept, a before b.
func UnionCourses(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, c := range list {
			key := normalize.CourseKey(c)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, normalize.Course(c))
		}
	}
	return out
}

// AddedCourses counts how many courses in extra UnionCourses would add to base.
func AddedCourses(base, extra []string) int {
	return len(UnionCourses(base, extra)) - len(UnionCourses(base, nil))
}

// Completeness scores a commitment snapshot: number of courses plus one
// for a price plus one for a schedule. A nil snapshot scores zero.
func Completeness(s *models.CommitmentSnapshot) int {
	if s == nil {
		return 0
	}
	n := 0
	for _, c := range s.Courses {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	if strings.TrimSpace(s.Price) != "" {
		n++
	}
	if strings.TrimSpace(s.Schedule) != "" {
		n++
	}
	return n
}

// PickSnapshot returns the more complete of primary and secondary. Ties go
// to primary. The result is a copy.
func PickSnapshot(primary, secondary *models.CommitmentSnapshot) *models.CommitmentSnapshot {
	pick := primary
	if Completeness(secondary) > Completeness(primary) {
		pick = secondary
	}
	if pick == nil {
		return nil
	}
	cp := *pick
	cp.Courses = append([]string(nil), pick.Courses...)
	return &cp
}

// PreferPrimary returns primary unless it is blank and secondary is not.
func PreferPrimary(primary, secondary string) string {
	if strings.TrimSpace(primary) == "" && strings.TrimSpace(secondary) != "" {
		return secondary
	}
	return primary
}
