// internal/app/importer/snapshot.go
package importer

import (
	"context"
	"fmt"

	"github.com/dalemusser/leadtrack/internal/app/system/csvutil"
	"github.com/dalemusser/leadtrack/internal/domain/models"
)

// LeadFinder loads the active leads that own any of the given normalized
// emails.
type LeadFinder interface {
	FindActiveByEmails(ctx context.Context, emails []string) ([]models.Lead, error)
}

// Snapshot is a read-only view of the active leads taken once per import.
// Writes made after it is built are not visible through it.
type Snapshot struct {
	byEmail map[string]models.Lead
}

// NewSnapshot indexes leads by normalized email. Retired leads and leads
// without an email are ignored. When several active leads share an email
// the oldest one is the match.
func NewSnapshot(leads []models.Lead) *Snapshot {
	s := &Snapshot{byEmail: make(map[string]models.Lead, len(leads))}
	for _, l := range leads {
		if !l.IsActive() || l.EmailCI == "" {
			continue
		}
		cur, ok := s.byEmail[l.EmailCI]
		if ok && !olderThan(l, cur) {
			continue
		}
		s.byEmail[l.EmailCI] = l.Clone()
	}
	return s
}

func olderThan(a, b models.Lead) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.Hex() < b.ID.Hex()
}

// Find returns the lead matching a normalized email. An empty email never
// matches.
func (s *Snapshot) Find(email string) (models.Lead, bool) {
	if s == nil || email == "" {
		return models.Lead{}, false
	}
	l, ok := s.byEmail[email]
	if !ok {
		return models.Lead{}, false
	}
	return l.Clone(), true
}

// Len returns the number of indexed emails.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byEmail)
}

// LoadSnapshot reads the leads matching every email in src with one batched
// query.
func LoadSnapshot(ctx context.Context, finder LeadFinder, src *csvutil.Source) (*Snapshot, error) {
	seen := map[string]bool{}
	var emails []string
	for row := range src.Rows() {
		if row.Err != nil || !row.Contact.HasEmail() || seen[row.Contact.EmailKey] {
			continue
		}
		seen[row.Contact.EmailKey] = true
		emails = append(emails, row.Contact.EmailKey)
	}
	if len(emails) == 0 {
		return NewSnapshot(nil), nil
	}
	leads, err := finder.FindActiveByEmails(ctx, emails)
	if err != nil {
		return nil, fmt.Errorf("load lead snapshot: %w", err)
	}
	return NewSnapshot(leads), nil
}
