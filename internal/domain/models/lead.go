// internal/domain/models/lead.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Lead statuses.
const (
	LeadStatusActive = "active"
	LeadStatusMerged = "merged"
)

// PhoneType says how a number may be used to reach a lead.
type PhoneType string

const (
	PhoneCalling PhoneType = "calling"
	PhoneChat    PhoneType = "chat"
	PhoneBoth    PhoneType = "both"
)

// Valid reports whether t is one of the known phone types.
func (t PhoneType) Valid() bool {
	switch t {
	case PhoneCalling, PhoneChat, PhoneBoth:
		return true
	}
	return false
}

// Phone is a single contact number on a lead.
type Phone struct {
	Number string    `bson:"number" json:"number"`
	Type   PhoneType `bson:"type" json:"type"`
}

// CommitmentSnapshot records what a lead said they would commit to.
// Completeness counts the filled sub-fields and decides which snapshot
// survives a merge.
type CommitmentSnapshot struct {
	Courses  []string `bson:"courses,omitempty" json:"courses,omitempty"`
	Price    string   `bson:"price,omitempty" json:"price,omitempty"`
	Schedule string   `bson:"schedule,omitempty" json:"schedule,omitempty"`
}

// Lead is a tracked contact.
//
// NOTE:
//   - EmailCI is the dedup key (lower-cased, trimmed). Email keeps the
//     casing it arrived with.
//   - Version is bumped on every write and used for conditional updates.
//   - Merged leads are never deleted; they keep MergedInto so stale links
//     can still resolve to the surviving lead.
type Lead struct {
	ID                 primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name               string              `bson:"name" json:"name"`
	NameCI             string              `bson:"name_ci" json:"name_ci"`
	Email              string              `bson:"email,omitempty" json:"email,omitempty"`
	EmailCI            string              `bson:"email_ci,omitempty" json:"email_ci,omitempty"`
	Phones             []Phone             `bson:"phones" json:"phones"`
	Courses            []string            `bson:"courses" json:"courses"`
	Relationship       string              `bson:"relationship" json:"relationship"`
	CommitmentSnapshot *CommitmentSnapshot `bson:"commitment_snapshot,omitempty" json:"commitment_snapshot,omitempty"`

	Status     string              `bson:"status" json:"status"` // active | merged
	AFCStep    int                 `bson:"afc_step" json:"afc_step"`
	MergedInto *primitive.ObjectID `bson:"merged_into,omitempty" json:"merged_into,omitempty"`
	RetiredAt  *time.Time          `bson:"retired_at,omitempty" json:"retired_at,omitempty"`
	Version    int64               `bson:"version" json:"version"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsActive reports whether the lead has not been retired by a merge.
func (l Lead) IsActive() bool {
	return l.Status != LeadStatusMerged
}

// Clone returns a deep copy so callers can mutate slices freely.
func (l Lead) Clone() Lead {
	out := l
	if l.Phones != nil {
		out.Phones = append([]Phone(nil), l.Phones...)
	}
	if l.Courses != nil {
		out.Courses = append([]string(nil), l.Courses...)
	}
	if l.CommitmentSnapshot != nil {
		cs := *l.CommitmentSnapshot
		cs.Courses = append([]string(nil), l.CommitmentSnapshot.Courses...)
		out.CommitmentSnapshot = &cs
	}
	if l.MergedInto != nil {
		id := *l.MergedInto
		out.MergedInto = &id
	}
	if l.RetiredAt != nil {
		t := *l.RetiredAt
		out.RetiredAt = &t
	}
	return out
}
