package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	leadstore "github.com/dalemusser/leadtrack/internal/app/store/leads"
	"github.com/dalemusser/leadtrack/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemStore is an in-memory lead and task store with the same contracts as
// the Mongo stores. Batches are applied all-or-nothing under one lock
// unless NonAtomic is set.
//
// The Fail*/BeforeApply hooks inject failures; they are read without locking
// and must be set before the store is shared.
type MemStore struct {
	mu    sync.Mutex
	leads map[primitive.ObjectID]models.Lead
	tasks map[primitive.ObjectID]models.Task

	// BeforeApply runs before each ApplyBatch; a non-nil error fails the batch.
	BeforeApply func(writes []leadstore.Write) error
	FailReplace error
	FailRelink  error
	FailRetire  error
	FailCreate  error
	// NonAtomic applies batch writes one by one, like a server without
	// transactions, and reports partial failures as *leadstore.PartialBatchError.
	NonAtomic bool

	applyCalls  int
	readCalls   int
	writesCount int
}

// NewMemStore returns an empty store seeded with leads.
func NewMemStore(leads ...models.Lead) *MemStore {
	m := &MemStore{
		leads: map[primitive.ObjectID]models.Lead{},
		tasks: map[primitive.ObjectID]models.Task{},
	}
	for _, l := range leads {
		m.leads[l.ID] = l.Clone()
	}
	return m
}

// PutLead stores l as given, replacing any lead with the same id.
func (m *MemStore) PutLead(l models.Lead) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[l.ID] = l.Clone()
}

// PutTask stores t as given.
func (m *MemStore) PutTask(t models.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
}

// Lead returns the stored lead with id.
func (m *MemStore) Lead(id primitive.ObjectID) (models.Lead, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	return l.Clone(), ok
}

// Leads returns every stored lead ordered by creation time.
func (m *MemStore) Leads() []models.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Lead, 0, len(m.leads))
	for _, l := range m.leads {
		out = append(out, l.Clone())
	}
	sortLeads(out)
	return out
}

// Tasks returns every stored task.
func (m *MemStore) Tasks() []models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ApplyCalls reports how many times ApplyBatch was called.
func (m *MemStore) ApplyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyCalls
}

// Writes reports how many mutations have been committed.
func (m *MemStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writesCount
}

// Reads reports how many read calls were served.
func (m *MemStore) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readCalls
}

func sortLeads(ls []models.Lead) {
	sort.Slice(ls, func(i, j int) bool {
		if !ls[i].CreatedAt.Equal(ls[j].CreatedAt) {
			return ls[i].CreatedAt.Before(ls[j].CreatedAt)
		}
		return ls[i].ID.Hex() < ls[j].ID.Hex()
	})
}

/* ------------------------------- leads -------------------------------- */

func (m *MemStore) GetByID(_ context.Context, id primitive.ObjectID) (models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCalls++
	l, ok := m.leads[id]
	if !ok {
		return models.Lead{}, leadstore.ErrNotFound
	}
	return l.Clone(), nil
}

func (m *MemStore) FindActiveByEmail(ctx context.Context, email string) (models.Lead, error) {
	found, err := m.FindActiveByEmails(ctx, []string{email})
	if err != nil {
		return models.Lead{}, err
	}
	if len(found) == 0 {
		return models.Lead{}, leadstore.ErrNotFound
	}
	sortLeads(found)
	return found[0], nil
}

func (m *MemStore) FindActiveByEmails(_ context.Context, emails []string) ([]models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCalls++
	want := make(map[string]bool, len(emails))
	for _, e := range emails {
		if e != "" {
			want[e] = true
		}
	}
	var out []models.Lead
	for _, l := range m.leads {
		if l.IsActive() && want[l.EmailCI] {
			out = append(out, l.Clone())
		}
	}
	sortLeads(out)
	return out, nil
}

func (m *MemStore) ApplyBatch(_ context.Context, writes []leadstore.Write) error {
	if m.BeforeApply != nil {
		if err := m.BeforeApply(writes); err != nil {
			m.mu.Lock()
			m.applyCalls++
			m.mu.Unlock()
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++

	now := time.Now().UTC()
	if m.NonAtomic {
		return m.applySequential(writes, now)
	}
	staged := make(map[primitive.ObjectID]models.Lead, len(writes))
	for _, w := range writes {
		l, err := m.stageWrite(staged, w, now)
		if err != nil {
			return err
		}
		staged[l.ID] = l
	}
	for id, l := range staged {
		m.leads[id] = l
	}
	m.writesCount += len(writes)
	return nil
}

// applySequential mirrors the Mongo store without transactions: inserts
// then updates, each stored as soon as it succeeds. Caller holds m.mu.
func (m *MemStore) applySequential(writes []leadstore.Write, now time.Time) error {
	var applied []int
	for _, kind := range []leadstore.WriteKind{leadstore.WriteInsert, leadstore.WriteUpdate} {
		for i, w := range writes {
			if w.Kind != kind {
				continue
			}
			l, err := m.stageWrite(m.leads, w, now)
			if err != nil {
				if len(applied) == 0 {
					return err
				}
				return &leadstore.PartialBatchError{Applied: applied, Err: err}
			}
			m.leads[l.ID] = l
			m.writesCount++
			applied = append(applied, i)
		}
	}
	return nil
}

// stageWrite returns the lead w produces, reading pending state from view
// before the committed leads. Caller holds m.mu.
func (m *MemStore) stageWrite(view map[primitive.ObjectID]models.Lead, w leadstore.Write, now time.Time) (models.Lead, error) {
	switch w.Kind {
	case leadstore.WriteInsert:
		if _, dup := m.leads[w.Lead.ID]; dup {
			return models.Lead{}, fmt.Errorf("insert lead %s: duplicate id", w.Lead.ID.Hex())
		}
		l := w.Lead.Clone()
		l.NameCI = text.Fold(l.Name)
		if l.Status == "" {
			l.Status = models.LeadStatusActive
		}
		l.Version = 1
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		l.UpdatedAt = now
		return l, nil
	case leadstore.WriteUpdate:
		cur, ok := view[w.Lead.ID]
		if !ok {
			cur, ok = m.leads[w.Lead.ID]
		}
		if !ok || !cur.IsActive() || cur.Version != w.ExpectVersion {
			return models.Lead{}, fmt.Errorf("update lead %s: %w", w.Lead.ID.Hex(), leadstore.ErrConcurrentModification)
		}
		cur = cur.Clone()
		cur.Phones = append([]models.Phone{}, w.Lead.Phones...)
		cur.Courses = append([]string{}, w.Lead.Courses...)
		if w.Lead.Relationship != "" {
			cur.Relationship = w.Lead.Relationship
		}
		cur.Version++
		cur.UpdatedAt = now
		return cur, nil
	}
	return models.Lead{}, fmt.Errorf("unknown write kind %d", w.Kind)
}

func (m *MemStore) ReplaceIfVersion(_ context.Context, l models.Lead, expect int64) (models.Lead, error) {
	if m.FailReplace != nil {
		return models.Lead{}, m.FailReplace
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.leads[l.ID]
	if !ok || !cur.IsActive() || cur.Version != expect {
		return models.Lead{}, leadstore.ErrConcurrentModification
	}
	next := cur.Clone()
	next.Name = l.Name
	next.NameCI = text.Fold(l.Name)
	next.Email = l.Email
	next.EmailCI = l.EmailCI
	next.Phones = append([]models.Phone{}, l.Phones...)
	next.Courses = append([]string{}, l.Courses...)
	next.Relationship = l.Relationship
	next.CommitmentSnapshot = l.Clone().CommitmentSnapshot
	next.Version++
	next.UpdatedAt = time.Now().UTC()
	m.leads[l.ID] = next
	m.writesCount++
	return next.Clone(), nil
}

func (m *MemStore) Retire(_ context.Context, id, successor primitive.ObjectID, expect int64, at time.Time) error {
	if m.FailRetire != nil {
		return m.FailRetire
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.leads[id]
	if !ok || !cur.IsActive() || cur.Version != expect {
		return leadstore.ErrConcurrentModification
	}
	succ := successor
	retired := at.UTC()
	cur.Status = models.LeadStatusMerged
	cur.MergedInto = &succ
	cur.RetiredAt = &retired
	cur.Version++
	cur.UpdatedAt = retired
	m.leads[id] = cur
	m.writesCount++
	return nil
}

func (m *MemStore) SetAFCStep(_ context.Context, id primitive.ObjectID, step int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.leads[id]
	if !ok {
		return leadstore.ErrNotFound
	}
	cur.AFCStep = step
	m.leads[id] = cur
	m.writesCount++
	return nil
}

func (m *MemStore) Resolve(ctx context.Context, id primitive.ObjectID) (models.Lead, error) {
	seen := map[primitive.ObjectID]bool{}
	for {
		l, err := m.GetByID(ctx, id)
		if err != nil {
			return models.Lead{}, err
		}
		if l.IsActive() || l.MergedInto == nil || seen[*l.MergedInto] {
			return l, nil
		}
		seen[id] = true
		id = *l.MergedInto
	}
}

/* ------------------------------- tasks -------------------------------- */

func (m *MemStore) Create(_ context.Context, t models.Task) (models.Task, error) {
	if m.FailCreate != nil {
		return models.Task{}, m.FailCreate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	m.tasks[t.ID] = t
	m.writesCount++
	return t, nil
}

func (m *MemStore) ListByLeadID(_ context.Context, leadID primitive.ObjectID) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCalls++
	out := []models.Task{}
	for _, t := range m.tasks {
		if t.LeadID == leadID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) Relink(_ context.Context, ids []primitive.ObjectID, from, to primitive.ObjectID, leadName string) (int64, error) {
	if m.FailRelink != nil {
		return 0, m.FailRelink
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		t, ok := m.tasks[id]
		if !ok || t.LeadID != from {
			continue
		}
		t.LeadID = to
		t.LeadName = leadName
		t.UpdatedAt = time.Now().UTC()
		m.tasks[id] = t
		n++
	}
	m.writesCount += int(n)
	return n, nil
}
