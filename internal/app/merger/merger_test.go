package merger

import (
	"context"
	"errors"
	"testing"
	"time"

	leadstore "github.com/dalemusser/leadtrack/internal/app/store/leads"
	"github.com/dalemusser/leadtrack/internal/domain/models"
	"github.com/dalemusser/leadtrack/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	calling = models.PhoneCalling
	chat    = models.PhoneChat
)

func task(leadID primitive.ObjectID, desc string) models.Task {
	return models.Task{ID: primitive.NewObjectID(), LeadID: leadID, Description: desc, CreatedAt: time.Now()}
}

type outcomes struct{ got []string }

func (o *outcomes) ObserveMerge(outcome string) { o.got = append(o.got, outcome) }

func TestCompute_PhonesDedupPrimaryFirst(t *testing.T) {
	p := testutil.NewLead("P", "p@x.com", testutil.Phone("5551111", calling))
	s := testutil.NewLead("S", "s@x.com", testutil.Phone("5551111", calling), testutil.Phone("5552222", chat))

	merged, sum := Compute(p, s)
	assert.Equal(t, []models.Phone{testutil.Phone("5551111", calling), testutil.Phone("5552222", chat)}, merged.Phones)
	assert.Equal(t, 1, sum.PhonesAdded)
}

func TestCompute_EmptyFieldFallback(t *testing.T) {
	p := testutil.NewLead("P", "")
	p.Relationship = ""
	s := testutil.NewLead("S", "S@x.com")
	s.Relationship = "Student"

	merged, sum := Compute(p, s)
	assert.Equal(t, "P", merged.Name)
	assert.Equal(t, FromPrimary, sum.Name)
	assert.Equal(t, "S@x.com", merged.Email)
	assert.Equal(t, "s@x.com", merged.EmailCI)
	assert.Equal(t, FromSecondary, sum.Email)
	assert.Equal(t, "Student", merged.Relationship)
	assert.Equal(t, FromSecondary, sum.Relationship)
	assert.Equal(t, p.ID, merged.ID)
	assert.Equal(t, p.Version, merged.Version)
}

func TestCompute_Snapshot(t *testing.T) {
	p := testutil.NewLead("P", "p@x.com")
	s := testutil.NewLead("S", "s@x.com")

	p.CommitmentSnapshot = &models.CommitmentSnapshot{Price: "100"}
	s.CommitmentSnapshot = &models.CommitmentSnapshot{Schedule: "Mon"}
	merged, sum := Compute(p, s)
	assert.Equal(t, "100", merged.CommitmentSnapshot.Price, "tie goes to primary")
	assert.Equal(t, FromPrimary, sum.Snapshot)

	s.CommitmentSnapshot = &models.CommitmentSnapshot{Courses: []string{"Piano"}, Schedule: "Mon"}
	merged, sum = Compute(p, s)
	assert.Equal(t, "Mon", merged.CommitmentSnapshot.Schedule)
	assert.Equal(t, FromSecondary, sum.Snapshot)

	p.CommitmentSnapshot, s.CommitmentSnapshot = nil, nil
	merged, sum = Compute(p, s)
	assert.Nil(t, merged.CommitmentSnapshot)
	assert.Equal(t, FromNeither, sum.Snapshot)
}

func TestCompute_CommutativeContent(t *testing.T) {
	a := testutil.NewLead("A", "a@x.com", testutil.Phone("1", calling), testutil.Phone("2", chat))
	a.Courses = []string{"Piano", "Voice"}
	b := testutil.NewLead("B", "b@x.com", testutil.Phone("2", calling), testutil.Phone("3", models.PhoneBoth))
	b.Courses = []string{"voice", "Guitar"}

	ab, _ := Compute(a, b)
	ba, _ := Compute(b, a)

	digits := func(ps []models.Phone) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.Number
		}
		return out
	}
	assert.ElementsMatch(t, digits(ab.Phones), digits(ba.Phones))
	assert.Len(t, ab.Courses, 3)
	assert.Len(t, ba.Courses, 3)
	assert.NotEqual(t, ab.ID, ba.ID, "identity follows the primary")
}

func TestMerge_HappyPath(t *testing.T) {
	p := testutil.NewLead("P", "p@x.com", testutil.Phone("5551111", calling))
	s := testutil.NewLead("S", "s@x.com", testutil.Phone("5551111", calling), testutil.Phone("5552222", chat))
	s.Courses = []string{"Piano"}
	store := testutil.NewMemStore(p, s)
	t1, t2 := task(s.ID, "call back"), task(s.ID, "send brochure")
	other := task(p.ID, "already primary")
	store.PutTask(t1)
	store.PutTask(t2)
	store.PutTask(other)
	rec := &outcomes{}

	eng := New(store, store, rec, nil)
	rep, err := eng.Merge(t.Context(), p.ID, s.ID)
	require.NoError(t, err)

	assert.Equal(t, p.ID.Hex(), rep.SurvivingLeadID)
	assert.Equal(t, s.ID.Hex(), rep.RetiredLeadID)
	assert.EqualValues(t, 2, rep.RelinkedTaskCount)
	assert.Equal(t, 1, rep.MergedFields.PhonesAdded)
	assert.Equal(t, 1, rep.MergedFields.CoursesAdded)

	gotP, _ := store.Lead(p.ID)
	assert.Len(t, gotP.Phones, 2)
	assert.Equal(t, []string{"Piano"}, gotP.Courses)
	assert.Equal(t, p.Version+1, gotP.Version)
	assert.True(t, gotP.IsActive())

	gotS, _ := store.Lead(s.ID)
	assert.Equal(t, models.LeadStatusMerged, gotS.Status)
	require.NotNil(t, gotS.MergedInto)
	assert.Equal(t, p.ID, *gotS.MergedInto)
	assert.NotNil(t, gotS.RetiredAt)

	for _, tk := range store.Tasks() {
		assert.Equal(t, p.ID, tk.LeadID, "task %q", tk.Description)
	}

	resolved, err := store.Resolve(t.Context(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, resolved.ID)

	assert.Equal(t, []string{"ok"}, rec.got)
}

func TestMerge_Rejections(t *testing.T) {
	p := testutil.NewLead("P", "p@x.com")
	retired := testutil.NewLead("R", "r@x.com")
	retired.Status = models.LeadStatusMerged
	store := testutil.NewMemStore(p, retired)
	eng := New(store, store, nil, nil)

	tests := []struct {
		name      string
		primary   primitive.ObjectID
		secondary primitive.ObjectID
		reason    string
	}{
		{"same lead", p.ID, p.ID, "same_lead"},
		{"missing secondary", p.ID, primitive.NewObjectID(), "not_found"},
		{"missing primary", primitive.NewObjectID(), p.ID, "not_found"},
		{"retired secondary", p.ID, retired.ID, "not_found"},
		{"retired primary", retired.ID, p.ID, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Merge(t.Context(), tt.primary, tt.secondary)
			require.Error(t, err)
			assert.Equal(t, tt.reason, Reason(err))
		})
	}
	assert.Zero(t, store.Writes())
}

func TestMerge_StepFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		inject   func(*testutil.MemStore)
		step     Step
		last     Step
		primary  bool // primary was rewritten
		relinked bool
	}{
		{"write primary fails", func(m *testutil.MemStore) { m.FailReplace = boom }, StepWritePrimary, StepLoad, false, false},
		{"relink fails", func(m *testutil.MemStore) { m.FailRelink = boom }, StepRelinkTasks, StepWritePrimary, true, false},
		{"retire fails", func(m *testutil.MemStore) { m.FailRetire = boom }, StepRetireSecondary, StepRelinkTasks, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.NewLead("P", "p@x.com")
			s := testutil.NewLead("S", "s@x.com", testutil.Phone("5552222", chat))
			store := testutil.NewMemStore(p, s)
			tk := task(s.ID, "follow up")
			store.PutTask(tk)
			tt.inject(store)

			_, err := New(store, store, nil, nil).Merge(t.Context(), p.ID, s.ID)
			require.Error(t, err)

			var se *StepError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.step, se.Step)
			assert.Equal(t, tt.last, se.LastCompleted)
			assert.Equal(t, tt.last, LastCompleted(err))
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, "store_error", Reason(err))

			gotP, _ := store.Lead(p.ID)
			assert.Equal(t, tt.primary, len(gotP.Phones) == 1, "primary rewritten")

			gotS, _ := store.Lead(s.ID)
			assert.True(t, gotS.IsActive(), "secondary must stay active when a step fails")

			tasks := store.Tasks()
			require.Len(t, tasks, 1)
			assert.Equal(t, tt.relinked, tasks[0].LeadID == p.ID, "task relinked")
		})
	}
}

func TestMerge_ConcurrentModification(t *testing.T) {
	p := testutil.NewLead("P", "p@x.com")
	s := testutil.NewLead("S", "s@x.com")
	store := testutil.NewMemStore(p, s)

	// Simulate a writer that lands between load and write.
	eng := New(&bumpingStore{MemStore: store, bump: p.ID}, store, nil, nil)
	_, err := eng.Merge(t.Context(), p.ID, s.ID)
	require.Error(t, err)
	assert.Equal(t, "concurrent_modification", Reason(err))
	assert.ErrorIs(t, err, leadstore.ErrConcurrentModification)
	assert.Equal(t, StepLoad, LastCompleted(err))
}

// bumpingStore bumps the version of lead bump right after it is read.
type bumpingStore struct {
	*testutil.MemStore
	bump primitive.ObjectID
}

func (b *bumpingStore) GetByID(ctx context.Context, id primitive.ObjectID) (models.Lead, error) {
	l, err := b.MemStore.GetByID(ctx, id)
	if err == nil && id == b.bump {
		next := l.Clone()
		next.Version++
		b.MemStore.PutLead(next)
	}
	return l, err
}

func TestMerge_CallerCancelAfterPrimaryWrite(t *testing.T) {
	p := testutil.NewLead("P", "p@x.com")
	s := testutil.NewLead("S", "s@x.com", testutil.Phone("5552222", chat))
	mem := testutil.NewMemStore(p, s)
	mem.PutTask(task(s.ID, "follow up"))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	store := &cancelingStore{MemStore: mem, cancel: cancel}

	rep, err := New(store, store, nil, nil).Merge(ctx, p.ID, s.ID)
	require.NoError(t, err, "writes must finish once the primary is saved")
	assert.EqualValues(t, 1, rep.RelinkedTaskCount)
	assert.Error(t, ctx.Err(), "caller context was canceled mid-merge")

	gotS, _ := mem.Lead(s.ID)
	assert.Equal(t, models.LeadStatusMerged, gotS.Status)
	for _, tk := range mem.Tasks() {
		assert.Equal(t, p.ID, tk.LeadID)
	}
}

// cancelingStore honors ctx on every write and cancels the caller's
// context as soon as the primary has been replaced.
type cancelingStore struct {
	*testutil.MemStore
	cancel context.CancelFunc
}

func (c *cancelingStore) ReplaceIfVersion(ctx context.Context, l models.Lead, expect int64) (models.Lead, error) {
	if err := ctx.Err(); err != nil {
		return models.Lead{}, err
	}
	saved, err := c.MemStore.ReplaceIfVersion(ctx, l, expect)
	c.cancel()
	return saved, err
}

func (c *cancelingStore) ListByLeadID(ctx context.Context, leadID primitive.ObjectID) ([]models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.MemStore.ListByLeadID(ctx, leadID)
}

func (c *cancelingStore) Relink(ctx context.Context, ids []primitive.ObjectID, from, to primitive.ObjectID, leadName string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.MemStore.Relink(ctx, ids, from, to, leadName)
}

func (c *cancelingStore) Retire(ctx context.Context, id, successor primitive.ObjectID, expect int64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MemStore.Retire(ctx, id, successor, expect, at)
}
