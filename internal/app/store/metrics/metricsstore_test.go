package metricsstore_test

import (
	"testing"
	"time"

	metricsstore "github.com/dalemusser/leadtrack/internal/app/store/metrics"
	"github.com/dalemusser/leadtrack/internal/domain/models"
	"github.com/dalemusser/leadtrack/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
)

func TestFetchLeadCounts_Empty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	counts := metricsstore.FetchLeadCounts(ctx, db)

	if counts.ActiveLeads != 0 {
		t.Errorf("ActiveLeads: got %d, want 0", counts.ActiveLeads)
	}
	if counts.MergedLeads != 0 {
		t.Errorf("MergedLeads: got %d, want 0", counts.MergedLeads)
	}
	if counts.OpenTasks != 0 {
		t.Errorf("OpenTasks: got %d, want 0", counts.OpenTasks)
	}
}

func TestFetchLeadCounts_WithData(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := fixtures.CreateLead(ctx, "Ann", "ann@example.com")
	fixtures.CreateLead(ctx, "Bob", "bob@example.com")

	retired := testutil.NewLead("Ann Two", "ann@example.com")
	retired.Status = models.LeadStatusMerged
	retired.MergedInto = &a.ID
	now := time.Now().UTC()
	retired.RetiredAt = &now
	fixtures.InsertLead(ctx, retired)

	fixtures.CreateTask(ctx, a.ID, "call back")
	done := fixtures.CreateTask(ctx, a.ID, "send brochure")
	if _, err := db.Collection("tasks").UpdateOne(ctx, bson.M{"_id": done.ID}, bson.M{"$set": bson.M{"completed": true}}); err != nil {
		t.Fatalf("complete task: %v", err)
	}

	counts := metricsstore.FetchLeadCounts(ctx, db)

	if counts.ActiveLeads != 2 {
		t.Errorf("ActiveLeads: got %d, want 2", counts.ActiveLeads)
	}
	if counts.MergedLeads != 1 {
		t.Errorf("MergedLeads: got %d, want 1", counts.MergedLeads)
	}
	if counts.OpenTasks != 1 {
		t.Errorf("OpenTasks: got %d, want 1", counts.OpenTasks)
	}
}
