// internal/app/store/metrics/metricsstore.go
package metricsstore

import (
	"context"

	"github.com/dalemusser/leadtrack/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Counts is the set of population totals exported as gauges.
type Counts struct {
	ActiveLeads int64
	MergedLeads int64
	OpenTasks   int64
}

// FetchLeadCounts returns the lead and task totals.
// Intentionally tolerant: on error it returns 0 for that counter.
func FetchLeadCounts(ctx context.Context, db *mongo.Database) Counts {
	var out Counts

	leads := db.Collection("leads")
	if n, err := leads.CountDocuments(ctx, bson.M{"status": models.LeadStatusActive}); err == nil {
		out.ActiveLeads = n
	}
	if n, err := leads.CountDocuments(ctx, bson.M{"status": models.LeadStatusMerged}); err == nil {
		out.MergedLeads = n
	}
	if n, err := db.Collection("tasks").CountDocuments(ctx, bson.M{"completed": false}); err == nil {
		out.OpenTasks = n
	}
	return out
}
