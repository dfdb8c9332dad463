// internal/app/features/leads/types.go
package leads

import (
	"github.com/dalemusser/leadtrack/internal/app/merger"
	"github.com/dalemusser/leadtrack/internal/domain/models"
)

// mergeRequest is the JSON body of POST /api/leads/merge.
type mergeRequest struct {
	PrimaryLeadID   string `json:"primaryLeadId" validate:"required,objectid" label:"primaryLeadId"`
	SecondaryLeadID string `json:"secondaryLeadId" validate:"required,objectid" label:"secondaryLeadId"`
}

type mergeResponse struct {
	Success bool `json:"success"`
	merger.Report
}

// leadResponse is returned by GET /api/leads/{id}. Redirected is true when
// the requested id was retired and the surviving lead is returned instead.
type leadResponse struct {
	Success     bool        `json:"success"`
	RequestedID string      `json:"requestedId"`
	Redirected  bool        `json:"redirected"`
	Lead        models.Lead `json:"lead"`
}
