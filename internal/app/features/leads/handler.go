// internal/app/features/leads/handler.go
package leads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	apierrors "github.com/dalemusser/leadtrack/internal/app/features/errors"
	"github.com/dalemusser/leadtrack/internal/app/merger"
	leadstore "github.com/dalemusser/leadtrack/internal/app/store/leads"
	"github.com/dalemusser/leadtrack/internal/app/system/auditlog"
	"github.com/dalemusser/leadtrack/internal/app/system/inputval"
	"github.com/dalemusser/leadtrack/internal/app/system/ratelimit"
	"github.com/dalemusser/leadtrack/internal/app/system/timeouts"
	"github.com/dalemusser/leadtrack/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Resolver follows merge links to the surviving lead.
type Resolver interface {
	Resolve(ctx context.Context, id primitive.ObjectID) (models.Lead, error)
}

// Handler serves lead merge and lookup.
type Handler struct {
	Merger *merger.Engine
	Leads  Resolver
	Audit  *auditlog.Logger
	Log    *zap.Logger
}

// NewHandler constructs a leads Handler. audit may be nil.
func NewHandler(m *merger.Engine, leads Resolver, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{Merger: m, Leads: leads, Audit: audit, Log: logger}
}

// HandleMerge handles POST /api/leads/merge.
//
// On success: 200 and { "success":true, "survivingLeadId":"…", "retiredLeadId":"…", … }
// On failure: { "success":false, "error":"not_found", "lastCompletedStep":"…" }
func (h *Handler) HandleMerge(w http.ResponseWriter, r *http.Request) {
	var body mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierrors.BadRequest(w, "invalid_body", "Request body must be a JSON object.")
		return
	}
	body.PrimaryLeadID = strings.TrimSpace(body.PrimaryLeadID)
	body.SecondaryLeadID = strings.TrimSpace(body.SecondaryLeadID)

	if res := inputval.Validate(body); res.HasErrors() {
		apierrors.BadRequest(w, "invalid_request", res.All())
		return
	}
	primaryID, _ := primitive.ObjectIDFromHex(strings.ToLower(body.PrimaryLeadID))
	secondaryID, _ := primitive.ObjectIDFromHex(strings.ToLower(body.SecondaryLeadID))

	rep, err := h.Merger.Merge(r.Context(), primaryID, secondaryID)
	if err != nil {
		reason := merger.Reason(err)
		h.Audit.MergeFailed(r.Context(), ratelimit.ClientIP(r), primaryID, secondaryID, reason, merger.LastCompleted(err))
		apierrors.Write(w, mergeStatus(reason), apierrors.Response{
			Error:             reason,
			Message:           err.Error(),
			LastCompletedStep: string(merger.LastCompleted(err)),
		})
		return
	}
	h.Audit.MergeCompleted(r.Context(), ratelimit.ClientIP(r), primaryID, secondaryID, rep)
	apierrors.WriteJSON(w, http.StatusOK, mergeResponse{Success: true, Report: rep})
}

// ServeLead handles GET /api/leads/{id}. A retired id resolves to the lead
// it was merged into.
func (h *Handler) ServeLead(w http.ResponseWriter, r *http.Request) {
	hex := strings.TrimSpace(chi.URLParam(r, "id"))
	if !inputval.IsValidObjectID(hex) {
		apierrors.BadRequest(w, "invalid_id", "Lead id must be a valid ID.")
		return
	}
	id, _ := primitive.ObjectIDFromHex(strings.ToLower(hex))

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	l, err := h.Leads.Resolve(ctx, id)
	if errors.Is(err, leadstore.ErrNotFound) {
		apierrors.Write(w, http.StatusNotFound, apierrors.Response{Error: "not_found"})
		return
	}
	if err != nil {
		h.Log.Error("resolve lead failed", zap.String("lead_id", id.Hex()), zap.Error(err))
		apierrors.Write(w, http.StatusServiceUnavailable, apierrors.Response{Error: "store_error"})
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, leadResponse{
		Success:     true,
		RequestedID: id.Hex(),
		Redirected:  l.ID != id,
		Lead:        l,
	})
}

func mergeStatus(reason string) int {
	switch reason {
	case "same_lead":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "concurrent_modification":
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
