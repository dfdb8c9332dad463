// internal/app/features/imports/handler.go
package imports

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	apierrors "github.com/dalemusser/leadtrack/internal/app/features/errors"
	"github.com/dalemusser/leadtrack/internal/app/importer"
	"github.com/dalemusser/leadtrack/internal/app/system/auditlog"
	"github.com/dalemusser/leadtrack/internal/app/system/csvutil"
	"github.com/dalemusser/leadtrack/internal/app/system/inputval"
	"github.com/dalemusser/leadtrack/internal/app/system/ratelimit"
	"go.uber.org/zap"
)

// Handler serves contact imports.
type Handler struct {
	Service *importer.Service
	Audit   *auditlog.Logger
	Log     *zap.Logger
}

// NewHandler constructs an imports Handler. audit may be nil.
func NewHandler(svc *importer.Service, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{Service: svc, Audit: audit, Log: logger}
}

// HandleImport handles POST /api/imports.
//
// On success: 200 and { "success":true, "runId":"…", "counts":{…}, "rows":[…], "rowErrors":[…] }
// On a request-level failure: 4xx/5xx and { "success":false, "error":"<reason>" }
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, csvutil.MaxUploadSize)

	var body importRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			apierrors.Write(w, http.StatusRequestEntityTooLarge, apierrors.Response{
				Error:   "too_large",
				Message: "Request body exceeds the upload limit.",
			})
			return
		}
		apierrors.BadRequest(w, "invalid_body", "Request body must be a JSON object.")
		return
	}

	if res := inputval.Validate(importInput{DefaultRelationship: body.DefaultRelationship}); res.HasErrors() {
		apierrors.BadRequest(w, "invalid_request", res.All())
		return
	}

	data, err := body.jsonBytes()
	if err != nil {
		apierrors.BadRequest(w, "invalid_json", err.Error())
		return
	}

	h.run(w, r, importer.Request{
		JSONData:            data,
		CSVText:             body.CSVText,
		IsNew:               body.IsNew,
		DryRun:              body.DryRun,
		DefaultRelationship: strings.TrimSpace(body.DefaultRelationship),
	})
}

// HandleUploadCSV handles POST /api/imports/csv as a multipart upload with
// a "csv" file field and optional isNew, dryRun and defaultRelationship
// form fields.
func (h *Handler) HandleUploadCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, csvutil.MaxUploadSize)
	if err := r.ParseMultipartForm(csvutil.MaxUploadSize); err != nil {
		apierrors.BadRequest(w, "invalid_upload", "Upload must be multipart form data under 5 MB.")
		return
	}

	file, _, err := r.FormFile("csv")
	if err != nil {
		apierrors.BadRequest(w, "no_input", "A CSV file is required.")
		return
	}
	defer file.Close()

	text, err := io.ReadAll(file)
	if err != nil {
		h.Log.Warn("read csv upload failed", zap.Error(err))
		apierrors.BadRequest(w, "invalid_upload", "Could not read the uploaded file.")
		return
	}

	isNew, err1 := parseFlag(r.FormValue("isNew"))
	dryRun, err2 := parseFlag(r.FormValue("dryRun"))
	if err := errors.Join(err1, err2); err != nil {
		apierrors.BadRequest(w, "invalid_request", "isNew and dryRun must be true or false.")
		return
	}

	rel := strings.TrimSpace(r.FormValue("defaultRelationship"))
	if res := inputval.Validate(importInput{DefaultRelationship: rel}); res.HasErrors() {
		apierrors.BadRequest(w, "invalid_request", res.All())
		return
	}

	h.run(w, r, importer.Request{
		CSVText:             string(text),
		IsNew:               isNew,
		DryRun:              dryRun,
		DefaultRelationship: rel,
	})
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, req importer.Request) {
	rep, err := h.Service.Import(r.Context(), req)
	if err != nil {
		reason := importer.ErrorReason(err)
		h.Log.Info("import rejected", zap.String("reason", reason), zap.Error(err))
		h.Audit.ImportRejected(r.Context(), ratelimit.ClientIP(r), reason)
		apierrors.Write(w, statusFor(reason), apierrors.Response{Error: reason, Message: err.Error()})
		return
	}
	if !rep.DryRun {
		h.Audit.ImportCommitted(r.Context(), ratelimit.ClientIP(r), rep)
	}
	apierrors.WriteJSON(w, http.StatusOK, importResponse{Success: true, Report: rep})
}

func statusFor(reason string) int {
	switch reason {
	case "too_many_rows":
		return http.StatusRequestEntityTooLarge
	case "store_error":
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

func parseFlag(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, nil
	}
	if s == "on" {
		return true, nil
	}
	return strconv.ParseBool(s)
}
