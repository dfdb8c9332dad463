// internal/app/features/imports/types.go
package imports

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/dalemusser/leadtrack/internal/app/importer"
)

var errJSONDataType = errors.New("jsonData must be a JSON array or a string holding one")

// importRequest is the JSON body of POST /api/imports.
//
// jsonData may be sent either as an array of contact objects or as a
// string containing that array.
type importRequest struct {
	JSONData            json.RawMessage `json:"jsonData"`
	CSVText             string          `json:"csvText"`
	IsNew               bool            `json:"isNew"`
	DryRun              bool            `json:"dryRun"`
	DefaultRelationship string          `json:"defaultRelationship"`
}

// importInput carries the fields checked by inputval.
type importInput struct {
	DefaultRelationship string `validate:"max=64" label:"Default relationship"`
}

// jsonBytes returns the raw contact array, unwrapping a string form.
func (r importRequest) jsonBytes() ([]byte, error) {
	raw := bytes.TrimSpace(r.JSONData)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errJSONDataType
	}
	return []byte(s), nil
}

// importResponse wraps an import report for the wire.
type importResponse struct {
	Success bool `json:"success"`
	importer.Report
}
