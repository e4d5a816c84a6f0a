package crm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"lot-bulk-import/lots"
)

// Error code the backend uses when it cannot tell which park a batch belongs
// to and no park-name column was mapped.
const CodeMultipleParks = "MULTIPLE_PARKS"

// ErrMultipleParks distinguishes the ambiguous-park failure from generic
// submission errors so the wizard can show an actionable message.
var ErrMultipleParks = errors.New("you manage multiple parks: map a Park Name column so each lot can be assigned")

// RecordRef identifies one successfully imported lot
type RecordRef struct {
	ID           string `json:"id"`
	NameOrNumber string `json:"nameOrNumber"`
}

// RowError is a per-row failure reported by the backend
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// RowWarning is a per-row warning reported by the backend
type RowWarning struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult is the backend's per-row reconciliation of one batch import.
// It is returned verbatim; nothing in it is synthesized locally.
type ImportResult struct {
	Successful   []RecordRef  `json:"successful"`
	Failed       []RowError   `json:"failed"`
	Warnings     []RowWarning `json:"warnings"`
	AssignedPark string       `json:"assignedPark,omitempty"`
}

// Summary renders the counts the result reporter displays.
func (r *ImportResult) Summary() string {
	total := len(r.Successful) + len(r.Failed)
	return fmt.Sprintf("%d Successful, %d Failed, %d Total", len(r.Successful), len(r.Failed), total)
}

// SubmitLots sends the full projected set in one batch call. The ambiguous
// park condition is surfaced as ErrMultipleParks; every other failure comes
// back verbatim in the "<status>: <body>" form.
func (c *Client) SubmitLots(ctx context.Context, items []lots.ProjectedRecord) (*ImportResult, error) {
	payload := map[string]interface{}{"items": items}

	var result ImportResult
	if err := c.Do(ctx, http.MethodPost, "/api/v1/lots/bulk-import", payload, &result); err != nil {
		if ErrorCode(err) == CodeMultipleParks {
			return nil, ErrMultipleParks
		}
		return nil, err
	}
	return &result, nil
}
