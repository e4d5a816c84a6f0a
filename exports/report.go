// Package exports renders downloadable reports for finished import sessions.
// It is the slimmed-down counterpart of a full entity exporter: this service
// holds no entity tables, so the only thing worth exporting is the per-row
// failure/warning report the backend returned for a batch.
package exports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"lot-bulk-import/crm"
)

// WriteErrorReport writes per-row failures and warnings as CSV, one row per
// reported problem, with row numbers exactly as the backend returned them.
func WriteErrorReport(w io.Writer, result *crm.ImportResult) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write([]string{"row", "severity", "message"}); err != nil {
		return err
	}
	for _, f := range result.Failed {
		if err := csvWriter.Write([]string{strconv.Itoa(f.Row), "error", f.Error}); err != nil {
			return err
		}
	}
	for _, wrn := range result.Warnings {
		if err := csvWriter.Write([]string{strconv.Itoa(wrn.Row), "warning", wrn.Message}); err != nil {
			return err
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// StreamErrorReport sends the error report as a CSV attachment.
func StreamErrorReport(c *gin.Context, sessionID string, result *crm.ImportResult) {
	filename := fmt.Sprintf("import_errors_%s_%s.csv", sessionID, time.Now().Format("20060102_150405"))

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if err := WriteErrorReport(c.Writer, result); err != nil {
		c.Error(err)
	}
}
