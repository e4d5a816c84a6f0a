package imports

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"lot-bulk-import/cache"
	"lot-bulk-import/common"
	"lot-bulk-import/crm"
	"lot-bulk-import/exports"
	"lot-bulk-import/lots"
	"lot-bulk-import/parsers"
	"lot-bulk-import/wizard"
)

// Env bundles the collaborators the wizard handlers need. Built once at
// startup and shared; each session's mutable state lives in the registry.
type Env struct {
	Registry *wizard.Registry
	CRM      *crm.Client
	Cache    *cache.QueryCache
}

// RegisterRoutes wires the wizard endpoints under the given group.
func RegisterRoutes(rg *gin.RouterGroup, env *Env) {
	rg.POST("", env.CreateSession)
	rg.GET("/:session_id", env.GetSession)
	rg.PUT("/:session_id/mapping", env.SetMapping)
	rg.POST("/:session_id/preview", env.Preview)
	rg.POST("/:session_id/submit", env.Submit)
	rg.GET("/:session_id/results", env.Results)
	rg.GET("/:session_id/report", env.DownloadReport)
	rg.DELETE("/:session_id", env.Dismiss)
}

// CreateSession accepts a multipart spreadsheet upload, parses it and opens
// a wizard session on the mapping step. Any parse failure is returned to the
// caller with no session created, which is the upload-step equivalent of
// "no partial state is retained".
func (env *Env) CreateSession(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is required"})
		return
	}
	defer file.Close()

	format, err := parsers.DetectFormat(header.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	headers, records, errs := parsers.Parse(format, file)
	rows, err := parsers.Collect(records, errs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse file: " + err.Error()})
		return
	}
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File has no header row"})
		return
	}

	session := env.Registry.Create()
	suggested := session.AttachFile(header.Filename, headers, rows)

	// Resolve the acting user's parks so the conditional park-name rule is
	// enforced from the first mapping validation. If the lookup fails the
	// rule is enforced again at submit time, where it is fatal.
	if parks, err := env.CRM.ListParks(c.Request.Context()); err != nil {
		log.Printf("Failed to list parks for session %s: %v", session.ID, err)
	} else {
		session.SetParkCount(len(parks))
	}

	record := common.ImportSessionRecord{
		ID:        session.ID,
		FileName:  header.Filename,
		Status:    common.SessionStatusOpen,
		TotalRows: session.RowCount(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if db := common.GetDB(); db != nil {
		db.Create(&record)
	}

	c.Set("rows_processed", session.RowCount())
	c.JSON(http.StatusCreated, gin.H{
		"session_id":        session.ID,
		"step":              session.Step(),
		"file_name":         header.Filename,
		"headers":           headers,
		"fields":            lots.Fields(),
		"suggested_mapping": suggested,
		"total_rows":        session.RowCount(),
		"park_count":        session.ParkCount(),
	})
}

// GetSession reports the session's step and progress for polling.
func (env *Env) GetSession(c *gin.Context) {
	session, ok := env.Registry.Get(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Import session not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":      session.ID,
		"step":            session.Step(),
		"progress":        session.Progress(),
		"file_name":       session.FileName(),
		"total_rows":      session.RowCount(),
		"projected_count": session.ProjectedCount(),
		"failure":         session.Failure(),
	})
}

type setMappingRequest struct {
	Mapping map[string]string `json:"mapping" binding:"required"`
}

// SetMapping replaces the active column mapping and reports whether it is
// complete enough to advance.
func (env *Env) SetMapping(c *gin.Context) {
	session, ok := env.Registry.Get(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Import session not found"})
		return
	}

	var req setMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mapping := lots.ColumnMapping(req.Mapping)
	if err := session.SetMapping(mapping); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	issues := mapping.Validate(session.Headers(), session.ParkCount())
	c.JSON(http.StatusOK, gin.H{
		"step":   session.Step(),
		"valid":  len(issues) == 0,
		"issues": issues,
	})
}

// Preview validates the mapping, freezes the projected set and returns the
// capped preview with an overflow count.
func (env *Env) Preview(c *gin.Context) {
	session, ok := env.Registry.Get(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Import session not found"})
		return
	}

	if issues := session.AdvanceToPreview(); len(issues) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Mapping is incomplete",
			"issues": issues,
		})
		return
	}

	rows, overflow, err := session.Preview()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"step":            session.Step(),
		"rows":            rows,
		"overflow":        overflow,
		"projected_count": session.ProjectedCount(),
	})
}

// Submit issues the single batch call for the frozen projected set. The call
// runs in the background; callers poll GetSession for progress and fetch the
// reconciliation from Results.
func (env *Env) Submit(c *gin.Context) {
	session, ok := env.Registry.Get(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Import session not found"})
		return
	}

	// Fail fast on a lapsed outbound credential, before any network call
	if common.TokenExpired(env.CRM.Token) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "CRM credential has expired; refresh it and retry"})
		return
	}

	// Re-resolve the park count so the conditional mandatory rule reflects
	// the latest server state before anything is sent
	if parks, err := env.CRM.ListParks(c.Request.Context()); err != nil {
		log.Printf("Failed to refresh parks for session %s: %v", session.ID, err)
	} else {
		session.SetParkCount(len(parks))
	}

	items, err := session.BeginImport()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	if db := common.GetDB(); db != nil {
		db.Model(&common.ImportSessionRecord{}).Where("id = ?", session.ID).
			Updates(map[string]interface{}{
				"status":         common.SessionStatusImporting,
				"projected_rows": len(items),
				"updated_at":     time.Now(),
			})
	}

	go env.processSubmit(session, items)

	c.Set("rows_processed", len(items))
	c.JSON(http.StatusAccepted, gin.H{
		"step":            session.Step(),
		"projected_count": len(items),
	})
}

// processSubmit runs the batch call and reconciles the outcome. There is no
// server-side cancellation: dismissing the session only discards its UI
// tracking, so this uses a fresh context rather than the request's.
func (env *Env) processSubmit(session *wizard.Session, items []lots.ProjectedRecord) {
	result, err := env.CRM.SubmitLots(context.Background(), items)
	now := time.Now()

	if err != nil {
		session.FailImport(err)
		log.Printf("Import session %s failed: %v", session.ID, err)

		if db := common.GetDB(); db != nil {
			db.Model(&common.ImportSessionRecord{}).Where("id = ?", session.ID).
				Updates(map[string]interface{}{
					"status":       common.SessionStatusFailed,
					"errors":       errorJSON(err),
					"updated_at":   now,
					"completed_at": &now,
				})
		}
		return
	}

	session.CompleteImport(result)

	// Listing views must reflect the import the next time they are read
	env.Cache.InvalidateResource("lots")

	if db := common.GetDB(); db != nil {
		updates := map[string]interface{}{
			"status":        common.SessionStatusCompleted,
			"success_count": len(result.Successful),
			"fail_count":    len(result.Failed),
			"warning_count": len(result.Warnings),
			"updated_at":    now,
			"completed_at":  &now,
		}
		if len(result.Failed) > 0 {
			if data, err := json.Marshal(result.Failed); err == nil {
				updates["errors"] = string(data)
			}
		}
		db.Model(&common.ImportSessionRecord{}).Where("id = ?", session.ID).Updates(updates)
	}

	log.Printf("Import session %s completed: %s", session.ID, result.Summary())
}

// Results returns the backend's per-row reconciliation plus display counts.
func (env *Env) Results(c *gin.Context) {
	session, ok := env.Registry.Get(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Import session not found"})
		return
	}

	result, err := session.Result()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"step":          session.Step(),
		"summary":       result.Summary(),
		"successful":    len(result.Successful),
		"failed":        result.Failed,
		"warnings":      result.Warnings,
		"assigned_park": result.AssignedPark,
	})
}

// DownloadReport streams the per-row failure/warning report as CSV.
func (env *Env) DownloadReport(c *gin.Context) {
	session, ok := env.Registry.Get(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Import session not found"})
		return
	}

	result, err := session.Result()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	exports.StreamErrorReport(c, session.ID, result)
}

// Dismiss closes the wizard: the progress ticker is cleared, all session
// state is discarded, and any in-flight submission keeps running server-side
// without UI tracking.
func (env *Env) Dismiss(c *gin.Context) {
	id := c.Param("session_id")
	if !env.Registry.Remove(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Import session not found"})
		return
	}

	if db := common.GetDB(); db != nil {
		db.Model(&common.ImportSessionRecord{}).Where("id = ? AND status NOT IN ?", id,
			[]string{common.SessionStatusCompleted, common.SessionStatusFailed}).
			Updates(map[string]interface{}{
				"status":     common.SessionStatusAbandoned,
				"updated_at": time.Now(),
			})
	}

	c.Status(http.StatusNoContent)
}

// ListLots is the cached passthrough for the lot listing. It lives next to
// the import handlers because a successful import is what invalidates it.
func (env *Env) ListLots(c *gin.Context) {
	park := c.Query("park")
	key := "lots"
	if park != "" {
		// Key by the exact filter value; anything lossy here would let
		// distinct filters share an entry
		key += "?park=" + url.QueryEscape(park)
	}

	if cached, ok := env.Cache.Get(key); ok {
		c.Data(http.StatusOK, "application/json", cached.([]byte))
		return
	}

	raw, err := env.CRM.ListLots(c.Request.Context(), park)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	env.Cache.Set(key, []byte(raw))
	c.Data(http.StatusOK, "application/json", raw)
}

func errorJSON(err error) string {
	data, marshalErr := json.Marshal([]gin.H{{"error": err.Error()}})
	if marshalErr != nil {
		return ""
	}
	return string(data)
}
