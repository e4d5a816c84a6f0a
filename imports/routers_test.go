package imports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"lot-bulk-import/cache"
	"lot-bulk-import/common"
	"lot-bulk-import/crm"
	"lot-bulk-import/lots"
	"lot-bulk-import/wizard"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	common.TestDBInit()
	m.Run()
}

func newEnv(crmURL string) (*Env, *gin.Engine) {
	env := &Env{
		Registry: wizard.NewRegistry(),
		CRM:      crm.NewClient(crmURL, ""),
		Cache:    cache.New(),
	}

	r := gin.New()
	v1 := r.Group("/api/v1")
	RegisterRoutes(v1.Group("/imports"), env)
	v1.GET("/lots", env.ListLots)
	return env, r
}

func uploadFile(t *testing.T, router http.Handler, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fw, err := writer.CreateFormFile("file", filename)
	assert.NoError(t, err)
	_, err = fw.Write([]byte(content))
	assert.NoError(t, err)
	assert.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		assert.NoError(t, err)
		body = bytes.NewBuffer(data)
	} else {
		body = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// mapNameStatus sets the minimal mapping used throughout these tests.
func mapNameStatus(t *testing.T, router http.Handler, sessionID string) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPut, "/api/v1/imports/"+sessionID+"/mapping", gin.H{
		"mapping": gin.H{
			lots.FieldNameOrNumber: "Name",
			lots.FieldStatus:       "Status",
		},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["valid"])
}

func waitForStep(t *testing.T, router http.Handler, sessionID, step string) map[string]interface{} {
	t.Helper()

	var last map[string]interface{}
	assert.Eventually(t, func() bool {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/imports/"+sessionID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		last = decode(t, rec)
		return last["step"] == step
	}, 5*time.Second, 20*time.Millisecond, "session should reach step %q", step)
	return last
}

func TestCreateSession_UnsupportedExtension(t *testing.T) {
	_, router := newEnv("http://unused.invalid")

	rec := uploadFile(t, router, "lots.pdf", "whatever")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported file type")
}

func TestCreateSession_MalformedFileLeavesNoSession(t *testing.T) {
	crmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"parks":[]}`))
	}))
	defer crmSrv.Close()
	env, router := newEnv(crmSrv.URL)

	rec := uploadFile(t, router, "lots.csv", "Name,Status\n\"broken,row")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to parse file")
	_, ok := env.Registry.Get("anything")
	assert.False(t, ok)
}

func TestPreview_BlockedUntilMandatoryMapped(t *testing.T) {
	crmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"parks":[{"id":"p1","name":"Sunny Acres"}]}`))
	}))
	defer crmSrv.Close()
	_, router := newEnv(crmSrv.URL)

	created := decode(t, uploadFile(t, router, "lots.csv", "Name,Status\nLot 1,available"))
	sessionID := created["session_id"].(string)

	rec := doJSON(t, router, http.MethodPut, "/api/v1/imports/"+sessionID+"/mapping", gin.H{
		"mapping": gin.H{lots.FieldNameOrNumber: lots.Ignore},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["valid"])

	rec = doJSON(t, router, http.MethodPost, "/api/v1/imports/"+sessionID+"/preview", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Mapping is incomplete")
}

func TestPreview_MultiParkUserNeedsParkColumn(t *testing.T) {
	crmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"parks":[{"id":"p1","name":"Sunny Acres"},{"id":"p2","name":"Oak Grove"}]}`))
	}))
	defer crmSrv.Close()
	_, router := newEnv(crmSrv.URL)

	created := decode(t, uploadFile(t, router, "lots.csv", "Name,Status,Park\nLot 1,available,Sunny Acres"))
	sessionID := created["session_id"].(string)
	assert.Equal(t, float64(2), created["park_count"])

	mapNameStatus(t, router, sessionID)
	rec := doJSON(t, router, http.MethodPost, "/api/v1/imports/"+sessionID+"/preview", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "park name unmapped for a two-park user")

	// Mapping the park column unblocks the preview
	rec = doJSON(t, router, http.MethodPut, "/api/v1/imports/"+sessionID+"/mapping", gin.H{
		"mapping": gin.H{
			lots.FieldNameOrNumber: "Name",
			lots.FieldStatus:       "Status",
			lots.FieldParkName:     "Park",
		},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/imports/"+sessionID+"/preview", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// End-to-end: upload a 3-row CSV with one blank name, map, preview, submit,
// reconcile. Covers the projected-set freeze, the exact submission payload
// and the result report.
func TestWizard_EndToEnd(t *testing.T) {
	var gotPayload struct {
		Items []lots.ProjectedRecord `json:"items"`
	}
	crmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/parks":
			w.Write([]byte(`{"parks":[{"id":"p1","name":"Sunny Acres"}]}`))
		case "/api/v1/lots/bulk-import":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
			json.NewEncoder(w).Encode(crm.ImportResult{
				Successful: []crm.RecordRef{{ID: "l1", NameOrNumber: "Lot 1"}},
				Failed:     []crm.RowError{{Row: 2, Error: "Invalid status"}},
				Warnings:   []crm.RowWarning{},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer crmSrv.Close()
	_, router := newEnv(crmSrv.URL)

	// Upload: 3 data rows, one with a blank Name
	created := decode(t, uploadFile(t, router, "lots.csv", "Name,Status\nLot 1,available\n,occupied\nLot 3,bogus"))
	sessionID := created["session_id"].(string)
	assert.Equal(t, "mapping", created["step"])
	assert.Equal(t, float64(3), created["total_rows"])

	mapNameStatus(t, router, sessionID)

	// Preview: blank-name row dropped, 2 records, no overflow
	rec := doJSON(t, router, http.MethodPost, "/api/v1/imports/"+sessionID+"/preview", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	preview := decode(t, rec)
	assert.Equal(t, float64(2), preview["projected_count"])
	assert.Len(t, preview["rows"], 2)
	assert.Equal(t, float64(0), preview["overflow"])

	// Submit
	rec = doJSON(t, router, http.MethodPost, "/api/v1/imports/"+sessionID+"/submit", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	waitForStep(t, router, sessionID, "results")

	// The payload carried exactly the previewed records
	assert.Equal(t, []lots.ProjectedRecord{
		{lots.FieldNameOrNumber: "Lot 1", lots.FieldStatus: "available"},
		{lots.FieldNameOrNumber: "Lot 3", lots.FieldStatus: "bogus"},
	}, gotPayload.Items)

	// Results: counts and per-row errors as the backend returned them
	rec = doJSON(t, router, http.MethodGet, "/api/v1/imports/"+sessionID+"/results", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	results := decode(t, rec)
	assert.Equal(t, "1 Successful, 1 Failed, 2 Total", results["summary"])
	failed := results["failed"].([]interface{})
	assert.Len(t, failed, 1)
	assert.Equal(t, float64(2), failed[0].(map[string]interface{})["row"])
	assert.Equal(t, "Invalid status", failed[0].(map[string]interface{})["error"])

	// Error report download
	rec = doJSON(t, router, http.MethodGet, "/api/v1/imports/"+sessionID+"/report", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Body.String(), "2,error,Invalid status")
}

func TestSubmit_MultipleParksRejectionIsActionable(t *testing.T) {
	crmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/parks":
			// Stale single-park answer; the backend still knows better
			w.Write([]byte(`{"parks":[{"id":"p1","name":"Sunny Acres"}]}`))
		case "/api/v1/lots/bulk-import":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":"MULTIPLE_PARKS"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer crmSrv.Close()
	_, router := newEnv(crmSrv.URL)

	created := decode(t, uploadFile(t, router, "lots.csv", "Name,Status\nLot 1,available"))
	sessionID := created["session_id"].(string)
	mapNameStatus(t, router, sessionID)
	assert.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/api/v1/imports/"+sessionID+"/preview", nil).Code)
	assert.Equal(t, http.StatusAccepted, doJSON(t, router, http.MethodPost, "/api/v1/imports/"+sessionID+"/submit", nil).Code)

	// Back to mapping with the specific disambiguation message, not a reset
	status := waitForStep(t, router, sessionID, "mapping")
	assert.Contains(t, status["failure"], "Park Name", "user sees the multi-park message, not a generic failure")
	assert.Equal(t, float64(1), status["total_rows"], "file and mapping survive")
}

func TestSubmit_GenericFailureResetsToUpload(t *testing.T) {
	crmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/parks":
			w.Write([]byte(`{"parks":[{"id":"p1","name":"Sunny Acres"}]}`))
		case "/api/v1/lots/bulk-import":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"database unavailable"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer crmSrv.Close()
	_, router := newEnv(crmSrv.URL)

	created := decode(t, uploadFile(t, router, "lots.csv", "Name,Status\nLot 1,available"))
	sessionID := created["session_id"].(string)
	mapNameStatus(t, router, sessionID)
	assert.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/api/v1/imports/"+sessionID+"/preview", nil).Code)
	assert.Equal(t, http.StatusAccepted, doJSON(t, router, http.MethodPost, "/api/v1/imports/"+sessionID+"/submit", nil).Code)

	status := waitForStep(t, router, sessionID, "upload")
	assert.Contains(t, status["failure"], "database unavailable", "raw message surfaced verbatim")
	assert.Equal(t, float64(0), status["total_rows"], "mapping and preview state discarded")
}

// Dismissing the dialog mid-import clears the progress ticker and discards
// all wizard state; reopening starts fresh.
func TestDismiss_MidImport(t *testing.T) {
	release := make(chan struct{})
	crmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/parks":
			w.Write([]byte(`{"parks":[{"id":"p1","name":"Sunny Acres"}]}`))
		case "/api/v1/lots/bulk-import":
			<-release // hold the submission in flight
			json.NewEncoder(w).Encode(crm.ImportResult{})
		default:
			http.NotFound(w, r)
		}
	}))
	defer crmSrv.Close()
	defer close(release)
	env, router := newEnv(crmSrv.URL)

	created := decode(t, uploadFile(t, router, "lots.csv", "Name,Status\nLot 1,available"))
	sessionID := created["session_id"].(string)
	mapNameStatus(t, router, sessionID)
	assert.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/api/v1/imports/"+sessionID+"/preview", nil).Code)
	assert.Equal(t, http.StatusAccepted, doJSON(t, router, http.MethodPost, "/api/v1/imports/"+sessionID+"/submit", nil).Code)

	session, ok := env.Registry.Get(sessionID)
	assert.True(t, ok)
	assert.Eventually(t, func() bool {
		return session.Progress() > 0
	}, 5*time.Second, 20*time.Millisecond, "cosmetic progress ticks while the call is outstanding")

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/imports/"+sessionID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// No further progress ticks after dismissal
	assert.Equal(t, 0, session.Progress())
	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, 0, session.Progress())

	rec = doJSON(t, router, http.MethodGet, "/api/v1/imports/"+sessionID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Reopening the wizard starts a fresh session with no carryover
	fresh := decode(t, uploadFile(t, router, "other.csv", "Name\nUnit 9"))
	assert.NotEqual(t, sessionID, fresh["session_id"])
	assert.Equal(t, "mapping", fresh["step"])
	assert.Equal(t, float64(1), fresh["total_rows"])
}

func TestListLots_CachedUntilImportSucceeds(t *testing.T) {
	var listCalls int64
	crmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/parks":
			w.Write([]byte(`{"parks":[{"id":"p1","name":"Sunny Acres"}]}`))
		case "/api/v1/lots":
			n := atomic.AddInt64(&listCalls, 1)
			fmt.Fprintf(w, `{"lots":[],"version":%d}`, n)
		case "/api/v1/lots/bulk-import":
			json.NewEncoder(w).Encode(crm.ImportResult{
				Successful: []crm.RecordRef{{ID: "l1", NameOrNumber: "Lot 1"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer crmSrv.Close()
	_, router := newEnv(crmSrv.URL)

	first := doJSON(t, router, http.MethodGet, "/api/v1/lots", nil)
	second := doJSON(t, router, http.MethodGet, "/api/v1/lots", nil)
	assert.Equal(t, first.Body.String(), second.Body.String(), "second read served from cache")
	assert.Equal(t, int64(1), atomic.LoadInt64(&listCalls))

	// A successful import invalidates the listing
	created := decode(t, uploadFile(t, router, "lots.csv", "Name,Status\nLot 1,available"))
	sessionID := created["session_id"].(string)
	mapNameStatus(t, router, sessionID)
	assert.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/api/v1/imports/"+sessionID+"/preview", nil).Code)
	assert.Equal(t, http.StatusAccepted, doJSON(t, router, http.MethodPost, "/api/v1/imports/"+sessionID+"/submit", nil).Code)
	waitForStep(t, router, sessionID, "results")

	third := doJSON(t, router, http.MethodGet, "/api/v1/lots", nil)
	assert.NotEqual(t, first.Body.String(), third.Body.String(), "listing refetched after import")
	assert.Equal(t, int64(2), atomic.LoadInt64(&listCalls))
}

func TestListLots_DistinctFiltersGetDistinctEntries(t *testing.T) {
	var listCalls int64
	crmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/lots", r.URL.Path)
		n := atomic.AddInt64(&listCalls, 1)
		fmt.Fprintf(w, `{"park":%q,"version":%d}`, r.URL.Query().Get("park"), n)
	}))
	defer crmSrv.Close()
	_, router := newEnv(crmSrv.URL)

	// "Oak Grove" and "oak-grove" are distinct filters and must never share
	// a cache entry, whatever normalization the keys use
	first := doJSON(t, router, http.MethodGet, "/api/v1/lots?park=Oak+Grove", nil)
	second := doJSON(t, router, http.MethodGet, "/api/v1/lots?park=oak-grove", nil)

	assert.Equal(t, int64(2), atomic.LoadInt64(&listCalls), "both filters reach the backend")
	assert.NotEqual(t, first.Body.String(), second.Body.String())
	assert.Contains(t, first.Body.String(), "Oak Grove")
	assert.Contains(t, second.Body.String(), "oak-grove")

	// And each filter is cached under its own key afterwards
	assert.Equal(t, first.Body.String(), doJSON(t, router, http.MethodGet, "/api/v1/lots?park=Oak+Grove", nil).Body.String())
	assert.Equal(t, int64(2), atomic.LoadInt64(&listCalls))
}

func TestResults_UnavailableBeforeImport(t *testing.T) {
	crmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"parks":[]}`))
	}))
	defer crmSrv.Close()
	_, router := newEnv(crmSrv.URL)

	created := decode(t, uploadFile(t, router, "lots.csv", "Name\nLot 1"))
	sessionID := created["session_id"].(string)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/imports/"+sessionID+"/results", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuditRecord_TracksLifecycle(t *testing.T) {
	crmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/parks":
			w.Write([]byte(`{"parks":[{"id":"p1","name":"Sunny Acres"}]}`))
		case "/api/v1/lots/bulk-import":
			json.NewEncoder(w).Encode(crm.ImportResult{
				Successful: []crm.RecordRef{{ID: "l1", NameOrNumber: "Lot 1"}},
				Warnings:   []crm.RowWarning{{Row: 1, Message: "price missing"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer crmSrv.Close()
	_, router := newEnv(crmSrv.URL)

	created := decode(t, uploadFile(t, router, "lots.csv", "Name,Status\nLot 1,available"))
	sessionID := created["session_id"].(string)
	mapNameStatus(t, router, sessionID)
	assert.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/api/v1/imports/"+sessionID+"/preview", nil).Code)
	assert.Equal(t, http.StatusAccepted, doJSON(t, router, http.MethodPost, "/api/v1/imports/"+sessionID+"/submit", nil).Code)
	waitForStep(t, router, sessionID, "results")

	var record common.ImportSessionRecord
	assert.Eventually(t, func() bool {
		if err := common.GetDB().Where("id = ?", sessionID).First(&record).Error; err != nil {
			return false
		}
		return record.Status == common.SessionStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, 1, record.TotalRows)
	assert.Equal(t, 1, record.ProjectedRows)
	assert.Equal(t, 1, record.SuccessCount)
	assert.Equal(t, 1, record.WarningCount)
	assert.NotNil(t, record.CompletedAt)

	if strings.Contains(record.Errors, "row") {
		t.Errorf("no failed rows, errors column should be empty, got %q", record.Errors)
	}
}
