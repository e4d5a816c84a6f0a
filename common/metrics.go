package common

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MetricsMiddleware records one ApiMetric row per request, including the
// rows_processed count when a handler sets it.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Request ID for tracing
		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		startTime := time.Now()

		c.Next()

		duration := time.Since(startTime)

		rowsProcessed := 0
		if rows, exists := c.Get("rows_processed"); exists {
			if r, ok := rows.(int); ok {
				rowsProcessed = r
			}
		}

		errors := ""
		if len(c.Errors) > 0 {
			errors = c.Errors.String()
		}

		metric := ApiMetric{
			Endpoint:      c.FullPath(),
			Method:        c.Request.Method,
			StatusCode:    c.Writer.Status(),
			DurationMs:    int(duration.Milliseconds()),
			RowsProcessed: rowsProcessed,
			Errors:        errors,
			Timestamp:     startTime,
		}

		// Save asynchronously so metrics never slow a request down
		go func() {
			if db := GetDB(); db != nil {
				db.Create(&metric)
			}
		}()
	}
}
