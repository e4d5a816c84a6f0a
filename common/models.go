package common

import (
	"time"

	"gorm.io/gorm"
)

// Wizard session statuses persisted for the audit trail. These track the
// lifecycle coarsely; the live step-by-step state lives in the wizard package.
const (
	SessionStatusOpen      = "open"
	SessionStatusImporting = "importing"
	SessionStatusCompleted = "completed"
	SessionStatusFailed    = "failed"
	SessionStatusAbandoned = "abandoned"
)

// ImportSessionRecord is the audit row for one wizard session
type ImportSessionRecord struct {
	ID            string     `gorm:"primaryKey;type:text" json:"id"`
	FileName      string     `json:"file_name"`
	Status        string     `gorm:"not null" json:"status"`
	TotalRows     int        `gorm:"default:0" json:"total_rows"`
	ProjectedRows int        `gorm:"default:0" json:"projected_rows"`
	SuccessCount  int        `gorm:"default:0" json:"success_count"`
	FailCount     int        `gorm:"default:0" json:"fail_count"`
	WarningCount  int        `gorm:"default:0" json:"warning_count"`
	Errors        string     `gorm:"type:text" json:"errors,omitempty"` // JSON array of per-row errors
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null" json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// ApiMetric tracks API performance metrics
type ApiMetric struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Endpoint      string    `gorm:"not null" json:"endpoint"`
	Method        string    `gorm:"not null" json:"method"`
	StatusCode    int       `gorm:"not null" json:"status_code"`
	DurationMs    int       `gorm:"not null" json:"duration_ms"`
	RowsProcessed int       `gorm:"default:0" json:"rows_processed"`
	Errors        string    `gorm:"type:text" json:"errors,omitempty"` // JSON errors
	Timestamp     time.Time `gorm:"not null" json:"timestamp"`
}

func (ImportSessionRecord) TableName() string { return "import_sessions" }
func (ApiMetric) TableName() string           { return "api_metrics" }

// AutoMigrate creates the audit and metrics tables
func AutoMigrate(db *gorm.DB) {
	db.AutoMigrate(&ImportSessionRecord{}, &ApiMetric{})
}
