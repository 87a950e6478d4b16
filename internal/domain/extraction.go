package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ExtractionStats is the result of extracting one tractate (or one page of it).
type ExtractionStats struct {
	Tractate       string `json:"tractate"`
	StartPage      string `json:"start_page"`
	TotalExtracted int    `json:"total_extracted"`
	Saved          int    `json:"saved"`
	Failed         int    `json:"failed"`
}

type TractateDetail struct {
	Tractate  string `json:"tractate"`
	Extracted int    `json:"extracted"`
	Saved     int    `json:"saved"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// ExtractionSummary aggregates an all-tractates run. TractatesProcessed counts
// only tractates that finished without error.
type ExtractionSummary struct {
	TractatesFound     int              `json:"tractates_found"`
	TractatesProcessed int              `json:"tractates_processed"`
	TotalExtracted     int              `json:"total_extracted"`
	TotalSaved         int              `json:"total_saved"`
	TotalFailed        int              `json:"total_failed"`
	TractateDetails    []TractateDetail `json:"tractate_details"`
}

type ExtractionRunKind string

const (
	ExtractionRunOne ExtractionRunKind = "one"
	ExtractionRunAll ExtractionRunKind = "all"
)

const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// ExtractionRun records one background invocation of the extraction pipeline.
type ExtractionRun struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Kind       ExtractionRunKind `gorm:"column:kind;not null;index" json:"kind"`
	Status     string            `gorm:"column:status;not null;index" json:"status"`
	Params     datatypes.JSON    `gorm:"column:params" json:"params"`
	Result     datatypes.JSON    `gorm:"column:result" json:"result,omitempty"`
	Error      string            `gorm:"column:error" json:"error,omitempty"`
	StartedAt  *time.Time        `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time        `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null" json:"updated_at"`
}

func (ExtractionRun) TableName() string { return "extraction_run" }
