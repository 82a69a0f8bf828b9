package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Upload session lifecycle. Completed and failed are terminal; a terminal
// session is read-only for every caller.
const (
	SessionPending    = "pending"
	SessionProcessing = "processing"
	SessionCompleted  = "completed"
	SessionFailed     = "failed"
)

// RowError is one validation or duplicate finding for a single uploaded row.
// Type is the stable machine-readable key; Field identifies the offending
// column without substring matching on Message. Localized carries the Arabic
// display text derived from Type and Field; Message is diagnostic English.
type RowError struct {
	Field     string `json:"field,omitempty"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Localized string `json:"localized,omitempty"`
}

// RecordErrorGroup collects all findings for one rejected or skipped row.
type RecordErrorGroup struct {
	Record string     `json:"record"`
	Errors []RowError `json:"errors"`
}

// RecordErrors is the ordered jsonb error list of an upload session.
type RecordErrors []RecordErrorGroup

func (e RecordErrors) Value() (driver.Value, error) {
	if e == nil {
		e = RecordErrors{}
	}
	return json.Marshal(e)
}

func (e *RecordErrors) Scan(value interface{}) error {
	if value == nil {
		*e = RecordErrors{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			b = []byte(s)
		} else {
			return fmt.Errorf("unsupported type %T for record errors", value)
		}
	}
	return json.Unmarshal(b, e)
}

// ProcessingDetails names the row currently being processed so a poller can
// render live progress.
type ProcessingDetails struct {
	CurrentRecord string `json:"current_record"`
	CurrentIndex  int    `json:"current_index"`
	Total         int    `json:"total"`
}

func (p ProcessingDetails) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *ProcessingDetails) Scan(value interface{}) error {
	if value == nil {
		*p = ProcessingDetails{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			b = []byte(s)
		} else {
			return fmt.Errorf("unsupported type %T for processing details", value)
		}
	}
	return json.Unmarshal(b, p)
}

// UploadSession tracks one bulk-ingestion batch. The orchestrator goroutine
// that created the session is its only writer; pollers read snapshots.
// Counters never decrease while the session is live.
type UploadSession struct {
	ID                string `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	FileName          string             `gorm:"size:255;not null" json:"file_name"`
	Status            string             `gorm:"size:16;not null;index" json:"status"`
	TotalRecords      int                `gorm:"not null;default:0" json:"total_records"`
	ProcessedRecords  int                `gorm:"not null;default:0" json:"processed_records"`
	ValidRecords      int                `gorm:"not null;default:0" json:"valid_records"`
	InvalidRecords    int                `gorm:"not null;default:0" json:"invalid_records"`
	DuplicateRecords  int                `gorm:"not null;default:0" json:"duplicate_records"`
	SkippedDuplicates int                `gorm:"not null;default:0" json:"skipped_duplicates"`
	Errors            RecordErrors       `gorm:"type:jsonb;default:'[]'" json:"errors"`
	ProcessingDetails *ProcessingDetails `gorm:"type:jsonb" json:"processing_details"`
	ErrorMessage      string             `gorm:"type:text" json:"error_message,omitempty"`
	UserID            *uint              `gorm:"index" json:"-"`
}

// Progress derives the completion percentage, clamped to 0 for an empty
// batch.
func (s *UploadSession) Progress() int {
	if s.TotalRecords == 0 {
		return 0
	}
	return int(math.Round(float64(s.ProcessedRecords) / float64(s.TotalRecords) * 100))
}

// Terminal reports whether the session reached a final state.
func (s *UploadSession) Terminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionFailed
}
