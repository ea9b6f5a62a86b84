// Package staging holds the per-batch temporary usage records and the
// COUNTER deduplication passes that run over them before aggregation.
package staging

import (
	"time"

	"countpress/internal/usage"
)

// TotalRecord is one staged access event. Every valid, non-bot log line
// produces exactly one row here.
type TotalRecord struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	LoadID           string    `gorm:"index;size:255;not null"`
	LineNumber       int       `gorm:"not null"`
	Date             time.Time `gorm:"not null"`
	IP               string    `gorm:"size:255;not null"`
	UserAgent        string    `gorm:"size:255;not null"`
	CanonicalURL     string    `gorm:"not null"`
	ContextID        int64     `gorm:"not null"`
	SubmissionID     *int64
	RepresentationID *int64
	AssocType        usage.AssocType `gorm:"not null"`
	AssocID          int64           `gorm:"not null"`
	FileType         *usage.FileType
	Country          string `gorm:"size:2;not null;default:''"`
	Region           string `gorm:"size:3;not null;default:''"`
	City             string `gorm:"not null;default:''"`
}

// TableName implements the gorm table naming override.
func (TotalRecord) TableName() string { return "usage_total_records" }

// UniqueInvestigationRecord is staged for every event that touches a
// submission (abstract view, galley view, file download). Unique-visit
// collapsing reduces these to one row per visitor, item and day.
type UniqueInvestigationRecord struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	LoadID           string    `gorm:"index;size:255;not null"`
	LineNumber       int       `gorm:"not null"`
	Date             time.Time `gorm:"not null"`
	IP               string    `gorm:"size:255;not null"`
	UserAgent        string    `gorm:"size:255;not null"`
	ContextID        int64     `gorm:"not null"`
	SubmissionID     *int64
	RepresentationID *int64
	AssocType        usage.AssocType `gorm:"not null"`
	AssocID          int64           `gorm:"not null"`
	FileType         *usage.FileType
	Country          string `gorm:"size:2;not null;default:''"`
	Region           string `gorm:"size:3;not null;default:''"`
	City             string `gorm:"not null;default:''"`
}

// TableName implements the gorm table naming override.
func (UniqueInvestigationRecord) TableName() string { return "usage_unique_investigations" }

// UniqueRequestRecord is staged only for file-download events
// (assoc type submission file).
type UniqueRequestRecord struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	LoadID           string    `gorm:"index;size:255;not null"`
	LineNumber       int       `gorm:"not null"`
	Date             time.Time `gorm:"not null"`
	IP               string    `gorm:"size:255;not null"`
	UserAgent        string    `gorm:"size:255;not null"`
	ContextID        int64     `gorm:"not null"`
	SubmissionID     *int64
	RepresentationID *int64
	AssocType        usage.AssocType `gorm:"not null"`
	AssocID          int64           `gorm:"not null"`
	FileType         *usage.FileType
	Country          string `gorm:"size:2;not null;default:''"`
	Region           string `gorm:"size:3;not null;default:''"`
	City             string `gorm:"not null;default:''"`
}

// TableName implements the gorm table naming override.
func (UniqueRequestRecord) TableName() string { return "usage_unique_requests" }

// InstitutionRecord attributes one staged line to one institution. It
// joins back to the other staging tables via (load_id, line_number).
type InstitutionRecord struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	LoadID        string `gorm:"index;size:255;not null"`
	LineNumber    int    `gorm:"not null"`
	InstitutionID int64  `gorm:"not null"`
}

// TableName implements the gorm table naming override.
func (InstitutionRecord) TableName() string { return "usage_institution_records" }
