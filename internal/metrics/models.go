// Package metrics owns the durable daily and monthly usage metric tables
// and the aggregation engine that fills them from staging.
package metrics

import (
	"time"

	"countpress/internal/usage"
)

// ContextMetric is the raw daily view count per publishing venue.
type ContextMetric struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	LoadID    string    `gorm:"index;size:255;not null"`
	ContextID int64     `gorm:"not null"`
	Date      time.Time `gorm:"not null"`
	Metric    int64     `gorm:"not null"`
}

// TableName implements the gorm table naming override.
func (ContextMetric) TableName() string { return "metrics_context" }

// SubmissionMetric is the raw daily count per submission, split by assoc
// type (abstract view vs. file download) and file dimensions.
type SubmissionMetric struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	LoadID           string `gorm:"index;size:255;not null"`
	ContextID        int64  `gorm:"not null"`
	SubmissionID     int64  `gorm:"not null"`
	RepresentationID *int64
	SubmissionFileID *int64
	FileType         *usage.FileType
	AssocType        usage.AssocType `gorm:"not null"`
	Date             time.Time       `gorm:"not null"`
	Metric           int64           `gorm:"not null"`
}

// TableName implements the gorm table naming override.
func (SubmissionMetric) TableName() string { return "metrics_submission" }

// CounterSubmissionDaily carries the four COUNTER counters per submission
// and day. The unique index is what the column-targeted upsert passes
// conflict against.
type CounterSubmissionDaily struct {
	ID                          uint      `gorm:"primaryKey;autoIncrement"`
	LoadID                      string    `gorm:"size:255;not null;uniqueIndex:uc_counter_submission_daily"`
	ContextID                   int64     `gorm:"not null;uniqueIndex:uc_counter_submission_daily"`
	SubmissionID                int64     `gorm:"not null;uniqueIndex:uc_counter_submission_daily"`
	Date                        time.Time `gorm:"not null;uniqueIndex:uc_counter_submission_daily"`
	MetricInvestigations        int64     `gorm:"not null;default:0"`
	MetricInvestigationsUnique  int64     `gorm:"not null;default:0"`
	MetricRequests              int64     `gorm:"not null;default:0"`
	MetricRequestsUnique        int64     `gorm:"not null;default:0"`
}

// TableName implements the gorm table naming override.
func (CounterSubmissionDaily) TableName() string { return "metrics_counter_submission_daily" }

// SubmissionGeoDaily is the COUNTER counters per submission, day and
// visitor location.
type SubmissionGeoDaily struct {
	ID                         uint      `gorm:"primaryKey;autoIncrement"`
	LoadID                     string    `gorm:"size:255;not null;uniqueIndex:uc_submission_geo_daily"`
	ContextID                  int64     `gorm:"not null;uniqueIndex:uc_submission_geo_daily"`
	SubmissionID               int64     `gorm:"not null;uniqueIndex:uc_submission_geo_daily"`
	Country                    string    `gorm:"size:2;not null;default:'';uniqueIndex:uc_submission_geo_daily"`
	Region                     string    `gorm:"size:3;not null;default:'';uniqueIndex:uc_submission_geo_daily"`
	City                       string    `gorm:"size:255;not null;default:'';uniqueIndex:uc_submission_geo_daily"`
	Date                       time.Time `gorm:"not null;uniqueIndex:uc_submission_geo_daily"`
	MetricInvestigations       int64     `gorm:"not null;default:0"`
	MetricInvestigationsUnique int64     `gorm:"not null;default:0"`
	MetricRequests             int64     `gorm:"not null;default:0"`
	MetricRequestsUnique       int64     `gorm:"not null;default:0"`
}

// TableName implements the gorm table naming override.
func (SubmissionGeoDaily) TableName() string { return "metrics_submission_geo_daily" }

// CounterSubmissionInstitutionDaily is the COUNTER counters per
// submission, day and attributed institution.
type CounterSubmissionInstitutionDaily struct {
	ID                         uint      `gorm:"primaryKey;autoIncrement"`
	LoadID                     string    `gorm:"size:255;not null;uniqueIndex:uc_submission_institution_daily"`
	ContextID                  int64     `gorm:"not null;uniqueIndex:uc_submission_institution_daily"`
	SubmissionID               int64     `gorm:"not null;uniqueIndex:uc_submission_institution_daily"`
	InstitutionID              int64     `gorm:"not null;uniqueIndex:uc_submission_institution_daily"`
	Date                       time.Time `gorm:"not null;uniqueIndex:uc_submission_institution_daily"`
	MetricInvestigations       int64     `gorm:"not null;default:0"`
	MetricInvestigationsUnique int64     `gorm:"not null;default:0"`
	MetricRequests             int64     `gorm:"not null;default:0"`
	MetricRequestsUnique       int64     `gorm:"not null;default:0"`
}

// TableName implements the gorm table naming override.
func (CounterSubmissionInstitutionDaily) TableName() string {
	return "metrics_counter_submission_institution_daily"
}

// CounterSubmissionMonthly accumulates daily counters by month. Monthly
// rows carry no load id: many batches contribute to one month.
type CounterSubmissionMonthly struct {
	ID                         uint   `gorm:"primaryKey;autoIncrement"`
	ContextID                  int64  `gorm:"not null;uniqueIndex:uc_counter_submission_monthly"`
	SubmissionID               int64  `gorm:"not null;uniqueIndex:uc_counter_submission_monthly"`
	Month                      string `gorm:"size:6;not null;uniqueIndex:uc_counter_submission_monthly"`
	MetricInvestigations       int64  `gorm:"not null;default:0"`
	MetricInvestigationsUnique int64  `gorm:"not null;default:0"`
	MetricRequests             int64  `gorm:"not null;default:0"`
	MetricRequestsUnique       int64  `gorm:"not null;default:0"`
}

// TableName implements the gorm table naming override.
func (CounterSubmissionMonthly) TableName() string { return "metrics_counter_submission_monthly" }

// SubmissionGeoMonthly accumulates the geo counters by month.
type SubmissionGeoMonthly struct {
	ID                         uint   `gorm:"primaryKey;autoIncrement"`
	ContextID                  int64  `gorm:"not null;uniqueIndex:uc_submission_geo_monthly"`
	SubmissionID               int64  `gorm:"not null;uniqueIndex:uc_submission_geo_monthly"`
	Country                    string `gorm:"size:2;not null;default:'';uniqueIndex:uc_submission_geo_monthly"`
	Region                     string `gorm:"size:3;not null;default:'';uniqueIndex:uc_submission_geo_monthly"`
	City                       string `gorm:"size:255;not null;default:'';uniqueIndex:uc_submission_geo_monthly"`
	Month                      string `gorm:"size:6;not null;uniqueIndex:uc_submission_geo_monthly"`
	MetricInvestigations       int64  `gorm:"not null;default:0"`
	MetricInvestigationsUnique int64  `gorm:"not null;default:0"`
	MetricRequests             int64  `gorm:"not null;default:0"`
	MetricRequestsUnique       int64  `gorm:"not null;default:0"`
}

// TableName implements the gorm table naming override.
func (SubmissionGeoMonthly) TableName() string { return "metrics_submission_geo_monthly" }

// CounterSubmissionInstitutionMonthly accumulates the institution
// counters by month.
type CounterSubmissionInstitutionMonthly struct {
	ID                         uint   `gorm:"primaryKey;autoIncrement"`
	ContextID                  int64  `gorm:"not null;uniqueIndex:uc_submission_institution_monthly"`
	SubmissionID               int64  `gorm:"not null;uniqueIndex:uc_submission_institution_monthly"`
	InstitutionID              int64  `gorm:"not null;uniqueIndex:uc_submission_institution_monthly"`
	Month                      string `gorm:"size:6;not null;uniqueIndex:uc_submission_institution_monthly"`
	MetricInvestigations       int64  `gorm:"not null;default:0"`
	MetricInvestigationsUnique int64  `gorm:"not null;default:0"`
	MetricRequests             int64  `gorm:"not null;default:0"`
	MetricRequestsUnique       int64  `gorm:"not null;default:0"`
}

// TableName implements the gorm table naming override.
func (CounterSubmissionInstitutionMonthly) TableName() string {
	return "metrics_counter_submission_institution_monthly"
}
