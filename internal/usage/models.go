// Package usage defines the raw usage log entry and its validation rules.
package usage

import "time"

// TimeLayout is the timestamp format used in usage log files.
const TimeLayout = "2006-01-02 15:04:05"

// AssocType identifies what kind of object a usage event was recorded
// against.
type AssocType int

const (
	AssocTypeContext             AssocType = 1
	AssocTypeSubmission          AssocType = 2
	AssocTypeSubmissionFile      AssocType = 3
	AssocTypeSubmissionFileOther AssocType = 4
)

// FileType classifies a downloaded galley file.
type FileType int

const (
	FileTypePDF   FileType = 1
	FileTypeDoc   FileType = 2
	FileTypeHTML  FileType = 3
	FileTypeOther FileType = 4
)

// LogEntry is one access event as written to the usage log, one JSON
// object per line. The IP is already salted and hashed by the recorder;
// raw addresses never reach this subsystem.
type LogEntry struct {
	Time             string    `json:"time"`
	IP               string    `json:"ip"`
	UserAgent        string    `json:"userAgent"`
	CanonicalURL     string    `json:"canonicalUrl"`
	ContextID        int64     `json:"contextId"`
	SubmissionID     int64     `json:"submissionId,omitempty"`
	RepresentationID int64     `json:"representationId,omitempty"`
	AssocType        AssocType `json:"assocType"`
	AssocID          int64     `json:"assocId"`
	FileType         FileType  `json:"fileType,omitempty"`
	Country          string    `json:"country,omitempty"`
	Region           string    `json:"region,omitempty"`
	City             string    `json:"city,omitempty"`
	InstitutionIDs   []int64   `json:"institutionIds"`
}

// Timestamp parses the entry's time field.
func (e *LogEntry) Timestamp() (time.Time, error) {
	return time.Parse(TimeLayout, e.Time)
}
