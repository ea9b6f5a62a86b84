package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEntry() LogEntry {
	return LogEntry{
		Time:             "2024-05-01 10:00:00",
		IP:               "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8",
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
		CanonicalURL:     "https://journal.example.org/article/view/42",
		ContextID:        1,
		SubmissionID:     42,
		RepresentationID: 3,
		AssocType:        AssocTypeSubmissionFile,
		AssocID:          100,
		FileType:         FileTypePDF,
		Country:          "DE",
		Region:           "BE",
		City:             "Berlin",
		InstitutionIDs:   []int64{7, 9},
	}
}

func TestValidateAcceptsWellFormedEntry(t *testing.T) {
	entry := validEntry()
	require.NoError(t, Validate(&entry))
}

func TestValidateAcceptsMinimalContextEntry(t *testing.T) {
	entry := LogEntry{
		Time:           "2024-05-01 10:00:00",
		IP:             "abc",
		UserAgent:      "Mozilla/5.0",
		CanonicalURL:   "https://journal.example.org/",
		ContextID:      1,
		AssocType:      AssocTypeContext,
		AssocID:        1,
		InstitutionIDs: []int64{},
	}
	require.NoError(t, Validate(&entry))
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *LogEntry)
		field  string
	}{
		{"unparseable time", func(e *LogEntry) { e.Time = "01.05.2024 10:00" }, "time"},
		{"missing time", func(e *LogEntry) { e.Time = "" }, "time"},
		{"zero context id", func(e *LogEntry) { e.ContextID = 0 }, "contextId"},
		{"negative context id", func(e *LogEntry) { e.ContextID = -4 }, "contextId"},
		{"context assoc id mismatch", func(e *LogEntry) {
			e.AssocType = AssocTypeContext
			e.SubmissionID = 0
			e.AssocID = 99
		}, "assocId"},
		{"negative submission id", func(e *LogEntry) { e.SubmissionID = -1 }, "submissionId"},
		{"submission assoc id mismatch", func(e *LogEntry) {
			e.AssocType = AssocTypeSubmission
			e.AssocID = 41
		}, "assocId"},
		{"negative representation id", func(e *LogEntry) { e.RepresentationID = -3 }, "representationId"},
		{"unknown assoc type", func(e *LogEntry) { e.AssocType = 9 }, "assocType"},
		{"zero assoc id", func(e *LogEntry) { e.AssocID = 0 }, "assocId"},
		{"unknown file type", func(e *LogEntry) { e.FileType = 7 }, "fileType"},
		{"country too long", func(e *LogEntry) { e.Country = "DEU" }, "country"},
		{"country with digits", func(e *LogEntry) { e.Country = "D1" }, "country"},
		{"region too long", func(e *LogEntry) { e.Region = "ABCD" }, "region"},
		{"region with punctuation", func(e *LogEntry) { e.Region = "B-1" }, "region"},
		{"nil institution ids", func(e *LogEntry) { e.InstitutionIDs = nil }, "institutionIds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := validEntry()
			tt.mutate(&entry)

			err := Validate(&entry)
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateOptionalFieldsMayBeEmpty(t *testing.T) {
	entry := validEntry()
	entry.RepresentationID = 0
	entry.FileType = 0
	entry.Country = ""
	entry.Region = ""
	entry.City = ""
	entry.InstitutionIDs = []int64{}
	require.NoError(t, Validate(&entry))
}

func TestValidateNumericRegionCode(t *testing.T) {
	entry := validEntry()
	entry.Region = "13"
	require.NoError(t, Validate(&entry))
}
