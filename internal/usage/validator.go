package usage

import "fmt"

// ValidationError reports which field of a log entry failed validation.
// A failing entry aborts the whole batch, so the field name matters for
// the operator tracking down a broken log writer.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid log entry: %s %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Validate checks a log entry against the COUNTER structural rules. It is
// a pure check; bot filtering and foreign-key checks happen elsewhere.
func Validate(entry *LogEntry) error {
	if _, err := entry.Timestamp(); err != nil {
		return invalid("time", fmt.Sprintf("does not parse as %q", TimeLayout))
	}
	if entry.ContextID <= 0 {
		return invalid("contextId", "must be a positive integer")
	}
	if entry.AssocType == AssocTypeContext && entry.AssocID != entry.ContextID {
		return invalid("assocId", "does not match contextId for a context event")
	}
	if entry.SubmissionID != 0 {
		if entry.SubmissionID < 0 {
			return invalid("submissionId", "must be a positive integer")
		}
		if entry.AssocType == AssocTypeSubmission && entry.AssocID != entry.SubmissionID {
			return invalid("assocId", "does not match submissionId for a submission event")
		}
	}
	if entry.RepresentationID < 0 {
		return invalid("representationId", "must be a positive integer")
	}
	switch entry.AssocType {
	case AssocTypeContext, AssocTypeSubmission, AssocTypeSubmissionFile, AssocTypeSubmissionFileOther:
	default:
		return invalid("assocType", fmt.Sprintf("unknown value %d", entry.AssocType))
	}
	if entry.AssocID <= 0 {
		return invalid("assocId", "must be a positive integer")
	}
	if entry.FileType != 0 {
		switch entry.FileType {
		case FileTypePDF, FileTypeDoc, FileTypeHTML, FileTypeOther:
		default:
			return invalid("fileType", fmt.Sprintf("unknown value %d", entry.FileType))
		}
	}
	if entry.Country != "" && !isCountryCode(entry.Country) {
		return invalid("country", "must be exactly 2 alphabetic characters")
	}
	if entry.Region != "" && !isRegionCode(entry.Region) {
		return invalid("region", "must be alphanumeric with at most 3 characters")
	}
	if entry.InstitutionIDs == nil {
		return invalid("institutionIds", "must be an array (possibly empty)")
	}
	return nil
}

func isCountryCode(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if !isAlpha(r) {
			return false
		}
	}
	return true
}

func isRegionCode(s string) bool {
	if len(s) == 0 || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if !isAlpha(r) && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
