// Package catalog models the publishing entities the statistics pipeline
// references. The surrounding application owns these; the pipeline only
// needs existence checks for foreign-key validation.
package catalog

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Context is a publishing venue (journal, press or preprint server).
type Context struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Path      string `gorm:"uniqueIndex;not null"`
	Name      string
	Enabled   bool `gorm:"not null;default:true"`
	CreatedAt time.Time
}

// Submission is an article or preprint owned by a context.
type Submission struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	ContextID int64 `gorm:"index;not null"`
	Title     string
	CreatedAt time.Time
}

// Galley is a published representation (e.g. the PDF) of a submission.
type Galley struct {
	ID           int64 `gorm:"primaryKey;autoIncrement"`
	SubmissionID int64 `gorm:"index;not null"`
	Label        string
	CreatedAt    time.Time
}

// SubmissionFile is a downloadable file attached to a submission.
type SubmissionFile struct {
	ID           int64 `gorm:"primaryKey;autoIncrement"`
	SubmissionID int64 `gorm:"index;not null"`
	GalleyID     int64 `gorm:"index"`
	Name         string
	CreatedAt    time.Time
}

// Institution is a subscribing organization whose usage is attributed
// separately in COUNTER reports.
type Institution struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	ContextID int64 `gorm:"index;not null"`
	Name      string
	CreatedAt time.Time
}

// Catalog performs existence lookups against the entity tables.
type Catalog struct {
	db *gorm.DB
}

// New creates a catalog over the given connection.
func New(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) exists(model any, id int64) (bool, error) {
	var count int64
	if err := c.db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("catalog lookup failed: %w", err)
	}
	return count > 0, nil
}

// ContextExists reports whether a context with the given id exists.
func (c *Catalog) ContextExists(id int64) (bool, error) {
	return c.exists(&Context{}, id)
}

// SubmissionExists reports whether a submission with the given id exists.
func (c *Catalog) SubmissionExists(id int64) (bool, error) {
	return c.exists(&Submission{}, id)
}

// GalleyExists reports whether a galley with the given id exists.
func (c *Catalog) GalleyExists(id int64) (bool, error) {
	return c.exists(&Galley{}, id)
}

// SubmissionFileExists reports whether a submission file with the given id exists.
func (c *Catalog) SubmissionFileExists(id int64) (bool, error) {
	return c.exists(&SubmissionFile{}, id)
}

// InstitutionExists reports whether an institution with the given id exists.
func (c *Catalog) InstitutionExists(id int64) (bool, error) {
	return c.exists(&Institution{}, id)
}
