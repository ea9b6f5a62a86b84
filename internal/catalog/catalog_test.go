package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"countpress/internal/catalog"
	"countpress/internal/testsupport"
)

func TestExistenceChecks(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.SeedCatalog(t, db)
	c := catalog.New(db)

	checks := []struct {
		name   string
		lookup func(int64) (bool, error)
		hit    int64
		miss   int64
	}{
		{"context", c.ContextExists, 1, 2},
		{"submission", c.SubmissionExists, 42, 43},
		{"galley", c.GalleyExists, 3, 4},
		{"submission file", c.SubmissionFileExists, 100, 101},
		{"institution", c.InstitutionExists, 7, 8},
	}

	for _, tt := range checks {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := tt.lookup(tt.hit)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = tt.lookup(tt.miss)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}
