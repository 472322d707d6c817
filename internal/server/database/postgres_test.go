package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrations(t *testing.T) {
	t.Run("versions are unique and ordered", func(t *testing.T) {
		for i := 1; i < len(migrations); i++ {
			assert.Less(t, migrations[i-1].Version, migrations[i].Version)
		}
	})

	t.Run("blob keys are unbounded text", func(t *testing.T) {
		var last string
		for _, m := range migrations {
			if strings.Contains(m.SQL, "blob_key") {
				last = m.SQL
			}
		}
		assert.Contains(t, last, "blob_key TYPE TEXT")
	})
}
