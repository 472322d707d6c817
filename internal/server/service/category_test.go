package service

import (
	"testing"

	"drive/internal/server/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_Default(t *testing.T) {
	c, err := NewClassifier(nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		want database.Category
	}{
		{"photo.jpg", database.CategoryImage},
		{"PHOTO.JPEG", database.CategoryImage},
		{"report.pdf", database.CategoryDocument},
		{"notes.md", database.CategoryDocument},
		{"clip.mkv", database.CategoryVideo},
		{"song.flac", database.CategoryAudio},
		{"archive.tar.gz", database.CategoryOther},
		{"Makefile", database.CategoryOther},
		{"trailing.", database.CategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.name))
		})
	}
}

func TestClassifier_FirstMatchWins(t *testing.T) {
	c, err := NewClassifier([]CategoryRule{
		{Extension: ".SVG", Category: database.CategoryDocument},
		{Extension: "svg", Category: database.CategoryImage},
	})
	require.NoError(t, err)

	assert.Equal(t, database.CategoryDocument, c.Classify("logo.svg"))
	assert.Equal(t, database.CategoryOther, c.Classify("photo.jpg"))
}

func TestNewClassifier_RejectsBadRules(t *testing.T) {
	_, err := NewClassifier([]CategoryRule{{Extension: "", Category: database.CategoryImage}})
	assert.Error(t, err)

	_, err = NewClassifier([]CategoryRule{{Extension: "zip", Category: "archive"}})
	assert.Error(t, err)
}
