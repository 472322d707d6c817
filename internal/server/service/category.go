package service

import (
	"fmt"
	"path"
	"strings"

	"drive/internal/server/database"
)

// CategoryRule maps one lowercase extension (without the dot) to a category.
type CategoryRule struct {
	Extension string            `json:"extension"`
	Category  database.Category `json:"category"`
}

// DefaultCategoryTable is used when no table is configured.
var DefaultCategoryTable = []CategoryRule{
	{"jpg", database.CategoryImage},
	{"jpeg", database.CategoryImage},
	{"png", database.CategoryImage},
	{"gif", database.CategoryImage},
	{"bmp", database.CategoryImage},
	{"webp", database.CategoryImage},
	{"svg", database.CategoryImage},
	{"pdf", database.CategoryDocument},
	{"doc", database.CategoryDocument},
	{"docx", database.CategoryDocument},
	{"odt", database.CategoryDocument},
	{"rtf", database.CategoryDocument},
	{"txt", database.CategoryDocument},
	{"md", database.CategoryDocument},
	{"xls", database.CategoryDocument},
	{"xlsx", database.CategoryDocument},
	{"ppt", database.CategoryDocument},
	{"pptx", database.CategoryDocument},
	{"mp4", database.CategoryVideo},
	{"avi", database.CategoryVideo},
	{"mov", database.CategoryVideo},
	{"mkv", database.CategoryVideo},
	{"webm", database.CategoryVideo},
	{"mp3", database.CategoryAudio},
	{"wav", database.CategoryAudio},
	{"flac", database.CategoryAudio},
	{"ogg", database.CategoryAudio},
	{"m4a", database.CategoryAudio},
}

// Classifier derives a file's category from its name. The first rule whose
// extension matches wins; anything unmatched is CategoryOther.
type Classifier struct {
	rules []CategoryRule
}

// NewClassifier validates and normalizes rules. An empty table selects DefaultCategoryTable.
func NewClassifier(rules []CategoryRule) (*Classifier, error) {
	if len(rules) == 0 {
		rules = DefaultCategoryTable
	}
	normalized := make([]CategoryRule, 0, len(rules))
	for i, r := range rules {
		ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(r.Extension), "."))
		if ext == "" {
			return nil, fmt.Errorf("category rule %d: empty extension", i)
		}
		switch r.Category {
		case database.CategoryImage, database.CategoryDocument, database.CategoryVideo,
			database.CategoryAudio, database.CategoryOther:
		default:
			return nil, fmt.Errorf("category rule %d: unknown category %q", i, r.Category)
		}
		normalized = append(normalized, CategoryRule{Extension: ext, Category: r.Category})
	}
	return &Classifier{rules: normalized}, nil
}

// Classify returns the category for a file name.
func (c *Classifier) Classify(name string) database.Category {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" {
		return database.CategoryOther
	}
	for _, r := range c.rules {
		if r.Extension == ext {
			return r.Category
		}
	}
	return database.CategoryOther
}
