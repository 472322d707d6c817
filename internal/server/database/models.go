package database

import "time"

// Category is the coarse content class of a file, derived from its extension.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryOther    Category = "other"
)

// Folder is a node of an owner's hierarchy. A nil ParentID places it at the root.
type Folder struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
}

// IsRoot reports whether the folder sits directly under the owner's root.
func (f *Folder) IsRoot() bool {
	return f.ParentID == nil
}

// File is a stored upload. A nil FolderID places it at the root.
type File struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Category   Category  `json:"category"`
	FolderID   *string   `json:"folder_id"`
	UploadedAt time.Time `json:"uploaded_at"`
	BlobKey    string    `json:"-"`
}

func cloneFolder(f *Folder) *Folder {
	c := *f
	if f.ParentID != nil {
		p := *f.ParentID
		c.ParentID = &p
	}
	return &c
}

func cloneFile(f *File) *File {
	c := *f
	if f.FolderID != nil {
		p := *f.FolderID
		c.FolderID = &p
	}
	return &c
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
