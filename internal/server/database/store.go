package database

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("concurrent modification conflict")
)

// Reader is the read side of the hierarchy store.
type Reader interface {
	GetFolder(ctx context.Context, id string) (*Folder, error)
	GetFile(ctx context.Context, id string) (*File, error)

	// ListFolders returns the direct child folders of parentID (nil = root) for owner, ordered by name.
	ListFolders(ctx context.Context, ownerID string, parentID *string) ([]*Folder, error)
	// ListFiles returns the files directly inside folderID (nil = root) for owner, ordered by name.
	ListFiles(ctx context.Context, ownerID string, folderID *string) ([]*File, error)

	OwnerFolders(ctx context.Context, ownerID string) ([]*Folder, error)
	OwnerFiles(ctx context.Context, ownerID string) ([]*File, error)
	SumFileSizes(ctx context.Context, ownerID string) (int64, error)
	Owners(ctx context.Context) ([]string, error)
}

// Tx is a unit of work. Everything done through a Tx commits together or not at all.
// The ForUpdate reads lock the returned row until the transaction ends.
type Tx interface {
	FolderForUpdate(ctx context.Context, id string) (*Folder, error)
	FileForUpdate(ctx context.Context, id string) (*File, error)
	// LockOwner takes the per-owner row lock used by strict quota enforcement.
	LockOwner(ctx context.Context, ownerID string) error
	SumFileSizes(ctx context.Context, ownerID string) (int64, error)

	ChildFolderIDs(ctx context.Context, parentID string) ([]string, error)
	FilesInFolders(ctx context.Context, folderIDs []string) ([]*File, error)

	InsertFolder(ctx context.Context, folder *Folder) error
	InsertFile(ctx context.Context, file *File) error
	RenameFolder(ctx context.Context, id, name string) error
	SetFolderParent(ctx context.Context, id string, parentID *string) error
	SetFileFolder(ctx context.Context, id string, folderID *string) error

	DeleteFiles(ctx context.Context, ids []string) error
	DeleteFolders(ctx context.Context, ids []string) error
}

// Store is the durable home of folders and files.
type Store interface {
	Reader
	// InTx runs fn in a transaction, committing if fn returns nil and rolling back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
