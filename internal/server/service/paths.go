package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"drive/internal/server/database"
)

// MaxDepth bounds every ancestor walk. A chain longer than this is treated as a cycle.
const MaxDepth = 256

// Crumb is one step of a breadcrumb trail.
type Crumb struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type folderGetter func(ctx context.Context, id string) (*database.Folder, error)

// Resolver computes display paths by walking parent references. Nothing is cached.
type Resolver struct {
	store database.Reader
}

func NewResolver(store database.Reader) *Resolver {
	return &Resolver{store: store}
}

// ResolveFolder returns folder names from the root down to folder, inclusive.
func (r *Resolver) ResolveFolder(ctx context.Context, folder *database.Folder) ([]string, error) {
	chain, err := ancestors(ctx, r.store.GetFolder, folder)
	if err != nil {
		return nil, err
	}
	return names(chain), nil
}

// ResolveFile returns the containing folder names followed by the file name.
// A file whose folder is missing or belongs to another owner is dangling.
func (r *Resolver) ResolveFile(ctx context.Context, file *database.File) ([]string, error) {
	chain, err := r.chainFor(ctx, file.FolderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: file %s in folder %s", ErrDanglingParent, file.ID, *file.FolderID)
		}
		return nil, err
	}
	if len(chain) > 0 && chain[len(chain)-1].OwnerID != file.OwnerID {
		return nil, fmt.Errorf("%w: file %s is in folder %s owned by another owner",
			ErrDanglingParent, file.ID, *file.FolderID)
	}
	return append(names(chain), file.Name), nil
}

// FolderPath resolves a folder reference. A nil reference is the root and yields an empty path.
func (r *Resolver) FolderPath(ctx context.Context, folderID *string) ([]string, error) {
	chain, err := r.chainFor(ctx, folderID)
	if err != nil {
		return nil, err
	}
	return names(chain), nil
}

// Breadcrumbs returns (id, name) pairs from the root down to the folder.
func (r *Resolver) Breadcrumbs(ctx context.Context, folderID *string) ([]Crumb, error) {
	chain, err := r.chainFor(ctx, folderID)
	if err != nil {
		return nil, err
	}
	crumbs := make([]Crumb, len(chain))
	for i, f := range chain {
		crumbs[i] = Crumb{ID: f.ID, Name: f.Name}
	}
	return crumbs, nil
}

func (r *Resolver) chainFor(ctx context.Context, folderID *string) ([]*database.Folder, error) {
	if folderID == nil {
		return []*database.Folder{}, nil
	}
	folder, err := r.store.GetFolder(ctx, *folderID)
	if err != nil {
		return nil, storeError(err)
	}
	return ancestors(ctx, r.store.GetFolder, folder)
}

// ancestors walks from folder up to its root and returns the chain ordered
// root first. Each step goes through get, so a transactional getter locks
// every folder on the way.
func ancestors(ctx context.Context, get folderGetter, folder *database.Folder) ([]*database.Folder, error) {
	chain := []*database.Folder{folder}
	current := folder
	for !current.IsRoot() {
		if len(chain) >= MaxDepth {
			return nil, fmt.Errorf("%w: folder %s is more than %d levels deep", ErrCycleDetected, folder.ID, MaxDepth)
		}
		parent, err := get(ctx, *current.ParentID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, fmt.Errorf("%w: folder %s points at %s", ErrDanglingParent, current.ID, *current.ParentID)
			}
			return nil, storeError(err)
		}
		if parent.OwnerID != folder.OwnerID {
			return nil, fmt.Errorf("%w: folder %s points at %s owned by another owner",
				ErrDanglingParent, current.ID, parent.ID)
		}
		chain = append(chain, parent)
		current = parent
	}
	slices.Reverse(chain)
	return chain, nil
}

func names(chain []*database.Folder) []string {
	out := make([]string, len(chain))
	for i, f := range chain {
		out[i] = f.Name
	}
	return out
}
