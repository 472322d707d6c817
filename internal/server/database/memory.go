package database

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store: an arena of records indexed by id, with
// parent references held as ids. Transactions are serialized and staged on a
// copy of the arena, which replaces the live one only on commit.
type MemoryStore struct {
	txMu sync.Mutex

	mu      sync.RWMutex
	folders map[string]*Folder
	files   map[string]*File
	owners  map[string]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		folders: make(map[string]*Folder),
		files:   make(map[string]*File),
		owners:  make(map[string]struct{}),
	}
}

func (m *MemoryStore) GetFolder(_ context.Context, id string) (*Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.folders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneFolder(f), nil
}

func (m *MemoryStore) GetFile(_ context.Context, id string) (*File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneFile(f), nil
}

func (m *MemoryStore) ListFolders(_ context.Context, ownerID string, parentID *string) ([]*Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Folder
	for _, f := range m.folders {
		if f.OwnerID == ownerID && sameRef(f.ParentID, parentID) {
			out = append(out, cloneFolder(f))
		}
	}
	slices.SortFunc(out, func(a, b *Folder) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) ListFiles(_ context.Context, ownerID string, folderID *string) ([]*File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*File
	for _, f := range m.files {
		if f.OwnerID == ownerID && sameRef(f.FolderID, folderID) {
			out = append(out, cloneFile(f))
		}
	}
	slices.SortFunc(out, func(a, b *File) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return a.UploadedAt.Compare(b.UploadedAt)
	})
	return out, nil
}

func (m *MemoryStore) OwnerFolders(_ context.Context, ownerID string) ([]*Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Folder
	for _, f := range m.folders {
		if f.OwnerID == ownerID {
			out = append(out, cloneFolder(f))
		}
	}
	slices.SortFunc(out, func(a, b *Folder) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *MemoryStore) OwnerFiles(_ context.Context, ownerID string) ([]*File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*File
	for _, f := range m.files {
		if f.OwnerID == ownerID {
			out = append(out, cloneFile(f))
		}
	}
	slices.SortFunc(out, func(a, b *File) int {
		if c := a.UploadedAt.Compare(b.UploadedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *MemoryStore) SumFileSizes(_ context.Context, ownerID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sumSizes(m.files, ownerID), nil
}

func (m *MemoryStore) Owners(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, f := range m.folders {
		seen[f.OwnerID] = struct{}{}
	}
	for _, f := range m.files {
		seen[f.OwnerID] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

// InTx stages fn's changes on a copy of the arena and publishes them if fn succeeds.
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	tx := &memTx{
		folders: maps.Clone(m.folders),
		files:   maps.Clone(m.files),
		owners:  maps.Clone(m.owners),
	}
	m.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.folders, m.files, m.owners = tx.folders, tx.files, tx.owners
	m.mu.Unlock()
	return nil
}

// memTx mutates its private maps by replacing records, never by editing them in
// place, so the live arena is untouched until commit.
type memTx struct {
	folders map[string]*Folder
	files   map[string]*File
	owners  map[string]struct{}
}

func (t *memTx) FolderForUpdate(_ context.Context, id string) (*Folder, error) {
	f, ok := t.folders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneFolder(f), nil
}

func (t *memTx) FileForUpdate(_ context.Context, id string) (*File, error) {
	f, ok := t.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneFile(f), nil
}

func (t *memTx) LockOwner(_ context.Context, ownerID string) error {
	t.owners[ownerID] = struct{}{}
	return nil
}

func (t *memTx) SumFileSizes(_ context.Context, ownerID string) (int64, error) {
	return sumSizes(t.files, ownerID), nil
}

func (t *memTx) ChildFolderIDs(_ context.Context, parentID string) ([]string, error) {
	var ids []string
	for _, f := range t.folders {
		if f.ParentID != nil && *f.ParentID == parentID {
			ids = append(ids, f.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (t *memTx) FilesInFolders(_ context.Context, folderIDs []string) ([]*File, error) {
	var out []*File
	for _, f := range t.files {
		if f.FolderID != nil && slices.Contains(folderIDs, *f.FolderID) {
			out = append(out, cloneFile(f))
		}
	}
	slices.SortFunc(out, func(a, b *File) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *memTx) InsertFolder(_ context.Context, folder *Folder) error {
	if _, exists := t.folders[folder.ID]; exists {
		return fmt.Errorf("failed to insert folder: duplicate id %s", folder.ID)
	}
	if folder.ParentID != nil {
		if _, ok := t.folders[*folder.ParentID]; !ok {
			return fmt.Errorf("failed to insert folder: parent %s: %w", *folder.ParentID, ErrNotFound)
		}
	}
	t.folders[folder.ID] = cloneFolder(folder)
	return nil
}

func (t *memTx) InsertFile(_ context.Context, file *File) error {
	if _, exists := t.files[file.ID]; exists {
		return fmt.Errorf("failed to insert file: duplicate id %s", file.ID)
	}
	if file.FolderID != nil {
		if _, ok := t.folders[*file.FolderID]; !ok {
			return fmt.Errorf("failed to insert file: folder %s: %w", *file.FolderID, ErrNotFound)
		}
	}
	t.files[file.ID] = cloneFile(file)
	return nil
}

func (t *memTx) RenameFolder(_ context.Context, id, name string) error {
	f, ok := t.folders[id]
	if !ok {
		return ErrNotFound
	}
	c := cloneFolder(f)
	c.Name = name
	t.folders[id] = c
	return nil
}

func (t *memTx) SetFolderParent(_ context.Context, id string, parentID *string) error {
	f, ok := t.folders[id]
	if !ok {
		return ErrNotFound
	}
	if parentID != nil {
		if _, ok := t.folders[*parentID]; !ok {
			return fmt.Errorf("failed to move folder: parent %s: %w", *parentID, ErrNotFound)
		}
	}
	c := cloneFolder(f)
	c.ParentID = cloneRef(parentID)
	t.folders[id] = c
	return nil
}

func (t *memTx) SetFileFolder(_ context.Context, id string, folderID *string) error {
	f, ok := t.files[id]
	if !ok {
		return ErrNotFound
	}
	if folderID != nil {
		if _, ok := t.folders[*folderID]; !ok {
			return fmt.Errorf("failed to move file: folder %s: %w", *folderID, ErrNotFound)
		}
	}
	c := cloneFile(f)
	c.FolderID = cloneRef(folderID)
	t.files[id] = c
	return nil
}

func (t *memTx) DeleteFiles(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(t.files, id)
	}
	return nil
}

// DeleteFolders enforces the same referential rule as the folders table: no
// surviving folder or file may point at a deleted folder.
func (t *memTx) DeleteFolders(_ context.Context, ids []string) error {
	doomed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		doomed[id] = struct{}{}
	}
	for _, f := range t.folders {
		if _, gone := doomed[f.ID]; gone || f.ParentID == nil {
			continue
		}
		if _, gone := doomed[*f.ParentID]; gone {
			return fmt.Errorf("failed to delete folders: folder %s still references %s", f.ID, *f.ParentID)
		}
	}
	for _, f := range t.files {
		if f.FolderID == nil {
			continue
		}
		if _, gone := doomed[*f.FolderID]; gone {
			return fmt.Errorf("failed to delete folders: file %s still references %s", f.ID, *f.FolderID)
		}
	}
	for id := range doomed {
		delete(t.folders, id)
	}
	return nil
}

// Seed inserts records as-is, bypassing all validation. It exists to build
// deliberately inconsistent hierarchies in tests.
func (m *MemoryStore) Seed(folders []*Folder, files []*File) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range folders {
		m.folders[f.ID] = cloneFolder(f)
	}
	for _, f := range files {
		m.files[f.ID] = cloneFile(f)
	}
}

func sumSizes(files map[string]*File, ownerID string) int64 {
	var total int64
	for _, f := range files {
		if f.OwnerID == ownerID {
			total += f.Size
		}
	}
	return total
}

func cloneRef(ref *string) *string {
	if ref == nil {
		return nil
	}
	v := *ref
	return &v
}
