package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"drive/internal/server/database"
	"drive/internal/server/events"
	"drive/internal/server/storage"

	"github.com/google/uuid"
)

const maxNameLength = 255

// ItemType selects between the two kinds of hierarchy entries.
type ItemType string

const (
	ItemFile   ItemType = "file"
	ItemFolder ItemType = "folder"
)

// ParseItemType accepts "file" or "folder".
func ParseItemType(s string) (ItemType, error) {
	switch t := ItemType(strings.ToLower(strings.TrimSpace(s))); t {
	case ItemFile, ItemFolder:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidItemType, s)
}

// IsRootRef reports whether a folder reference denotes the owner's root.
// nil, "", "root" and "0" are all accepted.
func IsRootRef(ref *string) bool {
	if ref == nil {
		return true
	}
	switch strings.TrimSpace(*ref) {
	case "", "root", "0":
		return true
	}
	return false
}

func normalizeRef(ref *string) *string {
	if IsRootRef(ref) {
		return nil
	}
	id := strings.TrimSpace(*ref)
	return &id
}

// DeleteResult describes what a delete removed.
type DeleteResult struct {
	Folders    int   `json:"folders"`
	Files      int   `json:"files"`
	BytesFreed int64 `json:"bytes_freed"`
}

// FolderListing is the content of one folder together with its trail from the root.
type FolderListing struct {
	Folder      *database.Folder   `json:"folder,omitempty"`
	Folders     []*database.Folder `json:"folders"`
	Files       []*database.File   `json:"files"`
	Breadcrumbs []Crumb            `json:"breadcrumbs"`
}

// HierarchyService owns every mutation of an owner's folders and files.
type HierarchyService struct {
	store      database.Store
	blobs      storage.BlobStore
	resolver   *Resolver
	quota      *Quota
	classifier *Classifier
	events     events.Publisher
	now        func() time.Time
}

// NewHierarchyService creates a new hierarchy service.
func NewHierarchyService(
	store database.Store,
	blobs storage.BlobStore,
	quota *Quota,
	classifier *Classifier,
	publisher events.Publisher,
) *HierarchyService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &HierarchyService{
		store:      store,
		blobs:      blobs,
		resolver:   NewResolver(store),
		quota:      quota,
		classifier: classifier,
		events:     publisher,
		now:        time.Now,
	}
}

// Resolver exposes the path resolver bound to the same store.
func (s *HierarchyService) Resolver() *Resolver {
	return s.resolver
}

// CreateFolder adds a folder under parentID, or at the root when parentID is a root reference.
// Sibling names need not be unique.
func (s *HierarchyService) CreateFolder(ctx context.Context, ownerID, name string, parentID *string) (*database.Folder, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	parent := normalizeRef(parentID)

	folder := &database.Folder{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		ParentID:  parent,
		CreatedAt: s.now().UTC(),
	}

	err = s.store.InTx(ctx, func(tx database.Tx) error {
		if parent != nil {
			if _, err := ownedFolder(ctx, tx.FolderForUpdate, ownerID, *parent); err != nil {
				return err
			}
		}
		if err := tx.InsertFolder(ctx, folder); err != nil {
			return storeError(err)
		}
		return nil
	})
	if err != nil {
		return nil, txError("create folder", err)
	}

	s.publish(ctx, events.Event{
		Subject:  events.SubjectFolderCreated,
		OwnerID:  ownerID,
		ItemID:   folder.ID,
		ItemType: string(ItemFolder),
		Name:     folder.Name,
		ParentID: folder.ParentID,
	})
	return folder, nil
}

// RenameFolder changes a folder's name in place.
func (s *HierarchyService) RenameFolder(ctx context.Context, ownerID, folderID, name string) (*database.Folder, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}

	var folder *database.Folder
	err = s.store.InTx(ctx, func(tx database.Tx) error {
		f, err := ownedFolder(ctx, tx.FolderForUpdate, ownerID, folderID)
		if err != nil {
			return err
		}
		if err := tx.RenameFolder(ctx, f.ID, name); err != nil {
			return storeError(err)
		}
		f.Name = name
		folder = f
		return nil
	})
	if err != nil {
		return nil, txError("rename folder", err)
	}

	s.publish(ctx, events.Event{
		Subject:  events.SubjectFolderRenamed,
		OwnerID:  ownerID,
		ItemID:   folder.ID,
		ItemType: string(ItemFolder),
		Name:     folder.Name,
		ParentID: folder.ParentID,
	})
	return folder, nil
}

// MoveItem reparents a file or folder. A root reference as destination moves
// the item to the root. A folder may not be moved into itself or any of its
// descendants. Moving an item to where it already is succeeds without change.
func (s *HierarchyService) MoveItem(ctx context.Context, ownerID, itemID string, itemType ItemType, destinationID *string) error {
	if itemType != ItemFile && itemType != ItemFolder {
		return fmt.Errorf("%w: %q", ErrInvalidItemType, itemType)
	}
	dest := normalizeRef(destinationID)

	var moved bool
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		if itemType == ItemFile {
			moved, err = s.moveFile(ctx, tx, ownerID, itemID, dest)
		} else {
			moved, err = s.moveFolder(ctx, tx, ownerID, itemID, dest)
		}
		return err
	})
	if err != nil {
		return txError("move item", err)
	}

	if moved {
		s.publish(ctx, events.Event{
			Subject:  events.SubjectItemMoved,
			OwnerID:  ownerID,
			ItemID:   itemID,
			ItemType: string(itemType),
			ParentID: dest,
		})
	}
	return nil
}

func (s *HierarchyService) moveFile(ctx context.Context, tx database.Tx, ownerID, fileID string, dest *string) (bool, error) {
	file, err := tx.FileForUpdate(ctx, fileID)
	if err != nil {
		return false, storeError(err)
	}
	if file.OwnerID != ownerID {
		return false, ErrOwnershipViolation
	}
	if dest != nil {
		if _, err := ownedFolder(ctx, tx.FolderForUpdate, ownerID, *dest); err != nil {
			return false, err
		}
	}
	if sameRef(file.FolderID, dest) {
		return false, nil
	}
	if err := tx.SetFileFolder(ctx, file.ID, dest); err != nil {
		return false, storeError(err)
	}
	return true, nil
}

// moveFolder locks the folder, then the destination and every ancestor of
// it. The destination lies inside the moved subtree exactly when the folder
// shows up in that ancestor chain. Holding the locks until commit keeps two
// crossing moves from both passing the check.
func (s *HierarchyService) moveFolder(ctx context.Context, tx database.Tx, ownerID, folderID string, dest *string) (bool, error) {
	folder, err := tx.FolderForUpdate(ctx, folderID)
	if err != nil {
		return false, storeError(err)
	}
	if folder.OwnerID != ownerID {
		return false, ErrOwnershipViolation
	}

	if dest != nil {
		target, err := ownedFolder(ctx, tx.FolderForUpdate, ownerID, *dest)
		if err != nil {
			return false, err
		}
		if target.ID == folder.ID {
			return false, ErrInvalidMove
		}
		chain, err := ancestors(ctx, tx.FolderForUpdate, target)
		if err != nil {
			return false, err
		}
		for _, f := range chain {
			if f.ID == folder.ID {
				return false, ErrInvalidMove
			}
		}
	}

	if sameRef(folder.ParentID, dest) {
		return false, nil
	}
	if err := tx.SetFolderParent(ctx, folder.ID, dest); err != nil {
		return false, storeError(err)
	}
	return true, nil
}

// DeleteItem removes a file, or a folder together with everything below it.
// Records are removed in one transaction; blobs are removed afterwards and a
// failure there is logged, not returned.
func (s *HierarchyService) DeleteItem(ctx context.Context, ownerID, itemID string, itemType ItemType) (*DeleteResult, error) {
	if itemType != ItemFile && itemType != ItemFolder {
		return nil, fmt.Errorf("%w: %q", ErrInvalidItemType, itemType)
	}

	result := &DeleteResult{}
	var blobKeys []string
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		*result = DeleteResult{}
		blobKeys = blobKeys[:0]

		var files []*database.File
		var folderIDs []string
		if itemType == ItemFile {
			file, err := tx.FileForUpdate(ctx, itemID)
			if err != nil {
				return storeError(err)
			}
			if file.OwnerID != ownerID {
				return ErrOwnershipViolation
			}
			files = []*database.File{file}
		} else {
			root, err := tx.FolderForUpdate(ctx, itemID)
			if err != nil {
				return storeError(err)
			}
			if root.OwnerID != ownerID {
				return ErrOwnershipViolation
			}
			folderIDs, err = collectSubtree(ctx, tx, root.ID)
			if err != nil {
				return err
			}
			files, err = tx.FilesInFolders(ctx, folderIDs)
			if err != nil {
				return storeError(err)
			}
		}

		fileIDs := make([]string, len(files))
		for i, f := range files {
			fileIDs[i] = f.ID
			blobKeys = append(blobKeys, f.BlobKey)
			result.BytesFreed += f.Size
		}
		if err := tx.DeleteFiles(ctx, fileIDs); err != nil {
			return storeError(err)
		}
		if err := tx.DeleteFolders(ctx, folderIDs); err != nil {
			return storeError(err)
		}
		result.Files = len(files)
		result.Folders = len(folderIDs)
		return nil
	})
	if err != nil {
		return nil, txError("delete item", err)
	}

	for _, key := range blobKeys {
		s.discardBlob(ctx, key)
	}

	slog.Info("item deleted",
		"owner_id", ownerID,
		"item_id", itemID,
		"item_type", itemType,
		"folders", result.Folders,
		"files", result.Files,
		"bytes_freed", result.BytesFreed,
	)
	s.publish(ctx, events.Event{
		Subject:  events.SubjectItemDeleted,
		OwnerID:  ownerID,
		ItemID:   itemID,
		ItemType: string(itemType),
		Size:     result.BytesFreed,
		Files:    result.Files,
		Folders:  result.Folders,
	})
	return result, nil
}

// collectSubtree returns rootID and every folder below it, breadth-first.
// The visited set stops the walk even on a corrupt, cyclic hierarchy.
func collectSubtree(ctx context.Context, tx database.Tx, rootID string) ([]string, error) {
	visited := map[string]struct{}{rootID: {}}
	ids := []string{rootID}
	for i := 0; i < len(ids); i++ {
		children, err := tx.ChildFolderIDs(ctx, ids[i])
		if err != nil {
			return nil, storeError(err)
		}
		for _, c := range children {
			if _, seen := visited[c]; seen {
				continue
			}
			visited[c] = struct{}{}
			ids = append(ids, c)
		}
	}
	return ids, nil
}

// ListFolder returns the direct content of a folder, or of the root.
func (s *HierarchyService) ListFolder(ctx context.Context, ownerID string, folderID *string) (*FolderListing, error) {
	id := normalizeRef(folderID)
	listing := &FolderListing{}
	if id != nil {
		folder, err := ownedFolder(ctx, s.store.GetFolder, ownerID, *id)
		if err != nil {
			return nil, err
		}
		listing.Folder = folder
	}

	var err error
	if listing.Folders, err = s.store.ListFolders(ctx, ownerID, id); err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", storeError(err))
	}
	if listing.Files, err = s.store.ListFiles(ctx, ownerID, id); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", storeError(err))
	}
	if listing.Breadcrumbs, err = s.resolver.Breadcrumbs(ctx, id); err != nil {
		return nil, err
	}
	if listing.Folders == nil {
		listing.Folders = []*database.Folder{}
	}
	if listing.Files == nil {
		listing.Files = []*database.File{}
	}
	return listing, nil
}

// OpenFile returns a file record with a reader over its content. The caller closes the reader.
func (s *HierarchyService) OpenFile(ctx context.Context, ownerID, fileID string) (*database.File, io.ReadCloser, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, nil, storeError(err)
	}
	if file.OwnerID != ownerID {
		return nil, nil, ErrOwnershipViolation
	}
	rc, err := s.blobs.Get(ctx, file.BlobKey)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, nil, fmt.Errorf("%w: content of file %s is missing", ErrNotFound, file.ID)
		}
		return nil, nil, fmt.Errorf("failed to open file content: %w", err)
	}
	return file, rc, nil
}

// --- Helpers ---

// ownedFolder loads a folder and checks it belongs to ownerID.
func ownedFolder(ctx context.Context, get folderGetter, ownerID, id string) (*database.Folder, error) {
	folder, err := get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if folder.OwnerID != ownerID {
		return nil, ErrOwnershipViolation
	}
	return folder, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// txError passes service sentinels through and wraps anything else.
func txError(op string, err error) error {
	err = storeError(err)
	if isServiceError(err) {
		return err
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isServiceError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrOwnershipViolation, ErrInvalidName, ErrInvalidSize,
		ErrFileTooLarge, ErrQuotaExceeded, ErrSizeMismatch, ErrInvalidMove,
		ErrInvalidItemType, ErrConflict, ErrCycleDetected, ErrDanglingParent,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *HierarchyService) publish(ctx context.Context, ev events.Event) {
	ev.OccurredAt = s.now().UTC()
	if err := s.events.Publish(ctx, ev); err != nil {
		slog.Warn("failed to publish event", "subject", ev.Subject, "item_id", ev.ItemID, "error", err)
	}
}

// discardBlob removes a blob even if ctx has been cancelled.
func (s *HierarchyService) discardBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		slog.Error("failed to delete blob", "key", key, "error", err)
	}
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
