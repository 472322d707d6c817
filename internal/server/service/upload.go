package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"drive/internal/server/database"
	"drive/internal/server/events"
	"drive/internal/server/storage"

	"github.com/google/uuid"
)

// UploadRequest describes one incoming file.
type UploadRequest struct {
	Name     string
	Size     int64
	Content  io.Reader
	FolderID *string
}

// UploadFile stores a new file for ownerID.
//
// The folder, size and quota are validated before any byte reaches the blob
// store. The content is then written without holding a database lock, and
// the record is inserted in a transaction that re-checks the folder. If
// anything fails after the write, the blob is removed again.
func (s *HierarchyService) UploadFile(ctx context.Context, ownerID string, req UploadRequest) (*database.File, error) {
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	folderID := normalizeRef(req.FolderID)

	// 1. Folder ownership and path
	var folderPath []string
	if folderID != nil {
		folder, err := ownedFolder(ctx, s.store.GetFolder, ownerID, *folderID)
		if err != nil {
			return nil, err
		}
		if folderPath, err = s.resolver.ResolveFolder(ctx, folder); err != nil {
			return nil, err
		}
	}

	// 2. Size and quota
	if err := s.quota.CheckUpload(ctx, ownerID, req.Size); err != nil {
		return nil, err
	}

	// 3. Category and content handle
	file := &database.File{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		Name:     name,
		Size:     req.Size,
		Category: s.classifier.Classify(name),
		FolderID: folderID,
	}
	file.BlobKey = storage.ObjectKey(ownerID, folderPath, file.ID, name)

	// 4. Content. One byte past the declared size is enough to detect a mismatch.
	written, err := s.blobs.Put(ctx, file.BlobKey, io.LimitReader(req.Content, req.Size+1))
	if err != nil {
		s.discardBlob(ctx, file.BlobKey)
		return nil, fmt.Errorf("failed to store file content: %w", err)
	}
	if written != req.Size {
		s.discardBlob(ctx, file.BlobKey)
		return nil, fmt.Errorf("%w: declared %d bytes, received %d", ErrSizeMismatch, req.Size, written)
	}

	// 5. Record
	file.UploadedAt = s.now().UTC()
	err = s.store.InTx(ctx, func(tx database.Tx) error {
		if folderID != nil {
			if _, err := ownedFolder(ctx, tx.FolderForUpdate, ownerID, *folderID); err != nil {
				return err
			}
		}
		if s.quota.Limits().Strict {
			if err := tx.LockOwner(ctx, ownerID); err != nil {
				return storeError(err)
			}
			usage, err := tx.SumFileSizes(ctx, ownerID)
			if err != nil {
				return storeError(err)
			}
			if err := s.quota.checkUsage(usage, file.Size); err != nil {
				return err
			}
		}
		if err := tx.InsertFile(ctx, file); err != nil {
			return storeError(err)
		}
		return nil
	})
	if err != nil {
		s.discardBlob(ctx, file.BlobKey)
		return nil, txError("create file record", err)
	}

	slog.Info("file uploaded",
		"owner_id", ownerID,
		"file_id", file.ID,
		"name", file.Name,
		"size", file.Size,
		"category", file.Category,
	)
	s.publish(ctx, events.Event{
		Subject:  events.SubjectFileUploaded,
		OwnerID:  ownerID,
		ItemID:   file.ID,
		ItemType: string(ItemFile),
		Name:     file.Name,
		ParentID: file.FolderID,
		Size:     file.Size,
	})
	return file, nil
}
