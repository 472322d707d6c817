package service

import (
	"errors"
	"fmt"

	"drive/internal/server/database"
)

// Sentinel errors for the service layer.
var (
	ErrNotFound           = errors.New("item not found")
	ErrOwnershipViolation = errors.New("item belongs to another owner")
	ErrInvalidName        = errors.New("name must be 1 to 255 characters")
	ErrInvalidSize        = errors.New("file size must not be negative")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrQuotaExceeded      = errors.New("storage quota exceeded")
	ErrSizeMismatch       = errors.New("received content does not match declared size")
	ErrInvalidMove        = errors.New("folder cannot be moved into itself or one of its descendants")
	ErrInvalidItemType    = errors.New("item type must be file or folder")
	ErrConflict           = errors.New("concurrent modification, retry the request")

	// Integrity errors: the stored hierarchy is corrupt, not the request.
	ErrCycleDetected  = errors.New("folder hierarchy contains a cycle")
	ErrDanglingParent = errors.New("folder references a missing parent")
)

// IsIntegrityError reports whether err stems from a corrupt hierarchy rather
// than from invalid input.
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrCycleDetected) || errors.Is(err, ErrDanglingParent)
}

// storeError translates store sentinels into service sentinels and leaves
// anything else untouched.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return err
	case errors.Is(err, database.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, database.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
