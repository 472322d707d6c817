package service

import (
	"context"
	"fmt"

	"drive/internal/server/database"
)

const (
	DefaultMaxFileSizeBytes     int64 = 10 << 20
	DefaultMaxOwnerStorageBytes int64 = 50 << 20
)

// QuotaLimits are the per-owner storage limits.
//
// With Strict unset the quota check runs before the upload transaction, so
// concurrent uploads by one owner can overshoot the cap by at most one file.
// Strict serializes uploads per owner and re-checks inside the transaction.
type QuotaLimits struct {
	MaxFileSizeBytes     int64
	MaxOwnerStorageBytes int64
	Strict               bool
}

func DefaultQuotaLimits() QuotaLimits {
	return QuotaLimits{
		MaxFileSizeBytes:     DefaultMaxFileSizeBytes,
		MaxOwnerStorageBytes: DefaultMaxOwnerStorageBytes,
	}
}

// Quota computes usage and enforces QuotaLimits. Usage is always derived
// from the stored files.
type Quota struct {
	store  database.Reader
	limits QuotaLimits
}

func NewQuota(store database.Reader, limits QuotaLimits) *Quota {
	return &Quota{store: store, limits: limits}
}

func (q *Quota) Limits() QuotaLimits {
	return q.limits
}

// CurrentUsage sums the sizes of every file the owner has, wherever it sits.
func (q *Quota) CurrentUsage(ctx context.Context, ownerID string) (int64, error) {
	usage, err := q.store.SumFileSizes(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to compute usage: %w", storeError(err))
	}
	return usage, nil
}

// CheckUpload decides whether a file of size bytes may be added for owner.
// Reaching the cap exactly is allowed.
func (q *Quota) CheckUpload(ctx context.Context, ownerID string, size int64) error {
	if err := q.checkSize(size); err != nil {
		return err
	}
	usage, err := q.CurrentUsage(ctx, ownerID)
	if err != nil {
		return err
	}
	return q.checkUsage(usage, size)
}

func (q *Quota) checkSize(size int64) error {
	if size < 0 {
		return ErrInvalidSize
	}
	if size > q.limits.MaxFileSizeBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, size, q.limits.MaxFileSizeBytes)
	}
	return nil
}

func (q *Quota) checkUsage(usage, size int64) error {
	if usage+size > q.limits.MaxOwnerStorageBytes {
		return fmt.Errorf("%w: %d bytes in use, %d requested, limit %d",
			ErrQuotaExceeded, usage, size, q.limits.MaxOwnerStorageBytes)
	}
	return nil
}
