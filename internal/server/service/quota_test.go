package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"drive/internal/server/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mib = 1 << 20

func TestQuota_CheckUpload(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		usage   int64
		size    int64
		wantErr error
	}{
		{"small file, empty drive", 0, 1024, nil},
		{"zero byte file", 0, 0, nil},
		{"negative size", 0, -1, ErrInvalidSize},
		{"over per-file limit with zero usage", 0, 10*mib + 1, ErrFileTooLarge},
		{"exactly per-file limit", 0, 10 * mib, nil},
		{"reaches cap exactly", 45 * mib, 5 * mib, nil},
		{"one byte over cap", 45 * mib, 5*mib + 1, ErrQuotaExceeded},
		{"already at cap", 50 * mib, 1, ErrQuotaExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := database.NewMemoryStore()
			if tt.usage > 0 {
				store.Seed(nil, []*database.File{{ID: "seed", OwnerID: "u1", Size: tt.usage}})
			}
			q := NewQuota(store, DefaultQuotaLimits())

			err := q.CheckUpload(ctx, "u1", tt.size)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestQuota_SequentialUploadsHitCap(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	q := NewQuota(store, QuotaLimits{MaxFileSizeBytes: 20 * mib, MaxOwnerStorageBytes: 50 * mib})

	for i := range 3 {
		err := q.CheckUpload(ctx, "u1", 20*mib)
		if i < 2 {
			require.NoError(t, err, "upload %d", i+1)
			store.Seed(nil, []*database.File{{ID: fmt.Sprintf("f%d", i), OwnerID: "u1", Size: 20 * mib}})
			continue
		}
		assert.ErrorIs(t, err, ErrQuotaExceeded)
	}

	usage, err := q.CurrentUsage(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 40*mib, usage)
}

func TestQuota_CurrentUsage(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	now := time.Now()
	store.Seed(
		[]*database.Folder{{ID: "a", OwnerID: "u1", Name: "A"}},
		[]*database.File{
			{ID: "f1", OwnerID: "u1", Size: 100, UploadedAt: now},
			{ID: "f2", OwnerID: "u1", Size: 250, FolderID: ref("a"), UploadedAt: now},
			{ID: "f3", OwnerID: "u2", Size: 999, UploadedAt: now},
		},
	)
	q := NewQuota(store, DefaultQuotaLimits())

	usage, err := q.CurrentUsage(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 350, usage)

	usage, err = q.CurrentUsage(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, usage)
}
