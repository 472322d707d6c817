package service

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"drive/internal/server/database"
)

// MonthlyUsage is the volume uploaded in one calendar month (UTC).
type MonthlyUsage struct {
	Month string `json:"month"` // YYYY-MM
	Bytes int64  `json:"bytes"`
}

type CategoryUsage struct {
	Category database.Category `json:"category"`
	Bytes    int64             `json:"bytes"`
}

type UsageSummary struct {
	UsedBytes      int64 `json:"used_bytes"`
	LimitBytes     int64 `json:"limit_bytes"`
	RemainingBytes int64 `json:"remaining_bytes"`
	Files          int   `json:"files"`
	Folders        int   `json:"folders"`
}

// UsageReporter aggregates an owner's files for display. It never writes.
type UsageReporter struct {
	store database.Reader
	quota *Quota
}

func NewUsageReporter(store database.Reader, quota *Quota) *UsageReporter {
	return &UsageReporter{store: store, quota: quota}
}

// UsageOverTime sums upload sizes per month, oldest first. Months without uploads are omitted.
func (r *UsageReporter) UsageOverTime(ctx context.Context, ownerID string) ([]MonthlyUsage, error) {
	files, err := r.store.OwnerFiles(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load files: %w", storeError(err))
	}

	byMonth := make(map[string]int64)
	for _, f := range files {
		byMonth[f.UploadedAt.UTC().Format("2006-01")] += f.Size
	}

	out := make([]MonthlyUsage, 0, len(byMonth))
	for _, month := range slices.Sorted(maps.Keys(byMonth)) {
		out = append(out, MonthlyUsage{Month: month, Bytes: byMonth[month]})
	}
	return out, nil
}

// UsageByCategory sums sizes per category, ordered by category name.
func (r *UsageReporter) UsageByCategory(ctx context.Context, ownerID string) ([]CategoryUsage, error) {
	files, err := r.store.OwnerFiles(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load files: %w", storeError(err))
	}

	byCategory := make(map[database.Category]int64)
	for _, f := range files {
		byCategory[f.Category] += f.Size
	}

	out := make([]CategoryUsage, 0, len(byCategory))
	for _, c := range slices.Sorted(maps.Keys(byCategory)) {
		out = append(out, CategoryUsage{Category: c, Bytes: byCategory[c]})
	}
	return out, nil
}

// Summary reports used and remaining storage along with item counts.
func (r *UsageReporter) Summary(ctx context.Context, ownerID string) (*UsageSummary, error) {
	files, err := r.store.OwnerFiles(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load files: %w", storeError(err))
	}
	folders, err := r.store.OwnerFolders(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load folders: %w", storeError(err))
	}

	summary := &UsageSummary{
		LimitBytes: r.quota.Limits().MaxOwnerStorageBytes,
		Files:      len(files),
		Folders:    len(folders),
	}
	for _, f := range files {
		summary.UsedBytes += f.Size
	}
	summary.RemainingBytes = max(summary.LimitBytes-summary.UsedBytes, 0)
	return summary, nil
}
