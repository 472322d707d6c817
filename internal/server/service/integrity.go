package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"drive/internal/server/database"
)

// IntegrityProblem is one record whose path could not be resolved.
type IntegrityProblem struct {
	OwnerID  string   `json:"owner_id"`
	ItemID   string   `json:"item_id"`
	ItemType ItemType `json:"item_type"`
	Error    string   `json:"error"`
}

type IntegrityReport struct {
	Owners   int                `json:"owners"`
	Folders  int                `json:"folders"`
	Files    int                `json:"files"`
	Problems []IntegrityProblem `json:"problems"`
}

// IntegrityMonitor periodically resolves the path of every folder and file
// and logs the ones that fail. It only reads; repairs are left to an operator.
type IntegrityMonitor struct {
	store    database.Reader
	resolver *Resolver
	interval time.Duration
	done     chan struct{}
}

func NewIntegrityMonitor(store database.Reader, interval time.Duration) *IntegrityMonitor {
	return &IntegrityMonitor{
		store:    store,
		resolver: NewResolver(store),
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (m *IntegrityMonitor) Start(ctx context.Context) {
	slog.Info("integrity monitor started", "interval", m.interval)

	go func() {
		defer close(m.done)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.runSweep(ctx)

		for {
			select {
			case <-ticker.C:
				m.runSweep(ctx)
			case <-ctx.Done():
				slog.Info("integrity monitor stopping")
				return
			}
		}
	}()
}

// Wait blocks until the monitor has fully stopped.
func (m *IntegrityMonitor) Wait() {
	<-m.done
}

func (m *IntegrityMonitor) runSweep(ctx context.Context) {
	report, err := m.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("integrity sweep failed", "error", err)
		}
		return
	}

	for _, p := range report.Problems {
		slog.Error("hierarchy integrity violation",
			"owner_id", p.OwnerID,
			"item_id", p.ItemID,
			"item_type", p.ItemType,
			"error", p.Error,
		)
	}
	slog.Info("integrity sweep complete",
		"owners", report.Owners,
		"folders", report.Folders,
		"files", report.Files,
		"problems", len(report.Problems),
	)
}

// Sweep checks every owner once. Integrity errors are collected in the
// report; any other failure aborts the sweep.
func (m *IntegrityMonitor) Sweep(ctx context.Context) (*IntegrityReport, error) {
	owners, err := m.store.Owners(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}

	report := &IntegrityReport{Owners: len(owners), Problems: []IntegrityProblem{}}
	for _, owner := range owners {
		if err := m.sweepOwner(ctx, owner, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (m *IntegrityMonitor) sweepOwner(ctx context.Context, ownerID string, report *IntegrityReport) error {
	folders, err := m.store.OwnerFolders(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to load folders of %s: %w", ownerID, err)
	}
	for _, f := range folders {
		report.Folders++
		if _, err := m.resolver.ResolveFolder(ctx, f); err != nil {
			if !IsIntegrityError(err) {
				return err
			}
			report.Problems = append(report.Problems, IntegrityProblem{
				OwnerID: ownerID, ItemID: f.ID, ItemType: ItemFolder, Error: err.Error(),
			})
		}
	}

	files, err := m.store.OwnerFiles(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to load files of %s: %w", ownerID, err)
	}
	for _, f := range files {
		report.Files++
		if _, err := m.resolver.ResolveFile(ctx, f); err != nil {
			if !IsIntegrityError(err) {
				return err
			}
			report.Problems = append(report.Problems, IntegrityProblem{
				OwnerID: ownerID, ItemID: f.ID, ItemType: ItemFile, Error: err.Error(),
			})
		}
	}
	return nil
}
