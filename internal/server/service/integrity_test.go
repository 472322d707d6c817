package service

import (
	"context"
	"testing"
	"time"

	"drive/internal/server/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrityMonitor_Sweep(t *testing.T) {
	ctx := context.Background()

	t.Run("clean hierarchy", func(t *testing.T) {
		f := newFixture(t, DefaultQuotaLimits())
		a := f.mkdir(t, "u1", "A", nil)
		f.mkdir(t, "u1", "B", ref(a.ID))
		f.upload(t, "u1", "x.txt", 1, ref(a.ID))
		f.mkdir(t, "u2", "C", nil)

		report, err := NewIntegrityMonitor(f.store, time.Hour).Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Owners)
		assert.Equal(t, 3, report.Folders)
		assert.Equal(t, 1, report.Files)
		assert.Empty(t, report.Problems)
	})

	t.Run("reports corrupt records without touching them", func(t *testing.T) {
		store := database.NewMemoryStore()
		store.Seed(
			[]*database.Folder{
				{ID: "x", OwnerID: "u1", Name: "X", ParentID: ref("y")},
				{ID: "y", OwnerID: "u1", Name: "Y", ParentID: ref("x")},
				{ID: "o", OwnerID: "u1", Name: "O", ParentID: ref("gone")},
			},
			[]*database.File{
				{ID: "f", OwnerID: "u1", Name: "f.txt", FolderID: ref("gone")},
			},
		)

		report, err := NewIntegrityMonitor(store, time.Hour).Sweep(ctx)
		require.NoError(t, err)
		require.Len(t, report.Problems, 4)

		byItem := map[string]IntegrityProblem{}
		for _, p := range report.Problems {
			byItem[p.ItemID] = p
		}
		assert.Contains(t, byItem["x"].Error, ErrCycleDetected.Error())
		assert.Contains(t, byItem["o"].Error, ErrDanglingParent.Error())
		assert.Equal(t, ItemFile, byItem["f"].ItemType)

		folders, err := store.OwnerFolders(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, folders, 3)
	})
	t.Run("file filed under a foreign folder", func(t *testing.T) {
		store := database.NewMemoryStore()
		store.Seed(
			[]*database.Folder{{ID: "theirs", OwnerID: "u2", Name: "T"}},
			[]*database.File{{ID: "f", OwnerID: "u1", Name: "f.txt", FolderID: ref("theirs")}},
		)

		report, err := NewIntegrityMonitor(store, time.Hour).Sweep(ctx)
		require.NoError(t, err)
		require.Len(t, report.Problems, 1)
		assert.Equal(t, "f", report.Problems[0].ItemID)
		assert.Contains(t, report.Problems[0].Error, ErrDanglingParent.Error())
	})
}

func TestIntegrityMonitor_StartStop(t *testing.T) {
	store := database.NewMemoryStore()
	m := NewIntegrityMonitor(store, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
