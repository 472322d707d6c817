package service

import (
	"context"
	"fmt"
	"testing"

	"drive/internal/server/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedChain stores a chain of depth folders c0 <- c1 <- ... and returns the deepest.
func seedChain(store *database.MemoryStore, owner string, depth int) *database.Folder {
	var folders []*database.Folder
	var parent *string
	for i := range depth {
		f := &database.Folder{ID: fmt.Sprintf("c%d", i), OwnerID: owner, Name: fmt.Sprintf("n%d", i), ParentID: parent}
		folders = append(folders, f)
		parent = ref(f.ID)
	}
	store.Seed(folders, nil)
	return folders[len(folders)-1]
}

func TestResolver_ResolveFolder(t *testing.T) {
	ctx := context.Background()

	for _, depth := range []int{1, 2, 7, MaxDepth} {
		t.Run(fmt.Sprintf("depth %d", depth), func(t *testing.T) {
			store := database.NewMemoryStore()
			leaf := seedChain(store, "u1", depth)

			path, err := NewResolver(store).ResolveFolder(ctx, leaf)
			require.NoError(t, err)
			assert.Len(t, path, depth)
			assert.Equal(t, "n0", path[0])
			assert.Equal(t, leaf.Name, path[len(path)-1])
		})
	}

	t.Run("deeper than bound", func(t *testing.T) {
		store := database.NewMemoryStore()
		leaf := seedChain(store, "u1", MaxDepth+1)

		_, err := NewResolver(store).ResolveFolder(ctx, leaf)
		assert.ErrorIs(t, err, ErrCycleDetected)
		assert.True(t, IsIntegrityError(err))
	})

	t.Run("cycle terminates", func(t *testing.T) {
		store := database.NewMemoryStore()
		store.Seed([]*database.Folder{
			{ID: "a", OwnerID: "u1", Name: "A", ParentID: ref("b")},
			{ID: "b", OwnerID: "u1", Name: "B", ParentID: ref("a")},
		}, nil)
		a, err := store.GetFolder(ctx, "a")
		require.NoError(t, err)

		_, err = NewResolver(store).ResolveFolder(ctx, a)
		assert.ErrorIs(t, err, ErrCycleDetected)
	})

	t.Run("dangling parent", func(t *testing.T) {
		store := database.NewMemoryStore()
		store.Seed([]*database.Folder{
			{ID: "a", OwnerID: "u1", Name: "A", ParentID: ref("gone")},
		}, nil)
		a, err := store.GetFolder(ctx, "a")
		require.NoError(t, err)

		_, err = NewResolver(store).ResolveFolder(ctx, a)
		assert.ErrorIs(t, err, ErrDanglingParent)
		assert.True(t, IsIntegrityError(err))
	})

	t.Run("parent owned by someone else", func(t *testing.T) {
		store := database.NewMemoryStore()
		store.Seed([]*database.Folder{
			{ID: "p", OwnerID: "u2", Name: "P"},
			{ID: "a", OwnerID: "u1", Name: "A", ParentID: ref("p")},
		}, nil)
		a, err := store.GetFolder(ctx, "a")
		require.NoError(t, err)

		_, err = NewResolver(store).ResolveFolder(ctx, a)
		assert.ErrorIs(t, err, ErrDanglingParent)
	})
}

func TestResolver_ResolveFile(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	leaf := seedChain(store, "u1", 3)
	r := NewResolver(store)

	t.Run("root file has empty prefix", func(t *testing.T) {
		path, err := r.ResolveFile(ctx, &database.File{ID: "f", OwnerID: "u1", Name: "a.txt"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt"}, path)
	})

	t.Run("nested file", func(t *testing.T) {
		path, err := r.ResolveFile(ctx, &database.File{ID: "f", OwnerID: "u1", Name: "a.txt", FolderID: ref(leaf.ID)})
		require.NoError(t, err)
		assert.Equal(t, []string{"n0", "n1", "n2", "a.txt"}, path)
	})

	t.Run("missing folder", func(t *testing.T) {
		_, err := r.ResolveFile(ctx, &database.File{ID: "f", OwnerID: "u1", Name: "a.txt", FolderID: ref("gone")})
		assert.ErrorIs(t, err, ErrDanglingParent)
	})

	t.Run("folder of another owner", func(t *testing.T) {
		_, err := r.ResolveFile(ctx, &database.File{ID: "f", OwnerID: "u2", Name: "a.txt", FolderID: ref(leaf.ID)})
		assert.ErrorIs(t, err, ErrDanglingParent)
	})
}

func TestResolver_FolderPathAndBreadcrumbs(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	leaf := seedChain(store, "u1", 2)
	r := NewResolver(store)

	path, err := r.FolderPath(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, path)

	crumbs, err := r.Breadcrumbs(ctx, ref(leaf.ID))
	require.NoError(t, err)
	assert.Equal(t, []Crumb{{ID: "c0", Name: "n0"}, {ID: "c1", Name: "n1"}}, crumbs)

	_, err = r.Breadcrumbs(ctx, ref("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsIntegrityError(err))
}
