package service

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"path/filepath"
	"sync/atomic"
	"testing"

	"drive/internal/server/database"
	"drive/internal/server/events"
	"drive/internal/server/storage"

	"github.com/stretchr/testify/require"
)

func ref(s string) *string { return &s }

type fixture struct {
	store  *database.MemoryStore
	blobs  *hookBlobs
	dir    string
	events *events.Recorder
	quota  *Quota
	svc    *HierarchyService
	usage  *UsageReporter
}

func newFixture(t *testing.T, limits QuotaLimits) *fixture {
	t.Helper()
	dir := t.TempDir()
	fsStore := storage.NewFileSystemStore(dir)
	require.NoError(t, fsStore.EnsureReady(context.Background()))

	store := database.NewMemoryStore()
	blobs := &hookBlobs{BlobStore: fsStore}
	rec := &events.Recorder{}
	quota := NewQuota(store, limits)
	classifier, err := NewClassifier(nil)
	require.NoError(t, err)

	return &fixture{
		store:  store,
		blobs:  blobs,
		dir:    dir,
		events: rec,
		quota:  quota,
		svc:    NewHierarchyService(store, blobs, quota, classifier, rec),
		usage:  NewUsageReporter(store, quota),
	}
}

func (f *fixture) mkdir(t *testing.T, owner, name string, parent *string) *database.Folder {
	t.Helper()
	folder, err := f.svc.CreateFolder(context.Background(), owner, name, parent)
	require.NoError(t, err)
	return folder
}

func (f *fixture) upload(t *testing.T, owner, name string, size int, folderID *string) *database.File {
	t.Helper()
	file, err := f.svc.UploadFile(context.Background(), owner, UploadRequest{
		Name:     name,
		Size:     int64(size),
		Content:  bytes.NewReader(bytes.Repeat([]byte("x"), size)),
		FolderID: folderID,
	})
	require.NoError(t, err)
	return file
}

// blobFiles lists every blob currently on disk, relative to the store root.
func (f *fixture) blobFiles(t *testing.T) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(f.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(f.dir, path)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

// hookBlobs wraps a BlobStore, counts calls and lets a test run code right
// after a Put succeeds.
type hookBlobs struct {
	storage.BlobStore
	puts     atomic.Int32
	afterPut func()
}

func (h *hookBlobs) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	h.puts.Add(1)
	n, err := h.BlobStore.Put(ctx, key, r)
	if err == nil && h.afterPut != nil {
		h.afterPut()
	}
	return n, err
}

// faultyStore fails DeleteFolders inside every transaction.
type faultyStore struct {
	*database.MemoryStore
	err error
}

func (s *faultyStore) InTx(ctx context.Context, fn func(tx database.Tx) error) error {
	return s.MemoryStore.InTx(ctx, func(tx database.Tx) error {
		return fn(&faultyTx{Tx: tx, err: s.err})
	})
}

type faultyTx struct {
	database.Tx
	err error
}

func (t *faultyTx) DeleteFolders(context.Context, []string) error {
	return t.err
}
