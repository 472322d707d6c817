package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"unicode/utf8"
)

const (
	// maxSegmentBytes is the longest single path segment a filesystem accepts (NAME_MAX).
	maxSegmentBytes = 255
	// MaxKeyBytes is the longest object key S3-compatible stores accept.
	MaxKeyBytes = 1024
	maxExtBytes = 32
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrInvalidKey   = errors.New("invalid blob key")
)

// BlobStore holds file contents under opaque keys.
// Backends are interchangeable: local filesystem for single-node runs, MinIO/S3 otherwise.
type BlobStore interface {
	// Put stores everything read from r under key and returns the number of bytes written.
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the blob. A missing blob is not an error.
	Delete(ctx context.Context, key string) error
	EnsureReady(ctx context.Context) error
}

// ObjectKey builds the storage key for a file:
// user_<owner>/<folder>/<sub>/<fileID>_<name>.
// Every segment fits in maxSegmentBytes. When the folder path would push the
// key past MaxKeyBytes it is left out and the key becomes user_<owner>/<fileID>_<name>.
func ObjectKey(ownerID string, folderPath []string, fileID, name string) string {
	owner := "user_" + sanitizeSegment(ownerID, maxSegmentBytes-len("user_"))
	leaf := fileID + "_" + sanitizeSegment(name, max(maxSegmentBytes-len(fileID)-1, 1))

	parts := make([]string, 0, len(folderPath)+2)
	parts = append(parts, owner)
	for _, p := range folderPath {
		parts = append(parts, sanitizeSegment(p, maxSegmentBytes))
	}
	parts = append(parts, leaf)

	if key := path.Join(parts...); len(key) <= MaxKeyBytes {
		return key
	}
	return path.Join(owner, leaf)
}

// sanitizeSegment reduces a user-supplied name to a single safe path segment
// of at most budget bytes of valid UTF-8. A short extension survives truncation.
func sanitizeSegment(name string, budget int) string {
	name = strings.ToValidUTF8(name, "_")
	// Normalize Windows-style backslashes before taking the base name.
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)

	if len(name) > budget {
		ext := path.Ext(name)
		if len(ext) > maxExtBytes || len(ext) >= budget {
			ext = ""
		}
		name = cutUTF8(name[:len(name)-len(ext)], budget-len(ext)) + ext
	}

	if name == "" || name == "." || name == ".." || name == "/" {
		name = "_"
	}
	return name
}

// cutUTF8 returns the longest prefix of s that is at most n bytes and ends on a rune boundary.
func cutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// validKey rejects keys that could escape the store's namespace.
func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}
