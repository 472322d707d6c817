package core

import "path/filepath"

// Node is an entry of a local tree queued for upload.
type Node interface {
	Path() string
	Name() string
}

// entry holds what files and directories share: where they live on disk
// and the name they will get remotely.
type entry struct {
	path string
	name string
}

func newEntry(localPath string) entry {
	return entry{path: localPath, name: filepath.Base(localPath)}
}

func (e entry) Path() string { return e.path }
func (e entry) Name() string { return e.name }

// File is a regular local file.
type File struct {
	entry
	size int64
	dir  *Dir
}

func (f *File) Size() int64 { return f.size }

// Dir is a local directory. Children keep the order of os.ReadDir.
type Dir struct {
	entry
	children []Node
	parent   *Dir
}

func (d *Dir) Children() []Node { return d.children }
