package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// Filetree is the local content of one push. Each root lands directly in the
// destination folder.
type Filetree struct {
	Roots []Node
	// Skipped lists entries that are neither regular files nor directories.
	Skipped []string
}

func BuildFiletree(paths []ParsedPath) (*Filetree, error) {
	tree := &Filetree{}

	for _, parsedPath := range paths {
		if parsedPath.Kind == PathDir {
			dirNode, err := tree.buildDirTree(parsedPath.FullPath, nil)
			if err != nil {
				return nil, err
			}
			tree.Roots = append(tree.Roots, dirNode)
		} else {
			tree.Roots = append(tree.Roots, &File{
				entry: newEntry(parsedPath.FullPath),
				size:  parsedPath.Size,
			})
		}
	}

	if len(tree.Roots) == 0 {
		return nil, fmt.Errorf("no valid paths provided")
	}
	return tree, nil
}

func (t *Filetree) buildDirTree(dirPath string, parent *Dir) (*Dir, error) {
	dir := &Dir{
		entry:    newEntry(dirPath),
		children: []Node{},
		parent:   parent,
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dirPath, err)
	}

	for _, de := range entries {
		childPath := filepath.Join(dirPath, de.Name())

		switch {
		case de.IsDir():
			childDir, err := t.buildDirTree(childPath, dir)
			if err != nil {
				return nil, err
			}
			dir.children = append(dir.children, childDir)
		case de.Type().IsRegular():
			info, err := de.Info()
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", childPath, err)
			}
			dir.children = append(dir.children, &File{
				entry: newEntry(childPath),
				size:  info.Size(),
				dir:   dir,
			})
		default:
			t.Skipped = append(t.Skipped, childPath)
		}
	}

	return dir, nil
}

// Counts returns the number of directories and files and the total file size.
func (t *Filetree) Counts() (dirs, files int, bytes int64) {
	var walk func(n Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case *Dir:
			dirs++
			for _, c := range v.children {
				walk(c)
			}
		case *File:
			files++
			bytes += v.size
		}
	}
	for _, r := range t.Roots {
		walk(r)
	}
	return dirs, files, bytes
}
