package core

import (
	"fmt"
	"os"
	"path/filepath"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

type PathKind int

const (
	PathFile PathKind = iota
	PathDir
)

func (k PathKind) String() string {
	if k == PathDir {
		return "dir"
	}
	return "file"
}

type ParsedPath struct {
	FullPath string
	Kind     PathKind
	Size     int64
}

// ParseArgs checks the local paths given to push. Every path must exist and
// be a regular file or a directory, and no path may be given twice.
func ParseArgs(args []string) ([]ParsedPath, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<paths>", Cause: "no files provided"}
	}

	var out []ParsedPath
	seen := make(map[string]struct{}, len(args))

	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}

		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "cannot resolve absolute path"}
		}
		if _, dup := seen[abs]; dup {
			return nil, &ValidationError{Arg: raw, Cause: "given more than once"}
		}
		seen[abs] = struct{}{}

		switch {
		case info.IsDir():
			out = append(out, ParsedPath{FullPath: p, Kind: PathDir})
		case info.Mode().IsRegular():
			out = append(out, ParsedPath{FullPath: p, Kind: PathFile, Size: info.Size()})
		default:
			return nil, &ValidationError{Arg: raw, Cause: "not a regular file or directory"}
		}
	}

	return out, nil
}
