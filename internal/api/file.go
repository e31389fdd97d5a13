package api

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ColeHoward/filedrop/internal/types"
)

// OpenFile opens rel under root. Any ".." component is refused with
// ErrBadPath; every open or stat failure, and a directory, is ErrNotFound.
// The size is captured once here and not re-checked while streaming.
func OpenFile(rel string, root string) (*types.ResolvedFile, error) {
	if hasParentComponent(rel) {
		return nil, types.ErrBadPath
	}

	f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, types.ErrNotFound
	}

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, types.ErrNotFound
	}

	return &types.ResolvedFile{File: f, Size: info.Size()}, nil
}

func hasParentComponent(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
