package file

import (
	"os"
	"path/filepath"
	"strings"
)

// DirUsage holds the number of regular files under a directory and their combined size.
type DirUsage struct {
	Files int
	Bytes int64
}

// Usage walks dir and sums regular files. Temporary files written by
// WriteAtomic are ignored. A missing dir counts as empty.
func Usage(dir string) (DirUsage, error) {
	var usage DirUsage

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}

		if info.IsDir() || !info.Mode().IsRegular() || IsTemp(info.Name()) {
			return nil
		}
		usage.Files++
		usage.Bytes += info.Size()
		return nil
	})

	return usage, err
}

// IsTemp reports whether name looks like an in-progress WriteAtomic file.
func IsTemp(name string) bool {
	return strings.HasPrefix(name, ".tmp-")
}
