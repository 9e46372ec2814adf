package dedupe

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/duke-git/lancet/v2/fileutil"
)

// DirectoryService is the filesystem surface used for duplicate detection and output resolution.
type DirectoryService interface {
	// ListFiles returns the regular file names in dir, sorted.
	ListFiles(dir string) ([]string, error)
	FileSize(path string) (int64, error)
	ModTime(path string) (time.Time, error)
	Exists(path string) bool
	// MakeDir creates path and any missing parents.
	MakeDir(path string) error
}

// LocalDirectory implements [DirectoryService] on the local filesystem.
type LocalDirectory struct{}

var _ DirectoryService = LocalDirectory{}

func (LocalDirectory) ListFiles(dir string) ([]string, error) {
	if !fileutil.IsExist(dir) {
		return nil, fmt.Errorf("list %s: %w", dir, os.ErrNotExist)
	}
	names, err := fileutil.ListFileNames(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(names)
	return names, nil
}

func (LocalDirectory) FileSize(path string) (int64, error) {
	return fileutil.FileSize(path)
}

func (LocalDirectory) ModTime(path string) (time.Time, error) {
	sec, err := fileutil.MTime(path)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0), nil
}

func (LocalDirectory) Exists(path string) bool {
	return fileutil.IsExist(path)
}

func (LocalDirectory) MakeDir(path string) error {
	if fileutil.IsExist(path) {
		return nil
	}
	return fileutil.CreateDir(path)
}
