package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ExistsFile reports whether a regular file exists at path. A missing
// file is not an error; any other stat failure is returned as-is.
func ExistsFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DeleteFileIfExists removes the file at path, treating a missing file
// as success.
func DeleteFileIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// AvailableFilename returns path unchanged when nothing exists there,
// otherwise the first "name(N).ext" variant that is still free.
func AvailableFilename(path string) (string, error) {
	exists, err := ExistsFile(path)
	if err != nil {
		return "", err
	}
	if !exists {
		return path, nil
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)

	for counter := 1; ; counter++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s(%d)%s", stem, counter, ext))
		exists, err := ExistsFile(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
}
