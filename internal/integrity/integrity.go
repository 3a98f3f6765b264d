// Package integrity computes streaming SHA-256 digests of files and
// checks them against expected values. A digest mismatch is a normal
// outcome here, not an error; only I/O failures are errors.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/localshare/share-go/internal/fsutil"
)

const hashBufferSize = 8 * 1024

// ComputeFileHash streams the file through SHA-256 and returns the
// digest as lowercase hex.
func ComputeFileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, hashBufferSize)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CheckFileHash reports whether the digest of the file at path equals
// expectedHash.
func CheckFileHash(path, expectedHash string) (bool, error) {
	hash, err := ComputeFileHash(path)
	if err != nil {
		return false, err
	}
	return hash == expectedHash, nil
}

// CheckResult is the outcome of CheckFile. Reason is set only when the
// file is invalid.
type CheckResult struct {
	Valid  bool
	Reason string
}

// CheckFile verifies that a file exists at path and that its digest
// matches expectedHash.
func CheckFile(path, expectedHash string) (CheckResult, error) {
	exists, err := fsutil.ExistsFile(path)
	if err != nil {
		return CheckResult{}, err
	}
	if !exists {
		return CheckResult{Reason: "File not found"}, nil
	}

	hash, err := ComputeFileHash(path)
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to check file hash: %w", err)
	}
	if hash != expectedHash {
		return CheckResult{
			Reason: fmt.Sprintf("Hash mismatch, expected: %s, actual: %s", expectedHash, hash),
		}, nil
	}
	return CheckResult{Valid: true}, nil
}
