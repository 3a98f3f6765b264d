package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func hashOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestComputeFileHash(t *testing.T) {
	dir := t.TempDir()
	// well-known vector: sha256("abc")
	path := writeFile(t, dir, "abc.txt", []byte("abc"))

	got, err := ComputeFileHash(path)
	assert.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)

	_, err = ComputeFileHash(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestComputeFileHash_LargerThanBuffer(t *testing.T) {
	dir := t.TempDir()
	content := []byte(strings.Repeat("0123456789abcdef", 4096)) // 64KB, several read blocks
	path := writeFile(t, dir, "big.bin", content)

	got, err := ComputeFileHash(path)
	assert.NoError(t, err)
	assert.Equal(t, hashOf(content), got)
}

func TestCheckFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("some shared bytes")
	valid := writeFile(t, dir, "valid.bin", content)

	corrupted := make([]byte, len(content))
	copy(corrupted, content)
	corrupted[0] ^= 0xff
	flipped := writeFile(t, dir, "flipped.bin", corrupted)

	tests := []struct {
		name       string
		path       string
		expected   string
		wantValid  bool
		wantReason string
	}{
		{name: "valid", path: valid, expected: hashOf(content), wantValid: true},
		{name: "flipped byte", path: flipped, expected: hashOf(content), wantReason: "Hash mismatch"},
		{name: "missing file", path: filepath.Join(dir, "gone.bin"), expected: hashOf(content), wantReason: "File not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CheckFile(tt.path, tt.expected)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantValid, got.Valid)
			if tt.wantReason != "" {
				assert.Contains(t, got.Reason, tt.wantReason)
			}
		})
	}
}

func TestCheckFileHash(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f.bin", []byte("abcdef"))

	ok, err := CheckFileHash(path, hashOf([]byte("abcdef")))
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckFileHash(path, hashOf([]byte("abcdeg")))
	assert.NoError(t, err)
	assert.False(t, ok)
}
