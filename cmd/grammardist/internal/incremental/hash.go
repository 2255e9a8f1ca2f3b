package incremental

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Source digests are SHA-256, so a digest match means identical bytes.
// Artifact fingerprints are xxHash64; they only detect edits to the dist tree.

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	return sumFile(path, sha256.New())
}

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FingerprintFile returns the hex xxHash64 of the file at path.
func FingerprintFile(path string) (string, error) {
	return sumFile(path, xxhash.New())
}

// FingerprintBytes returns the hex xxHash64 of data, matching FingerprintFile.
func FingerprintBytes(data []byte) string {
	return hex.EncodeToString(binary.BigEndian.AppendUint64(nil, xxhash.Sum64(data)))
}

func sumFile(path string, h hash.Hash) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
