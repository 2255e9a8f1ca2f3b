package incremental

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/albertocavalcante/grammardist/internal/log"
)

// DigestSources hashes each mirror-relative source path under root.
// The returned map is keyed by the relative paths as given.
func DigestSources(ctx context.Context, root string, rels []string) (map[string]string, error) {
	digests := make(map[string]string, len(rels))
	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hash, err := HashFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("failed to digest source %s: %w", rel, err)
		}
		log.Trace("digested source", "path", rel, "sha256", hash)
		digests[rel] = hash
	}
	return digests, nil
}

// FingerprintArtifacts fingerprints dist-relative artifact paths under root.
func FingerprintArtifacts(root string, rels []string) (map[string]string, error) {
	prints := make(map[string]string, len(rels))
	for _, rel := range rels {
		fp, err := FingerprintFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("failed to fingerprint artifact %s: %w", rel, err)
		}
		prints[rel] = fp
	}
	return prints, nil
}
