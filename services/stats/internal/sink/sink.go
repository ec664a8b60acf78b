// Package sink persists output batches. Every sink honours the same
// contract: without overwrite an existing batch is never replaced and a new
// version is written next to it. With overwrite the batch replaces every
// stored version of its path.
package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/humanimpact/hii-stats/services/stats/internal/models"
)

// Sink writes one batch under {dataset}/{path} and returns where it landed.
type Sink interface {
	Name() string
	Write(ctx context.Context, batch models.OutputBatch, dataset, path string, overwrite bool) (string, error)
}

// maxVersions bounds the search for a free versioned path.
const maxVersions = 10000

// versionedPath is {path} for version 0 and {path}_{n} after that.
func versionedPath(path string, n int) string {
	if n == 0 {
		return path
	}
	return fmt.Sprintf("%s_%d", path, n)
}

// freePath returns the first versioned path for which exists reports false.
func freePath(path string, exists func(candidate string) (bool, error)) (string, error) {
	for n := 0; n < maxVersions; n++ {
		candidate := versionedPath(path, n)
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free version of %s after %d attempts", path, maxVersions)
}

// isVersionOf reports whether name is {base}_{n}{ext} for some n >= 1.
func isVersionOf(name, base, ext string) bool {
	rest, ok := strings.CutPrefix(name, base+"_")
	if !ok {
		return false
	}
	n, ok := strings.CutSuffix(rest, ext)
	if !ok || n == "" || n[0] == '0' {
		return false
	}
	for _, r := range n {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
