package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

const (
	// ProjectHashLen is the number of hex characters kept from the project digest.
	ProjectHashLen = 16
	// ParamsHashLen is the number of hex characters kept from the params digest.
	ParamsHashLen = 8
)

// DefaultExcludeDirs are directory names never descended into when hashing.
var DefaultExcludeDirs = []string{".git", "node_modules", "__pycache__"}

// FileHash returns the hex SHA-256 of the file's contents.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ProjectHash fingerprints every regular file under root. Directories whose
// base name is in exclude are skipped. Files are visited in lexical order and
// each contributes its slash-separated relative path and content hash, so the
// result is stable across platforms and runs.
func ProjectHash(ctx context.Context, root string, exclude []string) (string, error) {
	h := sha256.New()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && slices.Contains(exclude, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		sum, err := FileHash(path)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(h, "%s\x00%s\n", filepath.ToSlash(rel), sum)
		return nil
	})
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil))[:ProjectHashLen], nil
}

// ParamsHash returns the short digest of params' canonical JSON encoding.
// encoding/json sorts map keys, which makes the encoding canonical for the
// map-of-scalars params used as cache discriminators.
func ParamsHash(params map[string]any) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:ParamsHashLen], nil
}

// Key builds the cache key for an operation. Empty params produce the short
// form "{project_hash}_{operation}".
func Key(projectHash, operation string, params map[string]any) (string, error) {
	if len(params) == 0 {
		return projectHash + "_" + operation, nil
	}
	ph, err := ParamsHash(params)
	if err != nil {
		return "", err
	}
	return projectHash + "_" + operation + "_" + ph, nil
}

// splitKey separates a key into its project hash and the remainder
// ("{operation}[_{params_hash}]").
func splitKey(key string) (projectHash, rest string, ok bool) {
	if len(key) <= ProjectHashLen || key[ProjectHashLen] != '_' {
		return "", "", false
	}
	return key[:ProjectHashLen], key[ProjectHashLen+1:], true
}
