// Package pathutil validates the names that end up as path segments: artifact
// names, blob keys and the file names stored under them.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects empty paths, null bytes and ".." segments.
// Detection is per segment so that "a/../b" is rejected before cleaning turns it into "b".
func ValidateFilePath(filePath string) error {
	if filePath == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.Contains(filePath, "\x00") {
		return fmt.Errorf("file path contains invalid characters")
	}
	for _, segment := range strings.Split(filepath.ToSlash(filePath), "/") {
		if segment == ".." {
			return fmt.Errorf("file path contains path traversal: %q", filePath)
		}
	}
	return nil
}

// ValidateKey checks a blob key: a relative, slash separated path with no
// empty, "." or ".." segments.
func ValidateKey(key string) error {
	if err := ValidateFilePath(key); err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid key %q: must be a relative slash separated path", key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." {
			return fmt.Errorf("invalid key %q: empty or '.' segment", key)
		}
	}
	return nil
}

// ValidateArtifactName checks an artifact name: letters, digits, '.', '_', '-'
// and '/' separated segments, usable verbatim as a blob key prefix.
func ValidateArtifactName(name string) error {
	if name == "" {
		return fmt.Errorf("artifact name cannot be empty")
	}
	for _, r := range name {
		if !isNameRune(r) {
			return fmt.Errorf("artifact name %q contains invalid character %q", name, r)
		}
	}
	if err := ValidateKey(name); err != nil {
		return fmt.Errorf("artifact name %q: %w", name, err)
	}
	return nil
}

// ValidateFileName checks a single path element such as "clean_sample.csv".
func ValidateFileName(name string) error {
	if err := ValidateFilePath(name); err != nil {
		return err
	}
	if strings.ContainsAny(name, `/\`) || name == "." {
		return fmt.Errorf("file name %q must be a single path element", name)
	}
	return nil
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == '-', r == '/':
		return true
	}
	return false
}
