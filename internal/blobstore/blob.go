// Package blobstore stores artifact files under opaque keys on a local
// directory tree, AWS S3 or Google Cloud Storage.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rentalpipeline/basiccleaning/internal/errhandling"
)

// ErrBlobNotFound is returned by Get and Stat when no blob exists under the key.
var ErrBlobNotFound = fmt.Errorf("blob %w", errhandling.ErrNotFound)

// metaSHA256 is the user metadata key carrying the hex sha256 of the content.
const metaSHA256 = "sha256"

// Meta describes the content being uploaded.
type Meta struct {
	SHA256      string
	ContentType string
}

// Info is what a backend reports about a stored blob.
type Info struct {
	Key     string
	Size    int64
	SHA256  string
	Updated time.Time
}

// Blob is a key/value file store.
type Blob interface {
	// Put uploads the file at localPath under key.
	Put(ctx context.Context, key, localPath string, meta Meta) error
	// Get streams the blob under key into dst.
	Get(ctx context.Context, key string, dst io.Writer) error
	// Stat reports size and digest of the blob under key as the backend sees it.
	Stat(ctx context.Context, key string) (Info, error)
	// Name identifies the backend in logs.
	Name() string
	Close() error
}

// FileDigest returns the hex sha256 and size of a local file.
func FileDigest(path string) (digest string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err = io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// joinKey prefixes key with prefix, if any.
func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	for len(prefix) > 0 && prefix[len(prefix)-1] == '/' {
		prefix = prefix[:len(prefix)-1]
	}
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
