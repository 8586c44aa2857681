// Package registry maps artifact store backend names to their constructors.
//
// # Overview
//
// Instead of a hard-coded switch over store.backend, each backend registers a
// constructor by name. Adding a backend means implementing blobstore.Blob and
// registering it:
//
//	func init() {
//	    registry.RegisterBlob("azure", func(ctx context.Context, s config.StoreSettings) (blobstore.Blob, error) {
//	        return newAzureBlob(ctx, s)
//	    })
//	}
//
// # Built-in Backends
//
// local, s3 and gcs are registered in init() in builtins.go.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rentalpipeline/basiccleaning/internal/blobstore"
	"github.com/rentalpipeline/basiccleaning/internal/config"
)

// BlobConstructor creates a blob backend from the store settings.
type BlobConstructor func(ctx context.Context, settings config.StoreSettings) (blobstore.Blob, error)

var (
	blobMu       sync.RWMutex
	blobRegistry = make(map[string]BlobConstructor)
)

// RegisterBlob registers a backend constructor by name.
// Registering an existing name overwrites the previous constructor.
//
// This function is safe for concurrent use and is typically called from
// init() functions.
func RegisterBlob(backend string, constructor BlobConstructor) {
	blobMu.Lock()
	defer blobMu.Unlock()
	blobRegistry[backend] = constructor
}

// GetBlobConstructor returns the constructor registered for backend, or nil.
func GetBlobConstructor(backend string) BlobConstructor {
	blobMu.RLock()
	defer blobMu.RUnlock()
	return blobRegistry[backend]
}

// NewBlob builds the backend named by settings.Backend.
func NewBlob(ctx context.Context, settings config.StoreSettings) (blobstore.Blob, error) {
	constructor := GetBlobConstructor(settings.Backend)
	if constructor == nil {
		return nil, fmt.Errorf("unknown store backend %q (registered: %v)", settings.Backend, ListBlobBackends())
	}
	blob, err := constructor(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("creating %s store: %w", settings.Backend, err)
	}
	return blob, nil
}

// ListBlobBackends returns the registered backend names, sorted.
func ListBlobBackends() []string {
	blobMu.RLock()
	defer blobMu.RUnlock()
	names := make([]string, 0, len(blobRegistry))
	for name := range blobRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClearRegistries removes all registered constructors.
// This is intended for testing purposes only.
func ClearRegistries() {
	blobMu.Lock()
	blobRegistry = make(map[string]BlobConstructor)
	blobMu.Unlock()
}
