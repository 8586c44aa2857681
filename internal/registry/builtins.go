package registry

import (
	"context"

	"github.com/rentalpipeline/basiccleaning/internal/blobstore"
	"github.com/rentalpipeline/basiccleaning/internal/config"
)

func init() {
	registerBuiltinBlobs()
}

// registerBuiltinBlobs registers the local, s3 and gcs backends.
func registerBuiltinBlobs() {
	RegisterBlob(config.BackendLocal, func(_ context.Context, s config.StoreSettings) (blobstore.Blob, error) {
		return blobstore.NewLocal(s.Root)
	})

	RegisterBlob(config.BackendS3, func(ctx context.Context, s config.StoreSettings) (blobstore.Blob, error) {
		return blobstore.NewS3(ctx, blobstore.S3Options{
			Bucket:         s.Bucket,
			Prefix:         s.Prefix,
			Region:         s.Region,
			Endpoint:       s.Endpoint,
			Profile:        s.Profile,
			AccessKey:      s.AccessKey,
			SecretKey:      s.SecretKey,
			SessionToken:   s.SessionToken,
			ForcePathStyle: s.ForcePathStyle,
		})
	})

	RegisterBlob(config.BackendGCS, func(ctx context.Context, s config.StoreSettings) (blobstore.Blob, error) {
		return blobstore.NewGCS(ctx, blobstore.GCSOptions{
			Bucket:      s.Bucket,
			Prefix:      s.Prefix,
			Credentials: s.Credentials,
			Endpoint:    s.Endpoint,
		})
	})
}
