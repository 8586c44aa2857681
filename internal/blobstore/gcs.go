package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/mitchellh/go-homedir"
	"google.golang.org/api/option"

	"github.com/rentalpipeline/basiccleaning/internal/pathutil"
)

// GCSOptions configures a Google Cloud Storage backend.
type GCSOptions struct {
	Bucket string
	Prefix string
	// Credentials is a service account key file path or its JSON contents.
	Credentials string
	Endpoint    string
}

// GCS stores blobs as objects in one bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates a storage client using application default credentials
// unless explicit credentials are configured. Extra client options are
// appended after the ones derived from opts.
func NewGCS(ctx context.Context, opts GCSOptions, extra ...option.ClientOption) (*GCS, error) {
	if opts.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	clientOpts, err := gcsClientOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed setting GCP Storage client config: %w", err)
	}
	clientOpts = append(clientOpts, extra...)
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP Storage client: %w", err)
	}
	return &GCS{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

func gcsClientOptions(opts GCSOptions) ([]option.ClientOption, error) {
	var clientOpts []option.ClientOption
	if opts.Credentials != "" {
		creds, err := pathOrContents(opts.Credentials)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(creds)))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	return clientOpts, nil
}

// pathOrContents returns poc itself when it looks like inline JSON, else the
// contents of the file it names.
func pathOrContents(poc string) (string, error) {
	if strings.HasPrefix(strings.TrimSpace(poc), "{") {
		return poc, nil
	}
	path, err := homedir.Expand(poc)
	if err != nil {
		return "", err
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(contents), nil
}

func (g *GCS) Name() string { return "gcs" }

func (g *GCS) Close() error { return g.client.Close() }

func (g *GCS) object(key string) (*storage.ObjectHandle, string, error) {
	if err := pathutil.ValidateKey(key); err != nil {
		return nil, "", err
	}
	name := joinKey(g.prefix, key)
	return g.client.Bucket(g.bucket).Object(name), name, nil
}

func (g *GCS) Put(ctx context.Context, key, localPath string, meta Meta) error {
	obj, name, err := g.object(key)
	if err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	w := obj.NewWriter(ctx)
	w.ContentType = meta.ContentType
	if meta.SHA256 != "" {
		w.Metadata = map[string]string{metaSHA256: meta.SHA256}
	}
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload gs://%s/%s: %w", g.bucket, name, err)
	}
	// The object is committed only once Close returns without error.
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to upload gs://%s/%s: %w", g.bucket, name, err)
	}
	return nil
}

func (g *GCS) Get(ctx context.Context, key string, dst io.Writer) error {
	obj, name, err := g.object(key)
	if err != nil {
		return err
	}
	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%w: gs://%s/%s", ErrBlobNotFound, g.bucket, name)
		}
		return fmt.Errorf("failed to get object reader: %w", err)
	}
	defer reader.Close()

	if _, err := io.Copy(dst, reader); err != nil {
		return fmt.Errorf("failed to read gs://%s/%s: %w", g.bucket, name, err)
	}
	return nil
}

func (g *GCS) Stat(ctx context.Context, key string) (Info, error) {
	obj, name, err := g.object(key)
	if err != nil {
		return Info{}, err
	}
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return Info{}, fmt.Errorf("%w: gs://%s/%s", ErrBlobNotFound, g.bucket, name)
		}
		return Info{}, fmt.Errorf("failed to stat gs://%s/%s: %w", g.bucket, name, err)
	}
	return Info{
		Key:     key,
		Size:    attrs.Size,
		SHA256:  attrs.Metadata[metaSHA256],
		Updated: attrs.Updated,
	}, nil
}
