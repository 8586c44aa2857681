package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rentalpipeline/basiccleaning/internal/blobstore"
	"github.com/rentalpipeline/basiccleaning/internal/logger"
	"github.com/rentalpipeline/basiccleaning/internal/pathutil"
)

var (
	// ErrDigestMismatch means stored or downloaded content differs from the recorded digest.
	ErrDigestMismatch = errors.New("artifact digest mismatch")
	// ErrDurabilityTimeout means the backend did not confirm an upload in time.
	ErrDurabilityTimeout = errors.New("timed out waiting for artifact to become durable")
)

// Artifact describes a local file to publish.
type Artifact struct {
	Name        string
	Type        string
	Description string
	Path        string
}

// Handle is a published, not yet confirmed, artifact version.
type Handle struct {
	VersionID int64
	Name      string
	Version   int
	Key       string
	SHA256    string
	Size      int64
}

// Ref returns the explicit reference of the published version.
func (h *Handle) Ref() Ref {
	return Ref{Name: h.Name, Version: h.Version}
}

func (h *Handle) String() string {
	return h.Ref().String()
}

// Run is one execution of a job against the store.
type Run struct {
	id      string
	jobType string
	store   *Store
}

// ID is the run's uuid.
func (r *Run) ID() string {
	return r.id
}

// Fetch resolves ref to a committed version, downloads it into the cache and
// records it as used by this run. A cached copy whose digest matches is reused.
func (r *Run) Fetch(ctx context.Context, ref string) (string, error) {
	parsed, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	v, err := r.store.registry.Resolve(ctx, r.store.opts.Project, parsed)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(r.store.opts.CacheDir, filepath.FromSlash(v.Name), fmt.Sprintf("v%d", v.Version), v.FileName)
	if digest, _, err := blobstore.FileDigest(dst); err == nil && digest == v.SHA256 {
		logger.WithRun(r.id).Debug("artifact cache hit", "artifact", v.Ref().String(), "path", dst)
	} else if err := r.download(ctx, v, dst); err != nil {
		return "", err
	}

	if err := r.store.registry.RecordLineage(ctx, r.id, v.ID, DirectionUsed); err != nil {
		return "", err
	}
	return dst, nil
}

func (r *Run) download(ctx context.Context, v *Version, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create download file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := r.store.blob.Get(ctx, v.BlobKey, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to download %s: %w", v.Ref(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", v.Ref(), err)
	}

	digest, size, err := blobstore.FileDigest(tmpName)
	if err != nil {
		return err
	}
	if digest != v.SHA256 || size != v.Size {
		return fmt.Errorf("%w: %s downloaded %d bytes sha256 %s, registry has %d bytes sha256 %s",
			ErrDigestMismatch, v.Ref(), size, digest, v.Size, v.SHA256)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("failed to move %s into cache: %w", v.Ref(), err)
	}
	return nil
}

// Publish uploads a local file as the next version of a.Name. The version stays
// pending, and unresolvable, until AwaitDurable confirms it.
func (r *Run) Publish(ctx context.Context, a Artifact) (*Handle, error) {
	if err := pathutil.ValidateArtifactName(a.Name); err != nil {
		return nil, err
	}
	fileName := filepath.Base(a.Path)
	if err := pathutil.ValidateFileName(fileName); err != nil {
		return nil, err
	}
	digest, size, err := blobstore.FileDigest(a.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", a.Path, err)
	}

	v, err := r.store.registry.Reserve(ctx, Version{
		Project:     r.store.opts.Project,
		Name:        a.Name,
		Type:        a.Type,
		Description: a.Description,
		FileName:    fileName,
		SHA256:      digest,
		Size:        size,
	})
	if err != nil {
		return nil, err
	}

	if err := r.store.blob.Put(ctx, v.BlobKey, a.Path, blobstore.Meta{SHA256: digest, ContentType: "text/csv"}); err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", v.Ref(), err)
	}
	return &Handle{
		VersionID: v.ID,
		Name:      v.Name,
		Version:   v.Version,
		Key:       v.BlobKey,
		SHA256:    digest,
		Size:      size,
	}, nil
}

// AwaitDurable blocks until the backend reports the uploaded blob with the
// expected size and digest, then commits the version, moves the default alias
// and records it as produced by this run.
func (r *Run) AwaitDurable(ctx context.Context, h *Handle) error {
	if h == nil {
		return errors.New("nil artifact handle")
	}
	ctx, cancel := context.WithTimeout(ctx, r.store.opts.DurabilityTimeout)
	defer cancel()

	ticker := time.NewTicker(r.store.opts.PollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		done, err := r.checkDurable(ctx, h)
		if err != nil {
			return err
		}
		if done {
			break
		}
		logger.WithRun(r.id).Debug("artifact not yet durable", "artifact", h.String(), "attempt", attempt)

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s after %s", ErrDurabilityTimeout, h, r.store.opts.DurabilityTimeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if err := r.store.registry.Commit(ctx, h.VersionID); err != nil {
		return err
	}
	return r.store.registry.RecordLineage(ctx, r.id, h.VersionID, DirectionProduced)
}

func (r *Run) checkDurable(ctx context.Context, h *Handle) (bool, error) {
	info, err := r.store.blob.Stat(ctx, h.Key)
	switch {
	case errors.Is(err, blobstore.ErrBlobNotFound):
		return false, nil
	case err != nil && ctx.Err() != nil:
		// The wait loop reports the timeout or cancellation.
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to confirm %s: %w", h, err)
	}
	if info.Size != h.Size {
		return false, fmt.Errorf("%w: %s stored %d bytes, expected %d", ErrDigestMismatch, h, info.Size, h.Size)
	}
	if info.SHA256 != "" && info.SHA256 != h.SHA256 {
		return false, fmt.Errorf("%w: %s stored sha256 %s, expected %s", ErrDigestMismatch, h, info.SHA256, h.SHA256)
	}
	return true, nil
}

// Finish records the run outcome. err is the stage error, nil on success.
func (r *Run) Finish(ctx context.Context, err error) error {
	status, msg := RunFinished, ""
	if err != nil {
		status, msg = RunFailed, err.Error()
	}
	return r.store.registry.FinishRun(ctx, r.id, status, msg)
}
