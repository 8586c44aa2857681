package artifact

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentalpipeline/basiccleaning/internal/blobstore"
)

// lagBlob hides blobs from Stat for a number of calls, like an eventually
// consistent backend.
type lagBlob struct {
	blobstore.Blob
	mu        sync.Mutex
	hideStats int
	statCalls int
	statInfo  *blobstore.Info
}

func (l *lagBlob) Stat(ctx context.Context, key string) (blobstore.Info, error) {
	l.mu.Lock()
	l.statCalls++
	hide := l.statCalls <= l.hideStats
	override := l.statInfo
	l.mu.Unlock()

	if hide {
		return blobstore.Info{}, blobstore.ErrBlobNotFound
	}
	if override != nil {
		return *override, nil
	}
	return l.Blob.Stat(ctx, key)
}

func newTestStore(t *testing.T, wrap func(blobstore.Blob) blobstore.Blob) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	reg, err := OpenRegistry(filepath.Join(dir, "registry.db"))
	require.NoError(t, err)

	var blob blobstore.Blob
	blob, err = blobstore.NewLocal(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	if wrap != nil {
		blob = wrap(blob)
	}

	store, err := NewStore(reg, blob, Options{
		Project:           "nyc_airbnb",
		CacheDir:          filepath.Join(dir, "cache"),
		DurabilityTimeout: 200 * time.Millisecond,
		PollInterval:      5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func publishCommitted(t *testing.T, run *Run, name, path string) *Handle {
	t.Helper()
	ctx := context.Background()
	h, err := run.Publish(ctx, Artifact{Name: name, Type: "raw_data", Description: "seed", Path: path})
	require.NoError(t, err)
	require.NoError(t, run.AwaitDurable(ctx, h))
	return h
}

func TestRun_PublishAwaitFetch(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestStore(t, nil)

	seed, err := store.StartRun(ctx, "upload", nil)
	require.NoError(t, err)
	h := publishCommitted(t, seed, "sample.csv", writeFile(t, dir, "sample.csv", "id,price\n1,50\n"))
	assert.Equal(t, "sample.csv:v1", h.String())

	run, err := store.StartRun(ctx, "basic_cleaning", map[string]any{"min_price": 10.0})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID())

	local, err := run.Fetch(ctx, "sample.csv:latest")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cache", "sample.csv", "v1", "sample.csv"), local)
	content, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "id,price\n1,50\n", string(content))

	out := publishCommitted(t, run, "clean_sample.csv", writeFile(t, dir, "clean.csv", "id,price\n1,50\n"))
	require.NoError(t, run.Finish(ctx, nil))

	lineage, err := store.Registry().Lineage(ctx, run.ID())
	require.NoError(t, err)
	assert.Equal(t, []LineageEntry{
		{RunID: run.ID(), VersionID: h.VersionID, Direction: DirectionUsed},
		{RunID: run.ID(), VersionID: out.VersionID, Direction: DirectionProduced},
	}, lineage)

	rec, err := store.Registry().GetRun(ctx, run.ID())
	require.NoError(t, err)
	assert.Equal(t, RunFinished, rec.Status)
	assert.Equal(t, "basic_cleaning", rec.JobType)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec.Config), &cfg))
	assert.Equal(t, 10.0, cfg["min_price"])
}

func TestRun_PublishedButUnconfirmedIsInvisible(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestStore(t, nil)
	run, err := store.StartRun(ctx, "basic_cleaning", nil)
	require.NoError(t, err)

	_, err = run.Publish(ctx, Artifact{Name: "clean_sample.csv", Type: "clean_sample", Path: writeFile(t, dir, "clean.csv", "a\n1\n")})
	require.NoError(t, err)

	_, err = run.Fetch(ctx, "clean_sample.csv")
	require.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestRun_FetchMissing(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, nil)
	run, err := store.StartRun(ctx, "basic_cleaning", nil)
	require.NoError(t, err)

	_, err = run.Fetch(ctx, "nope.csv:latest")
	require.ErrorIs(t, err, ErrArtifactNotFound)

	_, err = run.Fetch(ctx, "bad name")
	require.Error(t, err)
}

func TestRun_FetchDetectsCorruptBlob(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestStore(t, nil)
	run, err := store.StartRun(ctx, "basic_cleaning", nil)
	require.NoError(t, err)
	h := publishCommitted(t, run, "sample.csv", writeFile(t, dir, "sample.csv", "id\n1\n"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "blobs", filepath.FromSlash(h.Key)), []byte("id\n2\n"), 0o644))

	_, err = run.Fetch(ctx, "sample.csv:v1")
	require.ErrorIs(t, err, ErrDigestMismatch)
}

func TestRun_FetchReusesCache(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestStore(t, nil)
	run, err := store.StartRun(ctx, "basic_cleaning", nil)
	require.NoError(t, err)
	h := publishCommitted(t, run, "sample.csv", writeFile(t, dir, "sample.csv", "id\n1\n"))

	first, err := run.Fetch(ctx, "sample.csv")
	require.NoError(t, err)

	// With the blob gone, only the cached copy can satisfy the second fetch.
	require.NoError(t, os.Remove(filepath.Join(dir, "blobs", filepath.FromSlash(h.Key))))
	second, err := run.Fetch(ctx, "sample.csv")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRun_AwaitDurablePollsUntilVisible(t *testing.T) {
	ctx := context.Background()
	var lag *lagBlob
	store, dir := newTestStore(t, func(b blobstore.Blob) blobstore.Blob {
		lag = &lagBlob{Blob: b, hideStats: 3}
		return lag
	})
	run, err := store.StartRun(ctx, "basic_cleaning", nil)
	require.NoError(t, err)

	h, err := run.Publish(ctx, Artifact{Name: "clean_sample.csv", Type: "clean_sample", Path: writeFile(t, dir, "clean.csv", "a\n1\n")})
	require.NoError(t, err)
	require.NoError(t, run.AwaitDurable(ctx, h))
	assert.Equal(t, 4, lag.statCalls)

	v, err := store.Registry().Resolve(ctx, "nyc_airbnb", Ref{Name: "clean_sample.csv"})
	require.NoError(t, err)
	assert.Equal(t, h.VersionID, v.ID)
}

func TestRun_AwaitDurableTimesOut(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestStore(t, func(b blobstore.Blob) blobstore.Blob {
		return &lagBlob{Blob: b, hideStats: 1 << 30}
	})
	run, err := store.StartRun(ctx, "basic_cleaning", nil)
	require.NoError(t, err)

	h, err := run.Publish(ctx, Artifact{Name: "clean_sample.csv", Type: "clean_sample", Path: writeFile(t, dir, "clean.csv", "a\n1\n")})
	require.NoError(t, err)

	err = run.AwaitDurable(ctx, h)
	require.ErrorIs(t, err, ErrDurabilityTimeout)

	v, err := store.Registry().GetVersion(ctx, h.VersionID)
	require.NoError(t, err)
	assert.Equal(t, StatePending, v.State)
}

func TestRun_AwaitDurableRejectsMismatch(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestStore(t, func(b blobstore.Blob) blobstore.Blob {
		return &lagBlob{Blob: b, statInfo: &blobstore.Info{Size: 3, SHA256: "other"}}
	})
	run, err := store.StartRun(ctx, "basic_cleaning", nil)
	require.NoError(t, err)

	h, err := run.Publish(ctx, Artifact{Name: "clean_sample.csv", Type: "clean_sample", Path: writeFile(t, dir, "clean.csv", "a\n1")})
	require.NoError(t, err)
	require.ErrorIs(t, run.AwaitDurable(ctx, h), ErrDigestMismatch)
}

func TestRun_AwaitDurableCanceled(t *testing.T) {
	store, dir := newTestStore(t, func(b blobstore.Blob) blobstore.Blob {
		return &lagBlob{Blob: b, hideStats: 1 << 30}
	})
	run, err := store.StartRun(context.Background(), "basic_cleaning", nil)
	require.NoError(t, err)
	h, err := run.Publish(context.Background(), Artifact{Name: "c.csv", Type: "t", Path: writeFile(t, dir, "c.csv", "a\n")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, run.AwaitDurable(ctx, h), context.Canceled)
}

func TestRun_PublishValidates(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestStore(t, nil)
	run, err := store.StartRun(ctx, "basic_cleaning", nil)
	require.NoError(t, err)

	_, err = run.Publish(ctx, Artifact{Name: "bad name", Path: writeFile(t, dir, "a.csv", "a\n")})
	require.Error(t, err)

	_, err = run.Publish(ctx, Artifact{Name: "a.csv", Path: filepath.Join(dir, "missing.csv")})
	require.Error(t, err)
}

func TestRun_FinishFailed(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, nil)
	run, err := store.StartRun(ctx, "basic_cleaning", nil)
	require.NoError(t, err)

	require.NoError(t, run.Finish(ctx, io.ErrUnexpectedEOF))
	rec, err := store.Registry().GetRun(ctx, run.ID())
	require.NoError(t, err)
	assert.Equal(t, RunFailed, rec.Status)
	assert.Equal(t, io.ErrUnexpectedEOF.Error(), rec.Error)
}

func TestNewStore_Validates(t *testing.T) {
	_, err := NewStore(nil, nil, Options{})
	require.Error(t, err)
}
