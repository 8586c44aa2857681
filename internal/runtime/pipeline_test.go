// Package runtime provides the stage execution engine.
package runtime

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentalpipeline/basiccleaning/internal/artifact"
	"github.com/rentalpipeline/basiccleaning/internal/blobstore"
	"github.com/rentalpipeline/basiccleaning/internal/dataset"
	"github.com/rentalpipeline/basiccleaning/internal/errhandling"
	"github.com/rentalpipeline/basiccleaning/internal/logger"
	"github.com/rentalpipeline/basiccleaning/internal/modules/filter"
	"github.com/rentalpipeline/basiccleaning/internal/modules/input"
	"github.com/rentalpipeline/basiccleaning/internal/modules/output"
	"github.com/rentalpipeline/basiccleaning/pkg/stage"
)

// =============================================================================
// Mock Implementations for Testing
// =============================================================================

// dropFirstFilter removes the first row of every dataset it sees.
type dropFirstFilter struct {
	name   string
	called bool
}

func (f *dropFirstFilter) Name() string { return f.name }

func (f *dropFirstFilter) Process(_ context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
	f.called = true
	first := true
	return ds.Filter(func(dataset.Row) bool {
		if first {
			first = false
			return false
		}
		return true
	}), nil
}

var _ filter.Module = (*dropFirstFilter)(nil)

// closeTrackingOutput wraps the stub and records Close.
type closeTrackingOutput struct {
	*output.StubModule
	closed   bool
	closeErr error
}

func (o *closeTrackingOutput) Close() error {
	o.closed = true
	return o.closeErr
}

func numbers(t *testing.T, n int) *dataset.Dataset {
	t.Helper()
	ds := dataset.New([]string{"id", "price"})
	for i := 0; i < n; i++ {
		require.NoError(t, ds.Append(dataset.Row{dataset.NewNumber(float64(i)), dataset.NewNumber(100)}))
	}
	return ds
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := logger.Logger
	t.Cleanup(func() { logger.Logger = original })
	logger.Logger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &buf
}

// =============================================================================
// Execute
// =============================================================================

func TestExecute_Success(t *testing.T) {
	in := input.NewStub("stub", numbers(t, 5))
	f1 := &dropFirstFilter{name: "first"}
	f2 := &dropFirstFilter{name: "second"}
	out := output.NewStub("stub")

	result, err := NewExecutor(in, []filter.Module{f1, f2}, out).Execute(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, 5, result.RecordsIn)
	assert.Equal(t, 3, result.RecordsOut)
	assert.Equal(t, 3, out.Received.Len())
	assert.True(t, in.Closed, "input module was not closed")
	assert.Nil(t, result.Error)
	assert.False(t, result.CompletedAt.Before(result.StartedAt))

	want := []stage.FilterStat{
		{Name: "first", RecordsIn: 5, RecordsOut: 4},
		{Name: "second", RecordsIn: 4, RecordsOut: 3},
	}
	require.Len(t, result.Filters, len(want))
	for i, w := range want {
		got := result.Filters[i]
		assert.Equal(t, w.Name, got.Name)
		assert.Equal(t, w.RecordsIn, got.RecordsIn)
		assert.Equal(t, w.RecordsOut, got.RecordsOut)
		assert.Equal(t, 1, got.Dropped())
	}
}

func TestExecute_NoFilters(t *testing.T) {
	out := output.NewStub("stub")
	result, err := NewExecutor(input.NewStub("stub", numbers(t, 2)), nil, out).Execute(context.Background(), "run")
	require.NoError(t, err)
	assert.Equal(t, 2, result.RecordsOut)
	assert.Empty(t, result.Filters)
}

func TestExecute_EmptyDatasetStillPublishes(t *testing.T) {
	cols := []string{"price", "last_review", "longitude", "latitude"}
	out := output.NewStub("stub")
	result, err := NewExecutor(input.NewStub("stub", dataset.New(cols)), filter.DefaultChain(10, 500), out).
		Execute(context.Background(), "run")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Calls)
	assert.Equal(t, 0, result.RecordsOut)
	assert.Len(t, result.Filters, 3)
}

func TestExecute_MissingColumnStopsBeforeOutput(t *testing.T) {
	out := output.NewStub("stub")
	result, err := NewExecutor(input.NewStub("stub", dataset.New([]string{"price"})), filter.DefaultChain(10, 500), out).
		Execute(context.Background(), "run")
	require.True(t, errhandling.IsCategory(err, errhandling.CategoryParse), "got %v", err)
	assert.Equal(t, errhandling.CodeSchemaMismatch, result.Error.Code)
	assert.Zero(t, out.Calls, "output invoked after filter failure")
}

func TestExecute_InputFailure(t *testing.T) {
	in := input.NewStub("stub", nil)
	in.Err = errhandling.NewDownloadError("fetching sample.csv:latest", artifact.ErrArtifactNotFound)
	f := &dropFirstFilter{name: "f"}
	out := output.NewStub("stub")

	result, err := NewExecutor(in, []filter.Module{f}, out).Execute(context.Background(), "run")
	require.Error(t, err)
	assert.True(t, errhandling.IsCategory(err, errhandling.CategoryDownload))
	assert.Equal(t, StatusError, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, errhandling.CodeArtifactNotFound, result.Error.Code)
	assert.Equal(t, "input", result.Error.Module)
	assert.Equal(t, "download", result.Error.Category)
	assert.Equal(t, string(errhandling.CauseNotFound), result.Error.Details["cause"])
	assert.False(t, f.called, "filter ran after input failure")
	assert.Zero(t, out.Calls, "output ran after input failure")
	assert.True(t, in.Closed, "input module was not closed after failure")
}

func TestExecute_NilDatasetIsParseError(t *testing.T) {
	_, err := NewExecutor(input.NewStub("stub", nil), nil, output.NewStub("stub")).Execute(context.Background(), "run")
	assert.True(t, errhandling.IsCategory(err, errhandling.CategoryParse), "got %v", err)
}

func TestExecute_FilterFailure(t *testing.T) {
	bad := filter.NewStub("broken", 1)
	bad.Err = errhandling.NewSchemaError("price")
	after := &dropFirstFilter{name: "after"}
	out := output.NewStub("stub")

	result, err := NewExecutor(input.NewStub("stub", numbers(t, 3)),
		[]filter.Module{&dropFirstFilter{name: "before"}, bad, after}, out).Execute(context.Background(), "run")
	require.Error(t, err)
	assert.Equal(t, errhandling.CodeSchemaMismatch, result.Error.Code)
	assert.Equal(t, 1, result.Error.Details["filterIndex"])
	assert.Contains(t, result.Error.Message, "broken")
	assert.Len(t, result.Filters, 1)
	assert.Equal(t, 3, result.RecordsIn)
	assert.False(t, after.called, "filter after the failing one ran")
	assert.Zero(t, out.Calls, "output ran after filter failure")
}

func TestExecute_FilterCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ds := dataset.New([]string{"longitude", "latitude"})
	require.NoError(t, ds.Append(dataset.Row{dataset.NewNumber(-73.9), dataset.NewNumber(40.7)}))
	result, err := NewExecutor(input.NewStub("stub", ds),
		[]filter.Module{filter.NewGeoBounds()}, output.NewStub("stub")).Execute(ctx, "run")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ErrCodeFilterFailed, result.Error.Code)
	assert.Equal(t, string(errhandling.CauseCanceled), result.Error.Details["cause"])
}

func TestExecute_OutputFailure(t *testing.T) {
	out := &closeTrackingOutput{StubModule: output.NewStub("stub")}
	out.Err = errhandling.NewUploadError(errhandling.CodeDurabilityUnconfirmed, "confirming clean.csv:v1", artifact.ErrDurabilityTimeout)

	result, err := NewExecutor(input.NewStub("stub", numbers(t, 2)), nil, out).Execute(context.Background(), "run")
	require.ErrorIs(t, err, artifact.ErrDurabilityTimeout)
	assert.Equal(t, errhandling.CodeDurabilityUnconfirmed, result.Error.Code)
	assert.Equal(t, "upload", result.Error.Category)
	assert.Zero(t, result.RecordsOut)
	assert.Empty(t, result.OutputArtifact)
	assert.True(t, out.closed, "output module was not closed")
}

func TestExecute_CloseErrorIsLoggedOnly(t *testing.T) {
	buf := captureLogs(t)
	out := &closeTrackingOutput{StubModule: output.NewStub("stub"), closeErr: errors.New("boom")}

	_, err := NewExecutor(input.NewStub("stub", numbers(t, 1)), nil, out).Execute(context.Background(), "run")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "failed to close module")
}

func TestExecute_NilModules(t *testing.T) {
	tests := []struct {
		name    string
		exec    *Executor
		wantErr error
		module  string
	}{
		{"nil input", NewExecutor(nil, nil, output.NewStub("stub")), ErrNilInputModule, "input"},
		{"nil output", NewExecutor(input.NewStub("stub", numbers(t, 1)), nil, nil), ErrNilOutputModule, "output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.exec.Execute(context.Background(), "run")
			require.ErrorIs(t, err, tt.wantErr)
			require.NotNil(t, result)
			require.NotNil(t, result.Error)
			assert.Equal(t, ErrCodeInvalidInput, result.Error.Code)
			assert.Equal(t, tt.module, result.Error.Module)
		})
	}

	_, err := NewExecutor(input.NewStub("stub", numbers(t, 1)), []filter.Module{nil}, output.NewStub("stub")).
		Execute(context.Background(), "run")
	assert.Error(t, err, "nil filter accepted")
}

func TestExecute_LogsStages(t *testing.T) {
	buf := captureLogs(t)

	_, err := NewExecutor(input.NewStub("stub", numbers(t, 2)), []filter.Module{&dropFirstFilter{name: "f"}}, output.NewStub("stub")).
		Execute(context.Background(), "run-logs")
	require.NoError(t, err)
	for _, want := range []string{"stage started", "stage completed", "Removing outliers", "run completed", `"run_id":"run-logs"`, `"dropped":1`} {
		assert.Contains(t, buf.String(), want)
	}
}

// TestExecute_EndToEndLocalStore runs the real modules against a local store.
func TestExecute_EndToEndLocalStore(t *testing.T) {
	dir := t.TempDir()
	reg, err := artifact.OpenRegistry(filepath.Join(dir, "registry.db"))
	require.NoError(t, err)
	blob, err := blobstore.NewLocal(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	store, err := artifact.NewStore(reg, blob, artifact.Options{
		Project:           "test",
		CacheDir:          filepath.Join(dir, "cache"),
		DurabilityTimeout: time.Second,
		PollInterval:      10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	raw := filepath.Join(dir, "sample.csv")
	content := "id,price,last_review,longitude,latitude\n" +
		"1,50,2019-05-21,-73.98,40.75\n" +
		"2,10000,2019-05-21,-73.98,40.75\n" +
		"3,-5,,-73.98,40.75\n" +
		"4,NaN,2019-05-21,-73.98,40.75\n" +
		"5,120,,-75.0,40.8\n" +
		"6,200,not a date,-73.95,40.70\n"
	require.NoError(t, os.WriteFile(raw, []byte(content), 0o600))

	seed, err := store.StartRun(ctx, "seed", nil)
	require.NoError(t, err)
	h, err := seed.Publish(ctx, artifact.Artifact{Name: "sample.csv", Type: "raw_data", Description: "raw", Path: raw})
	require.NoError(t, err)
	require.NoError(t, seed.AwaitDurable(ctx, h))

	run, err := store.StartRun(ctx, stage.JobType, nil)
	require.NoError(t, err)
	in, err := input.NewArtifactCSV(run, "sample.csv:latest")
	require.NoError(t, err)
	out, err := output.NewArtifactCSV(run, output.ArtifactCSVConfig{
		Name:        "clean_sample.csv",
		Type:        "clean_sample",
		Description: "Data with outliers and null values removed",
		WorkDir:     filepath.Join(dir, "work"),
	})
	require.NoError(t, err)

	result, err := NewExecutor(in, filter.DefaultChain(10, 500), out).Execute(ctx, run.ID())
	require.NoError(t, err)
	assert.Equal(t, 6, result.RecordsIn)
	assert.Equal(t, 2, result.RecordsOut)
	assert.Equal(t, "clean_sample.csv:v1", result.OutputArtifact)

	path, err := run.Fetch(ctx, "clean_sample.csv:latest")
	require.NoError(t, err)
	cleaned, err := dataset.ReadCSVFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, cleaned.Len())
	v, _ := cleaned.Get(1, "last_review")
	assert.True(t, v.IsMissing(), "unparsable last_review = %v, want missing", v)
}
