package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rentalpipeline/basiccleaning/internal/dataset"
	"github.com/rentalpipeline/basiccleaning/internal/errhandling"
	"github.com/rentalpipeline/basiccleaning/internal/logger"
)

// Fetcher resolves an artifact reference to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (string, error)
}

// ArtifactCSV downloads a CSV artifact and parses it.
type ArtifactCSV struct {
	client Fetcher
	ref    string
	path   string
}

// NewArtifactCSV creates an input module reading the artifact named by ref.
func NewArtifactCSV(client Fetcher, ref string) (*ArtifactCSV, error) {
	if client == nil {
		return nil, errors.New("artifact client is required")
	}
	if ref == "" {
		return nil, errhandling.NewArgumentError("input artifact reference is empty", nil)
	}
	return &ArtifactCSV{client: client, ref: ref}, nil
}

// Fetch implements the input.Module interface.
func (m *ArtifactCSV) Fetch(ctx context.Context) (*dataset.Dataset, error) {
	logger.Info("Downloading artifact", slog.String("artifact", m.ref))

	path, err := m.client.Fetch(ctx, m.ref)
	if err != nil {
		return nil, errhandling.NewDownloadError(fmt.Sprintf("fetching %s", m.ref), err)
	}
	m.path = path

	ds, err := dataset.ReadCSVFile(path)
	if err != nil {
		return nil, errhandling.NewParseError(fmt.Sprintf("reading %s", m.ref), err)
	}
	logger.Debug("artifact loaded",
		slog.String("artifact", m.ref),
		slog.String("path", path),
		slog.Int("columns", len(ds.Columns)),
		slog.Int("records", ds.Len()))
	return ds, nil
}

// LocalPath is the downloaded file, empty before Fetch succeeds.
func (m *ArtifactCSV) LocalPath() string {
	return m.path
}

// Close releases resources (no-op, the store owns the cache).
func (m *ArtifactCSV) Close() error {
	return nil
}

var _ Module = (*ArtifactCSV)(nil)
