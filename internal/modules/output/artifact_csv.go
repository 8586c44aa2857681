package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rentalpipeline/basiccleaning/internal/artifact"
	"github.com/rentalpipeline/basiccleaning/internal/dataset"
	"github.com/rentalpipeline/basiccleaning/internal/errhandling"
	"github.com/rentalpipeline/basiccleaning/internal/logger"
)

// OutputFileName is the name of the file written to the work directory.
const OutputFileName = "clean.csv"

// Publisher uploads a file as a new artifact version and confirms it.
type Publisher interface {
	Publish(ctx context.Context, a artifact.Artifact) (*artifact.Handle, error)
	AwaitDurable(ctx context.Context, h *artifact.Handle) error
}

// ArtifactCSVConfig describes the artifact to publish.
type ArtifactCSVConfig struct {
	Name        string
	Type        string
	Description string
	// WorkDir receives the serialised file before upload.
	WorkDir string
}

// ArtifactCSV writes the dataset to CSV and publishes it as an artifact.
type ArtifactCSV struct {
	client    Publisher
	cfg       ArtifactCSVConfig
	published *artifact.Handle
}

// NewArtifactCSV creates an output module publishing through client.
func NewArtifactCSV(client Publisher, cfg ArtifactCSVConfig) (*ArtifactCSV, error) {
	if client == nil {
		return nil, errors.New("artifact client is required")
	}
	switch {
	case cfg.Name == "":
		return nil, errhandling.NewArgumentError("output artifact name is empty", nil)
	case cfg.Type == "":
		return nil, errhandling.NewArgumentError("output artifact type is empty", nil)
	case cfg.Description == "":
		return nil, errhandling.NewArgumentError("output artifact description is empty", nil)
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	return &ArtifactCSV{client: client, cfg: cfg}, nil
}

// Send implements the output.Module interface. It returns only once the
// store has confirmed the upload is durable.
func (m *ArtifactCSV) Send(ctx context.Context, ds *dataset.Dataset) (int, error) {
	if err := os.MkdirAll(m.cfg.WorkDir, 0o755); err != nil {
		return 0, errhandling.NewUploadError(errhandling.CodeWriteFailed, "creating work directory", err)
	}
	path := filepath.Join(m.cfg.WorkDir, OutputFileName)
	if err := dataset.WriteCSVFile(path, ds); err != nil {
		return 0, errhandling.NewUploadError(errhandling.CodeWriteFailed, fmt.Sprintf("writing %s", path), err)
	}

	logger.Info("Uploading artifact",
		slog.String("artifact", m.cfg.Name),
		slog.String("type", m.cfg.Type),
		slog.Int("records", ds.Len()))

	handle, err := m.client.Publish(ctx, artifact.Artifact{
		Name:        m.cfg.Name,
		Type:        m.cfg.Type,
		Description: m.cfg.Description,
		Path:        path,
	})
	if err != nil {
		return 0, errhandling.NewUploadError(errhandling.CodeUploadFailed, fmt.Sprintf("publishing %s", m.cfg.Name), err)
	}
	if err := m.client.AwaitDurable(ctx, handle); err != nil {
		return 0, errhandling.NewUploadError(errhandling.CodeDurabilityUnconfirmed, fmt.Sprintf("confirming %s", handle), err)
	}
	m.published = handle

	logger.Info("Artifact uploaded",
		slog.String("artifact", handle.String()),
		slog.String("sha256", handle.SHA256),
		slog.Int64("bytes", handle.Size))
	return ds.Len(), nil
}

// Published returns the confirmed artifact version, nil before Send succeeds.
func (m *ArtifactCSV) Published() *artifact.Handle {
	return m.published
}

// Close releases resources (no-op).
func (m *ArtifactCSV) Close() error {
	return nil
}

var _ Module = (*ArtifactCSV)(nil)
