package output

import (
	"context"
	"log/slog"

	"github.com/rentalpipeline/basiccleaning/internal/dataset"
	"github.com/rentalpipeline/basiccleaning/internal/logger"
)

// StubModule records what it was sent instead of persisting it.
type StubModule struct {
	ModuleType string
	Received   *dataset.Dataset
	Calls      int
	Err        error
}

// NewStub creates a new stub output module.
func NewStub(moduleType string) *StubModule {
	return &StubModule{ModuleType: moduleType}
}

// Send stores ds and returns its length, or m.Err when set.
func (m *StubModule) Send(_ context.Context, ds *dataset.Dataset) (int, error) {
	m.Calls++
	logger.Debug("Output module sending data",
		slog.String("type", m.ModuleType),
		slog.Int("records", ds.Len()))
	if m.Err != nil {
		return 0, m.Err
	}
	m.Received = ds
	return ds.Len(), nil
}

// Close releases resources (no-op for stub).
func (m *StubModule) Close() error {
	return nil
}

var _ Module = (*StubModule)(nil)
