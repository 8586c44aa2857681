package input

import (
	"context"
	"log/slog"

	"github.com/rentalpipeline/basiccleaning/internal/dataset"
	"github.com/rentalpipeline/basiccleaning/internal/logger"
)

// StubModule returns a fixed dataset without touching any store.
type StubModule struct {
	ModuleType string
	Data       *dataset.Dataset
	Err        error
	Closed     bool
}

// NewStub creates a new stub input module returning data.
func NewStub(moduleType string, data *dataset.Dataset) *StubModule {
	return &StubModule{ModuleType: moduleType, Data: data}
}

// Fetch returns the configured dataset or error.
func (m *StubModule) Fetch(_ context.Context) (*dataset.Dataset, error) {
	logger.Debug("Input module fetching data", slog.String("type", m.ModuleType))
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Data, nil
}

// Close records that the module was closed.
func (m *StubModule) Close() error {
	m.Closed = true
	return nil
}

var _ Module = (*StubModule)(nil)
