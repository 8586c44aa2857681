package filter

import (
	"context"
	"log/slog"

	"github.com/rentalpipeline/basiccleaning/internal/dataset"
	"github.com/rentalpipeline/basiccleaning/internal/logger"
)

// StubModule passes datasets through unchanged, optionally failing.
// It is used to exercise the executor without real filters.
type StubModule struct {
	ModuleType string
	Index      int
	Err        error
}

// NewStub creates a new stub filter module.
func NewStub(moduleType string, index int) *StubModule {
	return &StubModule{ModuleType: moduleType, Index: index}
}

func (m *StubModule) Name() string { return m.ModuleType }

// Process returns ds unchanged, or m.Err when set.
func (m *StubModule) Process(_ context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
	logger.Debug("Filter module processing data",
		slog.String("type", m.ModuleType),
		slog.Int("index", m.Index),
		slog.Int("records", ds.Len()))
	if m.Err != nil {
		return nil, m.Err
	}
	return ds, nil
}

var _ Module = (*StubModule)(nil)
