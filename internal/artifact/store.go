package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rentalpipeline/basiccleaning/internal/blobstore"
	"github.com/rentalpipeline/basiccleaning/internal/logger"
)

// Default durability bounds, used when Options leaves them zero.
const (
	DefaultDurabilityTimeout = 2 * time.Minute
	DefaultPollInterval      = 500 * time.Millisecond
)

// Options configures a Store.
type Options struct {
	Project string
	// CacheDir receives downloaded artifact files.
	CacheDir          string
	DurabilityTimeout time.Duration
	PollInterval      time.Duration
}

// Store pairs the registry with the blob backend holding the files.
type Store struct {
	registry *Registry
	blob     blobstore.Blob
	opts     Options
	newID    func() string
}

// NewStore builds a Store. The store takes ownership of registry and blob.
func NewStore(registry *Registry, blob blobstore.Blob, opts Options) (*Store, error) {
	if registry == nil || blob == nil {
		return nil, errors.New("artifact store needs a registry and a blob backend")
	}
	if opts.Project == "" {
		return nil, errors.New("artifact store needs a project")
	}
	if opts.CacheDir == "" {
		return nil, errors.New("artifact store needs a cache directory")
	}
	if opts.DurabilityTimeout <= 0 {
		opts.DurabilityTimeout = DefaultDurabilityTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Store{
		registry: registry,
		blob:     blob,
		opts:     opts,
		newID:    func() string { return uuid.New().String() },
	}, nil
}

// Registry exposes the catalogue, mainly for inspection.
func (s *Store) Registry() *Registry {
	return s.registry
}

// Close releases the registry and the blob backend.
func (s *Store) Close() error {
	return errors.Join(s.registry.Close(), s.blob.Close())
}

// StartRun records a new run of jobType with its configuration and returns the
// client the stage uses to fetch and publish artifacts.
func (s *Store) StartRun(ctx context.Context, jobType string, config map[string]any) (*Run, error) {
	if config == nil {
		config = map[string]any{}
	}
	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run config: %w", err)
	}
	id := s.newID()
	if err := s.registry.CreateRun(ctx, RunRecord{
		ID:      id,
		Project: s.opts.Project,
		JobType: jobType,
		Config:  string(raw),
	}); err != nil {
		return nil, err
	}
	logger.Debug("run started", "run_id", id, "job_type", jobType, "project", s.opts.Project, "backend", s.blob.Name())
	return &Run{id: id, jobType: jobType, store: s}, nil
}
